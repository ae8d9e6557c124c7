package main

// ScoreAnimationDuration is how many ticks a score animation lives
const ScoreAnimationDuration = 20

// ScoreAnimation marks where a goal was scored. It is cosmetic only.
type ScoreAnimation struct {
	Position Vector `json:"position" msgpack:"p"`
	Color    string `json:"color" msgpack:"c"`
	Age      int    `json:"age" msgpack:"a"`
	Duration int    `json:"duration" msgpack:"d"`
}

func newScoreAnimation(pos Vector, color string) *ScoreAnimation {
	return &ScoreAnimation{Position: pos, Color: color, Duration: ScoreAnimationDuration}
}

// ageAnimations advances every animation and drops the expired ones in place
func ageAnimations(anims []*ScoreAnimation) []*ScoreAnimation {
	kept := anims[:0]
	for _, a := range anims {
		a.Age++
		if a.Age <= a.Duration {
			kept = append(kept, a)
		}
	}
	for i := len(kept); i < len(anims); i++ {
		anims[i] = nil
	}
	return kept
}
