package main

import "encoding/json"

// Client -> Server message types
const (
	MsgJoin     = "join"
	MsgProps    = "props"
	MsgEntities = "entities"
	MsgPlayers  = "players"
	MsgCommand  = "command"
	MsgCommands = "commands" // atomic batch of command units
	MsgWatch    = "watch"    // subscribe to binary state broadcasts
)

// Server -> Client message types
const (
	MsgJoined   = "joined"
	MsgAck      = "ack"
	MsgError    = "error"
	MsgState    = "state" // msgpack, binary frame
	MsgGameOver = "gameover"
	MsgWatching = "watching"
)

// Envelope wraps all outgoing messages with a type field. ID echoes the
// request id so clients can pair replies with requests.
type Envelope struct {
	T    string `json:"t"`
	ID   int64  `json:"id,omitempty"`
	Data any    `json:"d,omitempty"`
}

// InEnvelope is used for incoming messages; json.RawMessage avoids double-unmarshal
type InEnvelope struct {
	T  string          `json:"t"`
	ID int64           `json:"id,omitempty"`
	D  json.RawMessage `json:"d,omitempty"`
}

// JoinMsg asks for a seat in the lobby
type JoinMsg struct {
	Name     string `json:"name"`
	Password string `json:"password,omitempty"`
}

// JoinedMsg answers a successful join. Token authenticates later commands.
type JoinedMsg struct {
	PlayerID string `json:"player_id"`
	MatchID  string `json:"match_id"`
	Token    string `json:"token"`
}

// PropsMsg carries the flattened engine configuration
type PropsMsg struct {
	Entries map[string]string `json:"entries"`
}

// CommandMsg updates one seeker
type CommandMsg struct {
	Token    string  `json:"token"`
	SeekerID string  `json:"seeker_id"`
	Target   Vector  `json:"target"`
	Magnet   float64 `json:"magnet"`
}

// CommandsMsg updates several seekers at once; all units are applied or none
type CommandsMsg struct {
	Token string        `json:"token"`
	Units []CommandUnit `json:"units"`
}

// AckMsg confirms a command
type AckMsg struct {
	Applied int `json:"applied"`
}

// StateFrame is the spectator broadcast, msgpack encoded
type StateFrame struct {
	T          string           `msgpack:"t"`
	Tick       int              `msgpack:"tick"`
	World      World            `msgpack:"w"`
	Seekers    []SeekerView     `msgpack:"s"`
	Goals      []GoalView       `msgpack:"g"`
	Players    []PlayerView     `msgpack:"p"`
	Camps      []CampView       `msgpack:"c"`
	Animations []ScoreAnimation `msgpack:"a"`
}
