package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the whole host configuration. It is loaded by viper from
// seekers.yaml and SEEKERS_* environment variables.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Replay   ReplayConfig   `mapstructure:"replay" yaml:"replay"`
	Agent    AgentConfig    `mapstructure:"agent" yaml:"agent"`
	Game     GameConfig     `mapstructure:"game" yaml:"game"`
}

// LoggerConfig configures the zap logger
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
}

// ServerConfig configures the network listener
type ServerConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	ClientDir string `mapstructure:"client_dir" yaml:"client_dir"`
	// PublicURL is encoded into the /qr join code. Derived from the request when empty.
	PublicURL string `mapstructure:"public_url" yaml:"public_url"`
	// JoinPasswordHash is a bcrypt hash; empty means open joining.
	JoinPasswordHash string        `mapstructure:"join_password_hash" yaml:"join_password_hash"`
	JWTSecret        string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	TokenTTL         time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
	MaxConnsPerIP    int           `mapstructure:"max_conns_per_ip" yaml:"max_conns_per_ip"`
	MaxTotalConns    int           `mapstructure:"max_total_conns" yaml:"max_total_conns"`
	CommandRate      float64       `mapstructure:"command_rate" yaml:"command_rate"` // messages per second
	CommandBurst     int           `mapstructure:"command_burst" yaml:"command_burst"`
}

// DatabaseConfig configures the sqlite results store. Empty path disables it.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// ReplayConfig configures the zstd replay recorder. Empty dir disables it.
type ReplayConfig struct {
	Dir   string `mapstructure:"dir" yaml:"dir"`
	Every int    `mapstructure:"every" yaml:"every"` // record every n-th tick
}

// AgentConfig controls how per-tick intents are gathered
type AgentConfig struct {
	Concurrent    bool          `mapstructure:"concurrent" yaml:"concurrent"`
	LocalTimeout  time.Duration `mapstructure:"local_timeout" yaml:"local_timeout"`
	RemoteTimeout time.Duration `mapstructure:"remote_timeout" yaml:"remote_timeout"`
	// Bots are built-in local players joined at startup, by registry name.
	Bots []string `mapstructure:"bots" yaml:"bots"`
}

// GameConfig holds the simulation parameters
type GameConfig struct {
	Global GlobalConfig `mapstructure:"global" yaml:"global"`
	Map    MapConfig    `mapstructure:"map" yaml:"map"`
	Seeker SeekerConfig `mapstructure:"seeker" yaml:"seeker"`
	Goal   GoalConfig   `mapstructure:"goal" yaml:"goal"`
}

type GlobalConfig struct {
	Players        int   `mapstructure:"players" yaml:"players"`
	Seekers        int   `mapstructure:"seekers" yaml:"seekers"`
	Goals          int   `mapstructure:"goals" yaml:"goals"`
	Playtime       int   `mapstructure:"playtime" yaml:"playtime"` // ticks, 0 = unlimited
	Seed           int64 `mapstructure:"seed" yaml:"seed"`
	FPS            int   `mapstructure:"fps" yaml:"fps"` // 0 = run as fast as possible
	Speed          int   `mapstructure:"speed" yaml:"speed"` // ticks per frame
	WaitForPlayers bool  `mapstructure:"wait_for_players" yaml:"wait_for_players"`
}

type MapConfig struct {
	Width  float64 `mapstructure:"width" yaml:"width"`
	Height float64 `mapstructure:"height" yaml:"height"`
}

type SeekerConfig struct {
	Radius         float64 `mapstructure:"radius" yaml:"radius"`
	Mass           float64 `mapstructure:"mass" yaml:"mass"`
	Friction       float64 `mapstructure:"friction" yaml:"friction"`
	MaxSpeed       float64 `mapstructure:"max_speed" yaml:"max_speed"`
	MagnetSlowdown float64 `mapstructure:"magnet_slowdown" yaml:"magnet_slowdown"`
	DisabledTime   int     `mapstructure:"disabled_time" yaml:"disabled_time"`
}

type GoalConfig struct {
	Radius      float64 `mapstructure:"radius" yaml:"radius"`
	Mass        float64 `mapstructure:"mass" yaml:"mass"`
	Friction    float64 `mapstructure:"friction" yaml:"friction"`
	MaxSpeed    float64 `mapstructure:"max_speed" yaml:"max_speed"`
	ScoringTime int     `mapstructure:"scoring_time" yaml:"scoring_time"`
}

// DefaultConfig returns the stock configuration
func DefaultConfig() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:       "info",
			Format:      "console",
			ServiceName: "seekers",
			MaxSize:     50,
			MaxBackups:  3,
			MaxAge:      14,
		},
		Server: ServerConfig{
			Addr:          ":7777",
			TokenTTL:      24 * time.Hour,
			MaxConnsPerIP: 16,
			MaxTotalConns: 256,
			CommandRate:   2000,
			CommandBurst:  200,
		},
		Replay: ReplayConfig{Every: 1},
		Agent: AgentConfig{
			Concurrent:    true,
			LocalTimeout:  5 * time.Second,
			RemoteTimeout: 5 * time.Second,
		},
		Game: GameConfig{
			Global: GlobalConfig{
				Players:        2,
				Seekers:        5,
				Goals:          6,
				Playtime:       20000,
				Seed:           42,
				FPS:            60,
				Speed:          1,
				WaitForPlayers: true,
			},
			Map: MapConfig{Width: 768, Height: 768},
			Seeker: SeekerConfig{
				Radius:         10,
				Mass:           1,
				Friction:       0.02,
				MaxSpeed:       5,
				MagnetSlowdown: 0.2,
				DisabledTime:   250,
			},
			Goal: GoalConfig{
				Radius:      6,
				Mass:        0.5,
				Friction:    0.02,
				MaxSpeed:    5,
				ScoringTime: 150,
			},
		},
	}
}

// setDefaults registers every default with viper so that env overrides work
// for keys absent from the config file
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("logger.level", cfg.Logger.Level)
	v.SetDefault("logger.format", cfg.Logger.Format)
	v.SetDefault("logger.service_name", cfg.Logger.ServiceName)
	v.SetDefault("logger.log_file", cfg.Logger.LogFile)
	v.SetDefault("logger.max_size", cfg.Logger.MaxSize)
	v.SetDefault("logger.max_backups", cfg.Logger.MaxBackups)
	v.SetDefault("logger.max_age", cfg.Logger.MaxAge)
	v.SetDefault("logger.compress", cfg.Logger.Compress)
	v.SetDefault("logger.add_source", cfg.Logger.AddSource)

	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.client_dir", cfg.Server.ClientDir)
	v.SetDefault("server.public_url", cfg.Server.PublicURL)
	v.SetDefault("server.join_password_hash", cfg.Server.JoinPasswordHash)
	v.SetDefault("server.jwt_secret", cfg.Server.JWTSecret)
	v.SetDefault("server.token_ttl", cfg.Server.TokenTTL)
	v.SetDefault("server.max_conns_per_ip", cfg.Server.MaxConnsPerIP)
	v.SetDefault("server.max_total_conns", cfg.Server.MaxTotalConns)
	v.SetDefault("server.command_rate", cfg.Server.CommandRate)
	v.SetDefault("server.command_burst", cfg.Server.CommandBurst)

	v.SetDefault("database.path", cfg.Database.Path)
	v.SetDefault("replay.dir", cfg.Replay.Dir)
	v.SetDefault("replay.every", cfg.Replay.Every)

	v.SetDefault("agent.concurrent", cfg.Agent.Concurrent)
	v.SetDefault("agent.local_timeout", cfg.Agent.LocalTimeout)
	v.SetDefault("agent.remote_timeout", cfg.Agent.RemoteTimeout)
	v.SetDefault("agent.bots", cfg.Agent.Bots)

	g := cfg.Game
	v.SetDefault("game.global.players", g.Global.Players)
	v.SetDefault("game.global.seekers", g.Global.Seekers)
	v.SetDefault("game.global.goals", g.Global.Goals)
	v.SetDefault("game.global.playtime", g.Global.Playtime)
	v.SetDefault("game.global.seed", g.Global.Seed)
	v.SetDefault("game.global.fps", g.Global.FPS)
	v.SetDefault("game.global.speed", g.Global.Speed)
	v.SetDefault("game.global.wait_for_players", g.Global.WaitForPlayers)
	v.SetDefault("game.map.width", g.Map.Width)
	v.SetDefault("game.map.height", g.Map.Height)
	v.SetDefault("game.seeker.radius", g.Seeker.Radius)
	v.SetDefault("game.seeker.mass", g.Seeker.Mass)
	v.SetDefault("game.seeker.friction", g.Seeker.Friction)
	v.SetDefault("game.seeker.max_speed", g.Seeker.MaxSpeed)
	v.SetDefault("game.seeker.magnet_slowdown", g.Seeker.MagnetSlowdown)
	v.SetDefault("game.seeker.disabled_time", g.Seeker.DisabledTime)
	v.SetDefault("game.goal.radius", g.Goal.Radius)
	v.SetDefault("game.goal.mass", g.Goal.Mass)
	v.SetDefault("game.goal.friction", g.Goal.Friction)
	v.SetDefault("game.goal.max_speed", g.Goal.MaxSpeed)
	v.SetDefault("game.goal.scoring_time", g.Goal.ScoringTime)
}

// LoadConfig reads the config file (if any) and the environment into a validated Config.
// A missing config file is not an error.
func LoadConfig(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("seekers")
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix("SEEKERS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values the engine cannot run with
func (c *Config) Validate() error {
	g := c.Game
	switch {
	case g.Global.Players < 1:
		return fmt.Errorf("game.global.players must be a positive integer")
	case g.Global.Seekers < 1:
		return fmt.Errorf("game.global.seekers must be a positive integer")
	case g.Global.Goals < 0:
		return fmt.Errorf("game.global.goals must not be negative")
	case g.Global.Playtime < 0:
		return fmt.Errorf("game.global.playtime must not be negative")
	case g.Global.FPS < 0:
		return fmt.Errorf("game.global.fps must not be negative")
	case g.Global.Speed < 1:
		return fmt.Errorf("game.global.speed must be a positive integer")
	case g.Map.Width <= 0 || g.Map.Height <= 0:
		return fmt.Errorf("game.map dimensions must be positive")
	case g.Seeker.Friction <= 0 || g.Seeker.Friction >= 1:
		return fmt.Errorf("game.seeker.friction must be in (0,1)")
	case g.Goal.Friction <= 0 || g.Goal.Friction >= 1:
		return fmt.Errorf("game.goal.friction must be in (0,1)")
	case g.Seeker.Mass <= 0 || g.Goal.Mass <= 0:
		return fmt.Errorf("entity masses must be positive")
	case g.Seeker.Radius <= 0 || g.Goal.Radius <= 0:
		return fmt.Errorf("entity radii must be positive")
	case g.Seeker.DisabledTime < 0:
		return fmt.Errorf("game.seeker.disabled_time must not be negative")
	case g.Goal.ScoringTime < 1:
		return fmt.Errorf("game.goal.scoring_time must be a positive integer")
	case c.Agent.LocalTimeout <= 0 || c.Agent.RemoteTimeout <= 0:
		return fmt.Errorf("agent timeouts must be positive")
	case len(c.Agent.Bots) > g.Global.Players:
		return fmt.Errorf("agent.bots lists %d bots but game.global.players is %d", len(c.Agent.Bots), g.Global.Players)
	}
	return nil
}

// Properties flattens the game parameters into the key/value map served by
// the props request
func (g GameConfig) Properties() map[string]string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	i := strconv.Itoa
	world := NewWorld(g.Map.Width, g.Map.Height)
	campSize := world.Diameter() / 4 / 5
	return map[string]string{
		"global.players":          i(g.Global.Players),
		"global.seekers":          i(g.Global.Seekers),
		"global.goals":            i(g.Global.Goals),
		"global.playtime":         i(g.Global.Playtime),
		"global.seed":             strconv.FormatInt(g.Global.Seed, 10),
		"global.fps":              i(g.Global.FPS),
		"global.speed":            i(g.Global.Speed),
		"global.wait-for-players": strconv.FormatBool(g.Global.WaitForPlayers),
		"map.width":               f(g.Map.Width),
		"map.height":              f(g.Map.Height),
		"camp.width":              f(campSize),
		"camp.height":             f(campSize),
		"seeker.radius":           f(g.Seeker.Radius),
		"seeker.mass":             f(g.Seeker.Mass),
		"seeker.friction":         f(g.Seeker.Friction),
		"seeker.max-speed":        f(g.Seeker.MaxSpeed),
		"seeker.magnet-slowdown":  f(g.Seeker.MagnetSlowdown),
		"seeker.disabled-time":    i(g.Seeker.DisabledTime),
		"goal.radius":             f(g.Goal.Radius),
		"goal.mass":               f(g.Goal.Mass),
		"goal.friction":           f(g.Goal.Friction),
		"goal.max-speed":          f(g.Goal.MaxSpeed),
		"goal.scoring-time":       i(g.Goal.ScoringTime),
	}
}
