package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full server configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Game        GameConfig        `mapstructure:"game"`
	Matchmaking MatchmakingConfig `mapstructure:"matchmaking"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig configures the WebSocket listener and connection handling.
type ServerConfig struct {
	Address           string        `mapstructure:"address"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatMisses   int           `mapstructure:"heartbeat_misses"`
	ReconnectGrace    time.Duration `mapstructure:"reconnect_grace"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

// GameConfig configures match rules.
type GameConfig struct {
	StartingHealth   int `mapstructure:"starting_health"`
	StartingHandSize int `mapstructure:"starting_hand_size"`
	MaxMana          int `mapstructure:"max_mana"`
	BattlefieldLimit int `mapstructure:"battlefield_limit"`
	HandLimit        int `mapstructure:"hand_limit"`
	EffectChainDepth int `mapstructure:"effect_chain_depth"`
	// TurnTime is the server-side turn timer. It keeps ticking while a
	// player is disconnected; absence is bounded by server.reconnect_grace.
	TurnTime time.Duration `mapstructure:"turn_time"`
	// SilenceStripsBuffs controls whether silencing a minion also reverts
	// stat buffs that effects applied earlier. When false, silence only
	// suppresses future triggers.
	SilenceStripsBuffs bool `mapstructure:"silence_strips_buffs"`
}

// MatchmakingConfig configures the ticket queues and matching sweep.
type MatchmakingConfig struct {
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	BaseTolerance   int           `mapstructure:"base_tolerance"`
	ToleranceGrowth float64       `mapstructure:"tolerance_growth"`
	MaxTolerance    int           `mapstructure:"max_tolerance"`
	MaxWait         time.Duration `mapstructure:"max_wait"`
}

// DatabaseConfig configures the match archive database.
type DatabaseConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	URL            string        `mapstructure:"url"`
	MaxConns       int32         `mapstructure:"max_conns"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from the given file, applying defaults and
// ARENA_* environment variable overrides.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("ARENA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing file is tolerated; defaults and env vars still apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
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

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime behavior.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Game.MaxMana <= 0 {
		return fmt.Errorf("game.max_mana must be positive")
	}
	if c.Game.BattlefieldLimit <= 0 {
		return fmt.Errorf("game.battlefield_limit must be positive")
	}
	if c.Game.EffectChainDepth <= 0 {
		return fmt.Errorf("game.effect_chain_depth must be positive")
	}
	if c.Matchmaking.SweepInterval <= 0 {
		return fmt.Errorf("matchmaking.sweep_interval must be positive")
	}
	if c.Matchmaking.MaxTolerance < c.Matchmaking.BaseTolerance {
		return fmt.Errorf("matchmaking.max_tolerance must be >= base_tolerance")
	}
	if c.Database.Enabled && c.Database.URL == "" {
		return fmt.Errorf("database.url is required when database.enabled is true")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.heartbeat_interval", 10*time.Second)
	v.SetDefault("server.heartbeat_misses", 3)
	v.SetDefault("server.reconnect_grace", 60*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)

	v.SetDefault("game.starting_health", 30)
	v.SetDefault("game.starting_hand_size", 4)
	v.SetDefault("game.max_mana", 10)
	v.SetDefault("game.battlefield_limit", 7)
	v.SetDefault("game.hand_limit", 10)
	v.SetDefault("game.effect_chain_depth", 16)
	v.SetDefault("game.turn_time", 90*time.Second)
	v.SetDefault("game.silence_strips_buffs", false)

	v.SetDefault("matchmaking.sweep_interval", time.Second)
	v.SetDefault("matchmaking.base_tolerance", 100)
	v.SetDefault("matchmaking.tolerance_growth", 10.0)
	v.SetDefault("matchmaking.max_tolerance", 600)
	v.SetDefault("matchmaking.max_wait", 2*time.Minute)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.max_conns", 8)
	v.SetDefault("database.connect_timeout", 5*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}
