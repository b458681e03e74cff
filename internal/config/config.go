package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the root server configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Movement  MovementConfig  `mapstructure:"movement"`
	Casting   CastingConfig   `mapstructure:"casting"`
	Anomaly   AnomalyConfig   `mapstructure:"anomaly"`
	Abilities []AbilityConfig `mapstructure:"abilities"`
	World     WorldConfig     `mapstructure:"world"`
}

// WorldConfig holds the static world data this subsystem needs: the
// spawn points consulted by the teleport-legitimacy check and used to
// place new and respawning sessions.
type WorldConfig struct {
	SpawnPoints []SpawnPoint `mapstructure:"spawn_points"`
}

// SpawnPoint is one legitimate teleport anchor.
type SpawnPoint struct {
	X float64 `mapstructure:"x"`
	Y float64 `mapstructure:"y"`
	Z float64 `mapstructure:"z"`
}

// ServerConfig covers the transport and simulation loop.
type ServerConfig struct {
	Address            string        `mapstructure:"address"`
	TickRate           int           `mapstructure:"tick_rate"`
	SnapshotEveryTicks int           `mapstructure:"snapshot_every_ticks"`
	MaxSessions        int           `mapstructure:"max_sessions"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	HistoryHorizon     time.Duration `mapstructure:"history_horizon"`
	MaxEnergy          float64       `mapstructure:"max_energy"`
	EnergyRegenPerSec  float64       `mapstructure:"energy_regen_per_sec"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig configures the optional violation telemetry sink.
// An empty DSN disables persistence; violations are then log-only.
type DatabaseConfig struct {
	DSN          string        `mapstructure:"dsn"`
	MaxConns     int32         `mapstructure:"max_conns"`
	ConnTimeout  time.Duration `mapstructure:"conn_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// AuthConfig configures the connection-approval hook and admin endpoints.
type AuthConfig struct {
	// JoinGrantSecret verifies HMAC-signed join grants. Empty disables
	// approval entirely (development mode: every connection accepted).
	JoinGrantSecret   string `mapstructure:"join_grant_secret"`
	JoinGrantIssuer   string `mapstructure:"join_grant_issuer"`
	JoinGrantAudience string `mapstructure:"join_grant_audience"`
	// AdminPasswordHash is a bcrypt hash guarding the admin HTTP surface.
	AdminPasswordHash string `mapstructure:"admin_password_hash"`
}

// MovementConfig holds the plausibility bounds for movement validation.
// Speeds are world units per second; the validator converts to per-tick
// internally.
type MovementConfig struct {
	MaxSpeed            float64       `mapstructure:"max_speed"`
	ToleranceMultiplier float64       `mapstructure:"tolerance_multiplier"`
	SpeedHackThreshold  float64       `mapstructure:"speed_hack_threshold"`
	MaxAcceleration     float64       `mapstructure:"max_acceleration"`
	TeleportAnchorRange float64       `mapstructure:"teleport_anchor_range"`
	TeleportGrantWindow time.Duration `mapstructure:"teleport_grant_window"`
}

// CastingConfig holds rate limiting and queue bounds for ability casts.
type CastingConfig struct {
	WindowDuration   time.Duration `mapstructure:"window_duration"`
	MaxCastsPerWin   int           `mapstructure:"max_casts_per_window"`
	MinCastInterval  time.Duration `mapstructure:"min_cast_interval"`
	MaxRapidCasts    int           `mapstructure:"max_rapid_casts"`
	QueueCapacity    int           `mapstructure:"queue_capacity"`
	ResolvePerTick   int           `mapstructure:"resolve_per_tick"`
	DefaultHitRadius float64       `mapstructure:"default_hit_radius"`
}

// AnomalyConfig holds the three-tier escalation thresholds.
type AnomalyConfig struct {
	WarnThreshold       int `mapstructure:"warn_threshold"`
	CorrectThreshold    int `mapstructure:"correct_threshold"`
	DisconnectThreshold int `mapstructure:"disconnect_threshold"`
	// StructuralWeight is how many plausibility violations a single
	// protocol-level violation counts as.
	StructuralWeight int `mapstructure:"structural_weight"`
	HistoryCap       int `mapstructure:"history_cap"`
}

// AbilityConfig defines one castable ability. Replaces the legacy
// reflection-configured ability defaults with explicit construction data.
type AbilityConfig struct {
	Kind     string        `mapstructure:"kind"`
	Cooldown time.Duration `mapstructure:"cooldown"`
	Cost     float64       `mapstructure:"cost"`
	Range    float64       `mapstructure:"range"`
	Radius   float64       `mapstructure:"radius"`
}

// Load reads configuration from the given path, applying defaults for
// anything unset.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.tick_rate", 60)
	v.SetDefault("server.snapshot_every_ticks", 3)
	v.SetDefault("server.max_sessions", 256)
	v.SetDefault("server.idle_timeout", 30*time.Second)
	v.SetDefault("server.history_horizon", time.Second)
	v.SetDefault("server.max_energy", 100.0)
	v.SetDefault("server.energy_regen_per_sec", 5.0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.conn_timeout", 5*time.Second)
	v.SetDefault("database.write_timeout", 2*time.Second)

	v.SetDefault("movement.max_speed", 10.0)
	v.SetDefault("movement.tolerance_multiplier", 1.2)
	v.SetDefault("movement.speed_hack_threshold", 50.0)
	v.SetDefault("movement.max_acceleration", 80.0)
	v.SetDefault("movement.teleport_anchor_range", 3.0)
	v.SetDefault("movement.teleport_grant_window", 2*time.Second)

	v.SetDefault("casting.window_duration", time.Second)
	v.SetDefault("casting.max_casts_per_window", 3)
	v.SetDefault("casting.min_cast_interval", 100*time.Millisecond)
	v.SetDefault("casting.max_rapid_casts", 3)
	v.SetDefault("casting.queue_capacity", 512)
	v.SetDefault("casting.resolve_per_tick", 32)
	v.SetDefault("casting.default_hit_radius", 1.5)

	v.SetDefault("anomaly.warn_threshold", 3)
	v.SetDefault("anomaly.correct_threshold", 10)
	v.SetDefault("anomaly.disconnect_threshold", 25)
	v.SetDefault("anomaly.structural_weight", 2)
	v.SetDefault("anomaly.history_cap", 50)
}

// Validate rejects configurations that would make the validators
// meaningless or the tick loop unbounded.
func (c *Config) Validate() error {
	if c.Server.TickRate <= 0 {
		return fmt.Errorf("server.tick_rate must be positive, got %d", c.Server.TickRate)
	}
	if c.Server.SnapshotEveryTicks <= 0 {
		return fmt.Errorf("server.snapshot_every_ticks must be positive, got %d", c.Server.SnapshotEveryTicks)
	}
	if c.Server.HistoryHorizon <= 0 {
		return fmt.Errorf("server.history_horizon must be positive")
	}
	if c.Movement.MaxSpeed <= 0 {
		return fmt.Errorf("movement.max_speed must be positive")
	}
	if c.Movement.ToleranceMultiplier < 1.0 {
		return fmt.Errorf("movement.tolerance_multiplier must be >= 1.0, got %g", c.Movement.ToleranceMultiplier)
	}
	if c.Movement.SpeedHackThreshold < c.Movement.MaxSpeed {
		return fmt.Errorf("movement.speed_hack_threshold must be >= movement.max_speed")
	}
	if c.Casting.MaxCastsPerWin <= 0 {
		return fmt.Errorf("casting.max_casts_per_window must be positive")
	}
	if c.Casting.QueueCapacity <= 0 || c.Casting.ResolvePerTick <= 0 {
		return fmt.Errorf("casting queue bounds must be positive")
	}
	if c.Anomaly.WarnThreshold >= c.Anomaly.CorrectThreshold ||
		c.Anomaly.CorrectThreshold >= c.Anomaly.DisconnectThreshold {
		return fmt.Errorf("anomaly thresholds must be strictly increasing (warn < correct < disconnect)")
	}
	seen := make(map[string]bool, len(c.Abilities))
	for _, a := range c.Abilities {
		if a.Kind == "" {
			return fmt.Errorf("ability with empty kind")
		}
		if seen[a.Kind] {
			return fmt.Errorf("duplicate ability kind %q", a.Kind)
		}
		seen[a.Kind] = true
		if a.Cost < 0 || a.Range <= 0 {
			return fmt.Errorf("ability %q: cost must be >= 0 and range > 0", a.Kind)
		}
	}
	return nil
}

// TickInterval returns the duration of one simulation tick.
func (c *Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.Server.TickRate)
}
