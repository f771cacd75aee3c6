package config

import "time"

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"gatehouse"`
	Password string `env:"PASSWORD" envDefault:"gatehouse"`
	Name     string `env:"NAME"     envDefault:"gatehouse"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration for the intake idempotency claim cache.
// Redis is an optimization in front of the PostgreSQL unique constraint; the
// orchestrator remains correct when it is disabled.
type RedisConfig struct {
	Enabled  bool   `env:"ENABLED"  envDefault:"false"`
	Addr     string `env:"ADDR"     envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	DB       int    `env:"DB"       envDefault:"0"`

	// ClaimTTL is how long an intake idempotency claim is held in Redis.
	ClaimTTL time.Duration `env:"CLAIM_TTL" envDefault:"10m"`
}
