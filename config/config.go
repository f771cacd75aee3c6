package config

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: PostgreSQL and Redis configuration
//   - http.go: HTTP server configuration
//   - orchestrator.go: gate chain, notifier, action retry, and reaper configuration
type AppConfig struct {
	// IsDev controls development mode behavior (verbose logging, in-memory store).
	IsDev bool `env:"DEV" envDefault:"false"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Orchestrator configuration
	Orchestrator OrchestratorConfig

	// Reaper configuration
	Reaper ReaperConfig

	// Metrics configuration
	Metrics MetricsConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Orchestrator.Sanitize()
	c.Reaper.Sanitize()
}
