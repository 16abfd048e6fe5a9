package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// loads configuration from environment variables
func LoadEnvironmentVariables() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		_ = err // not an error - production environments may not have .env file
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// checks cross-field requirements that struct tags cannot express
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.IsProduction() {
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL environment variable is required in production")
		}

		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL environment variable is required in production")
		}

		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET environment variable is required in production")
		}
	}

	if c.ArtifactBackend == "s3" && c.S3.Bucket == "" {
		return fmt.Errorf("S3_BUCKET environment variable is required when ARTIFACT_BACKEND=s3")
	}

	return nil
}

// builds the immutable tier table from the loaded environment
func (c *Config) Policies() (*Policies, error) {
	return PoliciesFromEnv(c.TierEnv)
}
