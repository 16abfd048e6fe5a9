package config

import "time"

type Config struct {
	Port           string `envconfig:"PORT" default:"8080"`
	Environment    string `envconfig:"ENVIRONMENT" default:"development"`
	DatabaseURL    string `envconfig:"DATABASE_URL"`
	RedisURL       string `envconfig:"REDIS_URL"`
	JWTSecret      string `envconfig:"JWT_SECRET"`
	AllowedOrigins string `envconfig:"ALLOWED_ORIGINS"`

	WorkDir         string        `envconfig:"WORK_DIR" default:"./tmp/work"`
	ScriptsDir      string        `envconfig:"SCRIPTS_DIR" default:"./scripts"`
	ArtifactBackend string        `envconfig:"ARTIFACT_BACKEND" default:"local" validate:"oneof=local s3"`
	ArtifactDir     string        `envconfig:"ARTIFACT_DIR" default:"./tmp/artifacts"`
	ArtifactTTL     time.Duration `envconfig:"ARTIFACT_TTL" default:"1h" validate:"gt=0"`
	SweepInterval   time.Duration `envconfig:"SWEEP_INTERVAL" default:"5m" validate:"gt=0"`
	InvokeTimeout   time.Duration `envconfig:"INVOKE_TIMEOUT" default:"5m" validate:"gt=0"`
	QuotaMode       string        `envconfig:"QUOTA_MODE" default:"atomic" validate:"oneof=atomic fallback"`
	DownloadRate    string        `envconfig:"DOWNLOAD_RATE" default:"30-M"`
	OperationsFile  string        `envconfig:"OPERATIONS_FILE"`

	S3 S3Config `envconfig:"S3"`

	TierEnv
}

// S3-compatible artifact storage, only read when ARTIFACT_BACKEND=s3
type S3Config struct {
	Endpoint  string `envconfig:"ENDPOINT"`
	Bucket    string `envconfig:"BUCKET"`
	Region    string `envconfig:"REGION" default:"us-east-1"`
	AccessKey string `envconfig:"ACCESS_KEY"`
	SecretKey string `envconfig:"SECRET_KEY"`
	Prefix    string `envconfig:"PREFIX" default:"artifacts/"`
}

// raw per-tier knobs as they appear in the environment
type TierEnv struct {
	RateLimitFree       int64 `envconfig:"RATE_LIMIT_FREE" default:"5"`
	RateLimitPro        int64 `envconfig:"RATE_LIMIT_PRO" default:"100"`
	RateLimitEnterprise int64 `envconfig:"RATE_LIMIT_ENTERPRISE" default:"1000"`
	RateLimitWindowSec  int   `envconfig:"RATE_LIMIT_WINDOW_SEC" default:"60"`

	DailyLimitFree       int64 `envconfig:"DAILY_LIMIT_FREE" default:"10"`
	DailyLimitPro        int64 `envconfig:"DAILY_LIMIT_PRO" default:"0"`
	DailyLimitEnterprise int64 `envconfig:"DAILY_LIMIT_ENTERPRISE" default:"0"`

	MonthlyLimitFree       int64 `envconfig:"MONTHLY_LIMIT_FREE" default:"0"`
	MonthlyLimitPro        int64 `envconfig:"MONTHLY_LIMIT_PRO" default:"0"`
	MonthlyLimitEnterprise int64 `envconfig:"MONTHLY_LIMIT_ENTERPRISE" default:"0"`

	MaxInputBytesFree       int64 `envconfig:"MAX_INPUT_BYTES_FREE" default:"10485760"`
	MaxInputBytesPro        int64 `envconfig:"MAX_INPUT_BYTES_PRO" default:"104857600"`
	MaxInputBytesEnterprise int64 `envconfig:"MAX_INPUT_BYTES_ENTERPRISE" default:"524288000"`

	FeaturesFree       []string `envconfig:"FEATURES_FREE" default:"basic"`
	FeaturesPro        []string `envconfig:"FEATURES_PRO" default:"basic,advanced,batch"`
	FeaturesEnterprise []string `envconfig:"FEATURES_ENTERPRISE" default:"basic,advanced,batch,api,white-label"`
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
