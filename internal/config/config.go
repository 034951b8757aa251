package config

import (
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Addr         string
	StoreBackend string
	MongoURI     string
	MongoDB      string
	CORSOrigin   string
	LogLevel     string
	LogFormat    string
	// Search
	MeiliURL       string
	MeiliMasterKey string
	// Blob storage - file sharing is disabled without an endpoint
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	// Redis - realtime stays in process when empty
	RedisURL string
	// SMTP - welcome emails are skipped without a host
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string
	// Deadline scanner
	DeadlineScanInterval  time.Duration
	DeadlineBootstrap     time.Duration
	DeadlineWindowDays    int
	DeadlineLookbackHours int
	DeadlineIncludeLeader bool

	DefaultMemberPassword string
	MaxUploadBytes        int64
	MetricsEnabled        bool
	RealtimeEmitTimeout   time.Duration
}

func Load() Config {
	v := viper.New()
	v.AutomaticEnv()
	if p := os.Getenv("CONFIG_FILE"); p != "" {
		v.SetConfigFile(p)
		_ = v.ReadInConfig()
	}

	v.SetDefault("API_ADDR", ":8787")
	v.SetDefault("TEAMDESK_STORE", "mongo")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DATABASE", "teamdesk")
	v.SetDefault("CORS_ORIGIN", "*")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("MEILI_URL", "")
	v.SetDefault("MEILI_MASTER_KEY", "")
	v.SetDefault("MINIO_ENDPOINT", "")
	v.SetDefault("MINIO_BUCKET", "teamdesk")
	v.SetDefault("MINIO_USE_SSL", false)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", "587")
	v.SetDefault("SMTP_FROM_NAME", "TeamDesk")
	v.SetDefault("DEADLINE_SCAN_INTERVAL", "1m")
	v.SetDefault("DEADLINE_BOOTSTRAP_DELAY", "5s")
	v.SetDefault("DEADLINE_WINDOW_DAYS", 7)
	v.SetDefault("DEADLINE_LOOKBACK_HOURS", 24)
	v.SetDefault("DEADLINE_INCLUDE_LEADER", false)
	v.SetDefault("DEFAULT_MEMBER_PASSWORD", "12345")
	v.SetDefault("MAX_UPLOAD_BYTES", 25<<20)
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("REALTIME_EMIT_TIMEOUT", "2s")

	return Config{
		Addr:                  v.GetString("API_ADDR"),
		StoreBackend:          v.GetString("TEAMDESK_STORE"),
		MongoURI:              v.GetString("MONGO_URI"),
		MongoDB:               v.GetString("MONGO_DATABASE"),
		CORSOrigin:            v.GetString("CORS_ORIGIN"),
		LogLevel:              v.GetString("LOG_LEVEL"),
		LogFormat:             v.GetString("LOG_FORMAT"),
		MeiliURL:              v.GetString("MEILI_URL"),
		MeiliMasterKey:        v.GetString("MEILI_MASTER_KEY"),
		MinioEndpoint:         v.GetString("MINIO_ENDPOINT"),
		MinioAccessKey:        v.GetString("MINIO_ACCESS_KEY"),
		MinioSecretKey:        v.GetString("MINIO_SECRET_KEY"),
		MinioBucket:           v.GetString("MINIO_BUCKET"),
		MinioUseSSL:           v.GetBool("MINIO_USE_SSL"),
		RedisURL:              v.GetString("REDIS_URL"),
		SMTPHost:              v.GetString("SMTP_HOST"),
		SMTPPort:              v.GetString("SMTP_PORT"),
		SMTPUsername:          v.GetString("SMTP_USERNAME"),
		SMTPPassword:          v.GetString("SMTP_PASSWORD"),
		SMTPFrom:              v.GetString("SMTP_FROM"),
		SMTPFromName:          v.GetString("SMTP_FROM_NAME"),
		DeadlineScanInterval:  positiveDuration(v.GetDuration("DEADLINE_SCAN_INTERVAL"), time.Minute),
		DeadlineBootstrap:     v.GetDuration("DEADLINE_BOOTSTRAP_DELAY"),
		DeadlineWindowDays:    positiveInt(v.GetInt("DEADLINE_WINDOW_DAYS"), 7),
		DeadlineLookbackHours: v.GetInt("DEADLINE_LOOKBACK_HOURS"),
		DeadlineIncludeLeader: v.GetBool("DEADLINE_INCLUDE_LEADER"),
		DefaultMemberPassword: v.GetString("DEFAULT_MEMBER_PASSWORD"),
		MaxUploadBytes:        v.GetInt64("MAX_UPLOAD_BYTES"),
		MetricsEnabled:        v.GetBool("METRICS_ENABLED"),
		RealtimeEmitTimeout:   positiveDuration(v.GetDuration("REALTIME_EMIT_TIMEOUT"), 2*time.Second),
	}
}

func positiveDuration(value, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}

func positiveInt(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}
