package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string `validate:"required"`
	SslCertPath string

	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	LMSBaseURL      string `validate:"required,url"`
	LMSLoginURL     string `validate:"required,url"`
	LMSEmail        string
	LMSPassword     string
	LMSClientID     string
	LMSClientSecret string

	EmbedProvider  string `validate:"oneof=openai gemini"`
	EmbedBaseURL   string
	OpenAIAPIKey   string
	GeminiAPIKey   string
	EmbedModel     string
	EmbedDim       int `validate:"gt=0"`
	EmbedBatchSize int `validate:"gt=0"`

	ChunkSize           int `validate:"gt=0"`
	ChunkOverlap        int `validate:"gte=0"`
	VectorBatchSize     int `validate:"gt=0"`
	OCRDensityThreshold int `validate:"gte=0"`
	OCRWorkers          int `validate:"gt=0"`
	OCRLanguage         string

	RecommenderURL     string `validate:"required,url"`
	RecommenderTimeout time.Duration
	RecommenderRPS     float64
	EmptyRetryAfter    time.Duration
	ExcludedTopic      string

	SchedulerTZ         string
	RecsRefreshAt       string `validate:"required"`
	TokenRefreshAt      string `validate:"required"`
	StartupRefreshDelay time.Duration

	CatalogPath string
	JWTSecret   string
	LogLevel    string
	Port        string

	MaxUploadBytes int64 `validate:"gt=0"`
	MaxAssetBytes  int64 `validate:"gt=0"`
}

// embedDefaults is the model and vector size used for a provider when
// EMBED_MODEL or EMBED_DIM is unset.
func embedDefaults(provider string) (model string, dim int) {
	switch provider {
	case "gemini":
		return "text-embedding-004", 768
	default:
		return "text-embedding-3-small", 1024
	}
}

// applyEmbedDefaults fills the model and dimension the provider expects when
// they were left unset.
func (c *Config) applyEmbedDefaults() {
	model, dim := embedDefaults(c.EmbedProvider)
	if c.EmbedModel == "" {
		c.EmbedModel = model
	}
	if c.EmbedDim == 0 {
		c.EmbedDim = dim
	}
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		SslCertPath: getEnv("SSL_CERT_PATH", ""),

		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", ""),

		LMSBaseURL:      getEnv("LMS_BASE_URL", "https://my.newtonschool.co/api/v1/course/h"),
		LMSLoginURL:     getEnv("LMS_LOGIN_URL", "https://my.newtonschool.co/api/v1/user/login/"),
		LMSEmail:        getEnv("LMS_EMAIL", ""),
		LMSPassword:     getEnv("LMS_PASSWORD", ""),
		LMSClientID:     getEnv("LMS_CLIENT_ID", ""),
		LMSClientSecret: getEnv("LMS_CLIENT_SECRET", ""),

		EmbedProvider:  strings.ToLower(getEnv("EMBED_PROVIDER", "openai")),
		EmbedBaseURL:   getEnv("EMBED_BASE_URL", "https://api.openai.com/v1"),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		EmbedModel:     getEnv("EMBED_MODEL", ""),
		EmbedDim:       getEnvInt("EMBED_DIM", 0),
		EmbedBatchSize: getEnvInt("EMBED_BATCH_SIZE", 64),

		ChunkSize:           getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap:        getEnvInt("CHUNK_OVERLAP", 200),
		VectorBatchSize:     getEnvInt("VECTOR_BATCH_SIZE", 50),
		OCRDensityThreshold: getEnvInt("OCR_DENSITY_THRESHOLD", 50),
		OCRWorkers:          getEnvInt("OCR_WORKERS", 2),
		OCRLanguage:         getEnv("OCR_LANGUAGE", "eng"),

		RecommenderURL:     getEnv("RECOMMENDATION_SERVICE_URL", "http://localhost:5002"),
		RecommenderTimeout: getEnvDuration("RECOMMENDER_TIMEOUT", 30*time.Second),
		RecommenderRPS:     getEnvFloat("RECOMMENDER_RPS", 2),
		EmptyRetryAfter:    getEnvDuration("EMPTY_RETRY_AFTER", 24*time.Hour),
		ExcludedTopic:      getEnv("EXCLUDED_TOPIC", "Course and Instructor Introduction"),

		SchedulerTZ:         getEnv("SCHEDULER_TZ", "Asia/Kolkata"),
		RecsRefreshAt:       getEnv("RECS_REFRESH_AT", "03:00"),
		TokenRefreshAt:      getEnv("TOKEN_REFRESH_AT", "00:00"),
		StartupRefreshDelay: getEnvDuration("STARTUP_REFRESH_DELAY", 30*time.Second),

		CatalogPath: getEnv("COURSE_CATALOG_PATH", ""),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Port:        getEnv("PORT", "5001"),

		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_BYTES", 200<<20)),
		MaxAssetBytes:  int64(getEnvInt("MAX_ASSET_BYTES", 200<<20)),
	}
	cfg.applyEmbedDefaults()

	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	return cfg
}

// Validate checks the struct tags and reports every failing field at once.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, e := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed on '%s'", e.Field(), e.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(fields, "; "))
}

// Location resolves SchedulerTZ, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.SchedulerTZ)
	if err != nil {
		log.Printf("WARN: SCHEDULER_TZ=%q unknown, using UTC", c.SchedulerTZ)
		return time.UTC
	}
	return loc
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("WARN: %s=%q not a number, using default %g", key, v, def)
		return def
	}
	return f
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a duration, using default %s", key, v, def)
		return def
	}
	return d
}
