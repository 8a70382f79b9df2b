package config

import (
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	App      AppConfig
	Model    ModelConfig
	Storage  StorageConfig
	Cache    CacheConfig
	Pipeline PipelineConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type AppConfig struct {
	DataDir      string
	LedgerSource string // "file" or "postgres"
	LedgerPath   string
}

// ModelConfig controls how the demand model is fitted.
type ModelConfig struct {
	Regressor       string // "forest" or "ridge"
	CVFolds         int
	Trees           int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	Seed            int64
	RidgeLambda     float64
	AlertHorizon    int
}

// StorageConfig selects where model snapshots are written.
type StorageConfig struct {
	Backend      string // "file" or "s3"
	SnapshotPath string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	Bucket       string
	Region       string
	UseSSL       bool
	ObjectKey    string
}

type CacheConfig struct {
	Enabled            bool
	RedisURL           string
	RedisHost          string
	RedisPort          string
	RedisPassword      string
	RedisDB            int
	ForecastTTLSeconds int
}

type PipelineConfig struct {
	WorkerCount int
	BatchSize   int
	IngestDir   string
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		instance = build(viper.GetViper())

		ensureDir(instance.App.DataDir)
		if instance.Storage.Backend == "file" {
			ensureDir(filepath.Dir(instance.Storage.SnapshotPath))
		}
	})

	return instance
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8000")
	v.SetDefault("SERVER_MODE", "debug")
	v.SetDefault("SERVER_READ_TIMEOUT", 15)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 60)
	v.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "stockcast")
	v.SetDefault("DB_SSLMODE", "disable")

	v.SetDefault("APP_DATA_DIR", "./data")
	v.SetDefault("LEDGER_SOURCE", "file")
	v.SetDefault("LEDGER_PATH", "./data/sales_data.csv")

	v.SetDefault("MODEL_REGRESSOR", "forest")
	v.SetDefault("MODEL_CV_FOLDS", 5)
	v.SetDefault("MODEL_TREES", 100)
	v.SetDefault("MODEL_MAX_DEPTH", 12)
	v.SetDefault("MODEL_MIN_SAMPLES_SPLIT", 5)
	v.SetDefault("MODEL_MIN_SAMPLES_LEAF", 2)
	v.SetDefault("MODEL_SEED", 42)
	v.SetDefault("MODEL_RIDGE_LAMBDA", 1.0)
	v.SetDefault("MODEL_ALERT_HORIZON", 14)

	v.SetDefault("STORAGE_BACKEND", "file")
	v.SetDefault("SNAPSHOT_PATH", "./models/demand_model.json")
	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_ACCESS_KEY", "")
	v.SetDefault("S3_SECRET_KEY", "")
	v.SetDefault("S3_BUCKET", "")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_USE_SSL", true)
	v.SetDefault("S3_OBJECT_KEY", "models/demand_model.json")

	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_HOST", "127.0.0.1")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_FORECAST_TTL_SECONDS", 300)

	v.SetDefault("PIPELINE_WORKER_COUNT", 4)
	v.SetDefault("PIPELINE_BATCH_SIZE", 1000)
	v.SetDefault("PIPELINE_INGEST_DIR", "./data/incoming")
}

func build(v *viper.Viper) *Config {
	setDefaults(v)

	// Read from environment variables
	v.AutomaticEnv()

	return &Config{
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			Mode:           v.GetString("SERVER_MODE"),
			ReadTimeout:    v.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout:   v.GetInt("SERVER_WRITE_TIMEOUT"),
			AllowedOrigins: v.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			URL:      v.GetString("DATABASE_URL"),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		App: AppConfig{
			DataDir:      v.GetString("APP_DATA_DIR"),
			LedgerSource: v.GetString("LEDGER_SOURCE"),
			LedgerPath:   v.GetString("LEDGER_PATH"),
		},
		Model: ModelConfig{
			Regressor:       v.GetString("MODEL_REGRESSOR"),
			CVFolds:         v.GetInt("MODEL_CV_FOLDS"),
			Trees:           v.GetInt("MODEL_TREES"),
			MaxDepth:        v.GetInt("MODEL_MAX_DEPTH"),
			MinSamplesSplit: v.GetInt("MODEL_MIN_SAMPLES_SPLIT"),
			MinSamplesLeaf:  v.GetInt("MODEL_MIN_SAMPLES_LEAF"),
			Seed:            v.GetInt64("MODEL_SEED"),
			RidgeLambda:     v.GetFloat64("MODEL_RIDGE_LAMBDA"),
			AlertHorizon:    v.GetInt("MODEL_ALERT_HORIZON"),
		},
		Storage: StorageConfig{
			Backend:      v.GetString("STORAGE_BACKEND"),
			SnapshotPath: v.GetString("SNAPSHOT_PATH"),
			Endpoint:     v.GetString("S3_ENDPOINT"),
			AccessKey:    v.GetString("S3_ACCESS_KEY"),
			SecretKey:    v.GetString("S3_SECRET_KEY"),
			Bucket:       v.GetString("S3_BUCKET"),
			Region:       v.GetString("S3_REGION"),
			UseSSL:       v.GetBool("S3_USE_SSL"),
			ObjectKey:    v.GetString("S3_OBJECT_KEY"),
		},
		Cache: CacheConfig{
			Enabled:            v.GetBool("CACHE_ENABLED"),
			RedisURL:           v.GetString("REDIS_URL"),
			RedisHost:          v.GetString("REDIS_HOST"),
			RedisPort:          v.GetString("REDIS_PORT"),
			RedisPassword:      v.GetString("REDIS_PASSWORD"),
			RedisDB:            v.GetInt("REDIS_DB"),
			ForecastTTLSeconds: v.GetInt("CACHE_FORECAST_TTL_SECONDS"),
		},
		Pipeline: PipelineConfig{
			WorkerCount: v.GetInt("PIPELINE_WORKER_COUNT"),
			BatchSize:   v.GetInt("PIPELINE_BATCH_SIZE"),
			IngestDir:   v.GetString("PIPELINE_INGEST_DIR"),
		},
	}
}

func ensureDir(dir string) {
	if dir == "" || dir == "." {
		return
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}
}
