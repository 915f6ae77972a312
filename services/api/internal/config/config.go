package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents API configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	DatabaseDSN string `yaml:"databaseDSN"`

	MaxUploadBytes int64 `yaml:"maxUploadBytes"`

	StorageDriver  string `yaml:"storageDriver"` // disk | minio
	UploadDir      string `yaml:"uploadDir"`
	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	QueueDriver   string `yaml:"queueDriver"` // redis | amqp
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	AMQPURL       string `yaml:"amqpURL"`
	QueueName     string `yaml:"queueName"`
	QueueGroup    string `yaml:"queueGroup"`
}

// Load reads config from path (defaults to config.yaml) and applies
// environment overrides.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.DatabaseDSN = v
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		cfg.StorageDriver = v
	}
	if v := os.Getenv("UPLOAD_DIR"); v != "" {
		cfg.UploadDir = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("QUEUE_DRIVER"); v != "" {
		cfg.QueueDriver = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQPURL = v
	}
	if v := os.Getenv("QUEUE_NAME"); v != "" {
		cfg.QueueName = v
	}
	if v := os.Getenv("QUEUE_GROUP"); v != "" {
		cfg.QueueGroup = v
	}
}

func validateConfig(cfg *FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("config: databaseDSN is required (set in config.yaml or DATABASE_DSN)")
	}
	if cfg.MaxUploadBytes < 0 {
		return errors.New("config: maxUploadBytes must be >= 0")
	}
	if cfg.StorageDriver == "" {
		cfg.StorageDriver = "disk"
	}
	switch cfg.StorageDriver {
	case "disk":
		if cfg.UploadDir == "" {
			cfg.UploadDir = "./uploads"
		}
	case "minio":
		if cfg.MinioEndpoint == "" || cfg.MinioBucket == "" {
			return errors.New("config: minio storage requires minioEndpoint and minioBucket")
		}
	default:
		return fmt.Errorf("config: unknown storageDriver %q", cfg.StorageDriver)
	}
	if cfg.QueueDriver == "" {
		cfg.QueueDriver = "redis"
	}
	switch cfg.QueueDriver {
	case "redis":
		if cfg.RedisAddr == "" {
			return errors.New("config: redisAddr is required (set in config.yaml or REDIS_ADDR)")
		}
	case "amqp":
		if cfg.AMQPURL == "" {
			return errors.New("config: amqpURL is required (set in config.yaml or AMQP_URL)")
		}
	default:
		return fmt.Errorf("config: unknown queueDriver %q", cfg.QueueDriver)
	}
	if cfg.QueueName == "" {
		cfg.QueueName = "document-processing"
	}
	// Must match the worker's consumer group: queue stats are read per
	// group, and a mismatched name makes pending deliveries invisible.
	if cfg.QueueGroup == "" {
		cfg.QueueGroup = "workers"
	}
	return nil
}
