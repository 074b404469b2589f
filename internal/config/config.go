// Package config loads settings from defaults, an optional config file and
// OBR_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "OBR"

type Config struct {
	User     string
	Source   SourceConfig
	GCS      GCSConfig
	Minio    MinioConfig
	OCR      OCRConfig
	Cache    CacheConfig
	BigQuery BigQueryConfig
	Server   ServerConfig
	Worker   WorkerConfig
	Activity ActivityConfig
}

// SourceConfig selects where scanned documents are read from.
type SourceConfig struct {
	Kind       string
	Folder     string
	Extensions []string
}

type GCSConfig struct {
	Bucket          string
	Prefix          string
	CredentialsFile string
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Prefix    string
}

type OCRConfig struct {
	Engine        string
	Language      string
	Mode          int
	GeminiModel   string
	TesseractPath string
	PdftoppmPath  string
	DPI           int
}

// CacheConfig enables the Redis text cache when RedisAddr is set.
type CacheConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

type BigQueryConfig struct {
	Project string
	Dataset string
}

type ServerConfig struct {
	Port string
}

type WorkerConfig struct {
	Interval time.Duration
}

type ActivityConfig struct {
	Dir string
}

const (
	SourceFolder = "folder"
	SourceGCS    = "gcs"
	SourceMinio  = "minio"

	EngineGemini    = "gemini"
	EngineTesseract = "tesseract"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("user", "user")
	v.SetDefault("source.kind", SourceFolder)
	v.SetDefault("source.folder", ".")
	v.SetDefault("source.extensions", []string{".png", ".jpg", ".jpeg", ".pdf"})
	v.SetDefault("gcs.bucket", "")
	v.SetDefault("gcs.prefix", "")
	v.SetDefault("gcs.credentials_file", "")
	v.SetDefault("minio.endpoint", "")
	v.SetDefault("minio.access_key", "")
	v.SetDefault("minio.secret_key", "")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "")
	v.SetDefault("minio.prefix", "")
	v.SetDefault("ocr.engine", EngineGemini)
	v.SetDefault("ocr.language", "eng")
	v.SetDefault("ocr.mode", 6)
	v.SetDefault("ocr.gemini_model", "gemini-2.5-flash")
	v.SetDefault("ocr.tesseract_path", "tesseract")
	v.SetDefault("ocr.pdftoppm_path", "pdftoppm")
	v.SetDefault("ocr.dpi", 300)
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.ttl", "168h")
	v.SetDefault("bigquery.project", "")
	v.SetDefault("bigquery.dataset", "")
	v.SetDefault("server.port", "8080")
	v.SetDefault("worker.interval", "1h")
	v.SetDefault("activity.dir", ".")
}

// LoadConfig reads configuration. configFile may be empty; when set it must exist.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("LoadConfig: reading config file: %w", err)
		}
	}

	cfg := &Config{
		User: v.GetString("user"),
		Source: SourceConfig{
			Kind:       strings.ToLower(v.GetString("source.kind")),
			Folder:     v.GetString("source.folder"),
			Extensions: v.GetStringSlice("source.extensions"),
		},
		GCS: GCSConfig{
			Bucket:          v.GetString("gcs.bucket"),
			Prefix:          v.GetString("gcs.prefix"),
			CredentialsFile: v.GetString("gcs.credentials_file"),
		},
		Minio: MinioConfig{
			Endpoint:  v.GetString("minio.endpoint"),
			AccessKey: v.GetString("minio.access_key"),
			SecretKey: v.GetString("minio.secret_key"),
			UseSSL:    v.GetBool("minio.use_ssl"),
			Bucket:    v.GetString("minio.bucket"),
			Prefix:    v.GetString("minio.prefix"),
		},
		OCR: OCRConfig{
			Engine:        strings.ToLower(v.GetString("ocr.engine")),
			Language:      v.GetString("ocr.language"),
			Mode:          v.GetInt("ocr.mode"),
			GeminiModel:   v.GetString("ocr.gemini_model"),
			TesseractPath: v.GetString("ocr.tesseract_path"),
			PdftoppmPath:  v.GetString("ocr.pdftoppm_path"),
			DPI:           v.GetInt("ocr.dpi"),
		},
		Cache: CacheConfig{
			RedisAddr:     v.GetString("cache.redis_addr"),
			RedisPassword: v.GetString("cache.redis_password"),
			RedisDB:       v.GetInt("cache.redis_db"),
			TTL:           v.GetDuration("cache.ttl"),
		},
		BigQuery: BigQueryConfig{
			Project: v.GetString("bigquery.project"),
			Dataset: v.GetString("bigquery.dataset"),
		},
		Server: ServerConfig{
			Port: v.GetString("server.port"),
		},
		Worker: WorkerConfig{
			Interval: v.GetDuration("worker.interval"),
		},
		Activity: ActivityConfig{
			Dir: v.GetString("activity.dir"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that every command depends on.
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case SourceFolder:
	case SourceGCS:
		if c.GCS.Bucket == "" {
			return fmt.Errorf("Validate: gcs.bucket is required for source.kind=%s", SourceGCS)
		}
	case SourceMinio:
		if c.Minio.Endpoint == "" || c.Minio.Bucket == "" {
			return fmt.Errorf("Validate: minio.endpoint and minio.bucket are required for source.kind=%s", SourceMinio)
		}
	default:
		return fmt.Errorf("Validate: unknown source.kind %q", c.Source.Kind)
	}

	switch c.OCR.Engine {
	case EngineGemini, EngineTesseract:
	default:
		return fmt.Errorf("Validate: unknown ocr.engine %q", c.OCR.Engine)
	}
	return nil
}
