package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the complete gateway configuration.
// The structure matches config.yaml and every key can be overridden by a
// CONTRACT_ prefixed environment variable (llm.model -> CONTRACT_LLM_MODEL).
type Config struct {
	Server  ServerConfig  `json:"server" mapstructure:"server"`
	Log     LogConfig     `json:"log" mapstructure:"log"`
	LLM     LLMConfig     `json:"llm" mapstructure:"llm"`
	Storage StorageConfig `json:"storage" mapstructure:"storage"`
	Audit   AuditConfig   `json:"audit" mapstructure:"audit"`
}

// ServerConfig contains HTTP server configuration

type ServerConfig struct {
	Addr            string        `json:"addr" mapstructure:"addr"`
	ReadTimeout     time.Duration `json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	PublicBaseURL   string        `json:"public_base_url" mapstructure:"public_base_url"`
	MaxUploadBytes  int64         `json:"max_upload_bytes" mapstructure:"max_upload_bytes"`
	ExposeRawReply  bool          `json:"expose_raw_reply" mapstructure:"expose_raw_reply"`
}

type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"`
}

// LLMConfig selects and tunes the model backend

type LLMConfig struct {
	Provider        string         `json:"provider" mapstructure:"provider"`
	Model           string         `json:"model" mapstructure:"model"`
	APIKey          string         `json:"api_key" mapstructure:"api_key"`
	BaseURL         string         `json:"base_url" mapstructure:"base_url"`
	Timeout         time.Duration  `json:"timeout" mapstructure:"timeout"`
	Temperature     float32        `json:"temperature" mapstructure:"temperature"`
	MaxOutputTokens int32          `json:"max_output_tokens" mapstructure:"max_output_tokens"`
	Vertex          VertexConfig   `json:"vertex" mapstructure:"vertex"`
	LMStudio        LMStudioConfig `json:"lmstudio" mapstructure:"lmstudio"`
}

type VertexConfig struct {
	Project string `json:"project" mapstructure:"project"`
	Region  string `json:"region" mapstructure:"region"`
}

type LMStudioConfig struct {
	Endpoint string `json:"endpoint" mapstructure:"endpoint"`
}

// StorageConfig selects where uploaded contracts are kept

type StorageConfig struct {
	Backend   string      `json:"backend" mapstructure:"backend"`
	UploadDir string      `json:"upload_dir" mapstructure:"upload_dir"`
	MinIO     MinIOConfig `json:"minio" mapstructure:"minio"`
	GCS       GCSConfig   `json:"gcs" mapstructure:"gcs"`
}

type MinIOConfig struct {
	Endpoint  string `json:"endpoint" mapstructure:"endpoint"`
	AccessKey string `json:"access_key" mapstructure:"access_key"`
	SecretKey string `json:"secret_key" mapstructure:"secret_key"`
	Bucket    string `json:"bucket" mapstructure:"bucket"`
	UseSSL    bool   `json:"use_ssl" mapstructure:"use_ssl"`
}

type GCSConfig struct {
	Bucket string `json:"bucket" mapstructure:"bucket"`
}

type AuditConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	DSN     string `json:"dsn" mapstructure:"dsn"`
}

const (
	ProviderGemini   = "gemini"
	ProviderVertex   = "vertex"
	ProviderLMStudio = "lmstudio"

	BackendLocal = "local"
	BackendMinIO = "minio"
	BackendGCS   = "gcs"
)

// Loader reads configuration from an optional file, .env and the environment.
type Loader struct {
	v  *viper.Viper
	mu sync.Mutex
}

// NewLoader returns a loader for configFile. An empty configFile searches for
// config.yaml in the working directory and $HOME/.contractassist.
func NewLoader(configFile string) *Loader {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.contractassist")
	}
	v.SetEnvPrefix("CONTRACT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("llm.api_key", "CONTRACT_LLM_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY")
	setDefaults(v)
	return &Loader{v: v}
}

// Load is a shorthand for NewLoader(configFile).Load().
func Load(configFile string) (*Config, error) {
	return NewLoader(configFile).Load()
}

// Load reads the configuration. A missing config file is not an error.
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Load .env first (ignore error if not present)
	_ = godotenv.Load()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// ConfigFile returns the file the configuration was read from, if any.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Watch calls onChange with the re-read configuration whenever the config
// file changes on disk. It does nothing when no file was loaded.
func (l *Loader) Watch(onChange func(*Config, error)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		l.mu.Lock()
		cfg, err := l.decode()
		l.mu.Unlock()
		onChange(cfg, err)
	})
	l.v.WatchConfig()
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "180s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.public_base_url", "http://localhost:8000")
	v.SetDefault("server.max_upload_bytes", 20<<20)
	v.SetDefault("server.expose_raw_reply", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// LLM defaults
	v.SetDefault("llm.provider", ProviderGemini)
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.timeout", "120s")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_output_tokens", 8192)
	v.SetDefault("llm.vertex.project", "")
	v.SetDefault("llm.vertex.region", "us-central1")
	v.SetDefault("llm.lmstudio.endpoint", "http://localhost:1234")

	// Storage defaults
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.upload_dir", "uploads")
	v.SetDefault("storage.minio.endpoint", "127.0.0.1:9000")
	v.SetDefault("storage.minio.access_key", "")
	v.SetDefault("storage.minio.secret_key", "")
	v.SetDefault("storage.minio.bucket", "contracts")
	v.SetDefault("storage.minio.use_ssl", false)
	v.SetDefault("storage.gcs.bucket", "")

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.dsn", "file:contractassist_audit?mode=memory&cache=shared")
}
