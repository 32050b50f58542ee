package config

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

var bucketName = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]*[a-z0-9]$`)

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	// Validate server configuration
	if c.Server.Addr == "" {
		return errors.New("server address cannot be empty")
	}
	if _, err := net.ResolveTCPAddr("tcp", c.Server.Addr); err != nil {
		return fmt.Errorf("invalid server address: %v", err)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return errors.New("server max_upload_bytes must be positive")
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %v", err)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("invalid log format %q: must be json or console", c.Log.Format)
	}

	if err := c.LLM.validate(); err != nil {
		return err
	}
	return c.Storage.validate()
}

func (l *LLMConfig) validate() error {
	if l.Model == "" {
		return errors.New("llm model cannot be empty")
	}
	if l.Timeout <= 0 {
		return errors.New("llm timeout must be positive")
	}
	if l.MaxOutputTokens < 0 {
		return errors.New("llm max_output_tokens cannot be negative")
	}
	switch l.Provider {
	case ProviderGemini:
		if l.APIKey == "" {
			return errors.New("llm api key cannot be empty for the gemini provider (set CONTRACT_LLM_API_KEY or GEMINI_API_KEY)")
		}
	case ProviderVertex:
		if l.Vertex.Project == "" || l.Vertex.Region == "" {
			return errors.New("llm vertex project and region cannot be empty for the vertex provider")
		}
	case ProviderLMStudio:
		if l.LMStudio.Endpoint == "" {
			return errors.New("llm lmstudio endpoint cannot be empty for the lmstudio provider")
		}
	default:
		return fmt.Errorf("unknown llm provider %q", l.Provider)
	}
	return nil
}

func (s *StorageConfig) validate() error {
	switch s.Backend {
	case BackendLocal:
		if s.UploadDir == "" {
			return errors.New("storage upload_dir cannot be empty for the local backend")
		}
	case BackendMinIO:
		if s.MinIO.Endpoint == "" {
			return errors.New("minio endpoint cannot be empty when minio is the storage backend")
		}
		if s.MinIO.AccessKey == "" {
			return errors.New("minio access key cannot be empty when minio is the storage backend")
		}
		if s.MinIO.SecretKey == "" {
			return errors.New("minio secret key cannot be empty when minio is the storage backend")
		}
		if !isValidBucketName(s.MinIO.Bucket) {
			return fmt.Errorf("invalid minio bucket name: %s", s.MinIO.Bucket)
		}
	case BackendGCS:
		if !isValidBucketName(s.GCS.Bucket) {
			return fmt.Errorf("invalid gcs bucket name: %q", s.GCS.Bucket)
		}
	default:
		return fmt.Errorf("unknown storage backend %q", s.Backend)
	}
	return nil
}

// isValidBucketName checks a bucket name against the S3/GCS naming rules
func isValidBucketName(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") {
		return false
	}
	return bucketName.MatchString(name)
}
