package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Embedder struct {
		BaseURL   string `yaml:"base_url"`
		VectorDim int    `yaml:"vector_dim"`
	} `yaml:"embedder"`

	LLM struct {
		BaseURL     string  `yaml:"base_url"`
		Model       string  `yaml:"model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`
	} `yaml:"llm"`

	Database struct {
		URL       string `yaml:"url"`
		TableName string `yaml:"table_name"`
	} `yaml:"database"`

	Source struct {
		Language  string  `yaml:"language"`
		RateLimit float64 `yaml:"rate_limit"`
		UserAgent string  `yaml:"user_agent"`
	} `yaml:"source"`

	Blob struct {
		Bucket    string `yaml:"bucket"`
		Region    string `yaml:"region"`
		KeyPrefix string `yaml:"key_prefix"`
	} `yaml:"blob"`

	Ingest struct {
		ChunkSize              int      `yaml:"chunk_size"`
		ChunkOverlap           int      `yaml:"chunk_overlap"`
		AllowedImageExtensions []string `yaml:"allowed_image_extensions"`
		TrustedImageHost       string   `yaml:"trusted_image_host"`
		Topics                 []string `yaml:"topics"`
	} `yaml:"ingest"`

	Search struct {
		DefaultK int `yaml:"default_k"`
	} `yaml:"search"`

	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/mira/config.yaml"),
			"/etc/mira/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.Embedder.BaseURL == "" {
		config.Embedder.BaseURL = "http://localhost:8090"
	}
	if config.Embedder.VectorDim == 0 {
		config.Embedder.VectorDim = 512
	}

	if config.LLM.Model == "" {
		config.LLM.Model = "mistral"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.7
	}
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "chunks"
	}

	if config.Source.Language == "" {
		config.Source.Language = "en"
	}
	if config.Source.RateLimit == 0 {
		config.Source.RateLimit = 2.0
	}
	if config.Source.UserAgent == "" {
		config.Source.UserAgent = "mira/1.0 (multimodal retrieval pipeline)"
	}

	if config.Blob.KeyPrefix == "" {
		config.Blob.KeyPrefix = "images"
	}

	// Overlap defaults only alongside size, so chunk_size with
	// chunk_overlap 0 means non-overlapping windows.
	if config.Ingest.ChunkSize == 0 {
		config.Ingest.ChunkSize = 400
		if config.Ingest.ChunkOverlap == 0 {
			config.Ingest.ChunkOverlap = 100
		}
	}
	if len(config.Ingest.AllowedImageExtensions) == 0 {
		config.Ingest.AllowedImageExtensions = []string{".jpg", ".jpeg", ".png"}
	}
	if config.Ingest.TrustedImageHost == "" {
		config.Ingest.TrustedImageHost = "wikimedia"
	}
	if len(config.Ingest.Topics) == 0 {
		config.Ingest.Topics = defaultTopics()
	}

	if config.Search.DefaultK == 0 {
		config.Search.DefaultK = 3
	}

	if config.Server.Host == "" {
		config.Server.Host = "0.0.0.0"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
}

// defaultTopics is the curated encyclopedic set bulk ingestion falls back to
// when neither config nor the CLI names any topics.
func defaultTopics() []string {
	return []string{
		"Machu Picchu",
		"Culture of Japan",
		"Sahara",
		"Amazon rainforest",
		"Maya civilization",
		"Andes",
		"Ancient Egypt",
		"Mount Fuji",
		"Antarctica",
		"Colombia",
		"Culture of Europe",
		"United States",
		"Continent",
		"United Nations",
		"Africa",
		"New 7 Wonders of the World",
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("CLIP_BASE_URL"); baseURL != "" {
		config.Embedder.BaseURL = baseURL
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if dbURL := os.Getenv("MIRA_DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if bucket := os.Getenv("MIRA_BLOB_BUCKET"); bucket != "" {
		config.Blob.Bucket = bucket
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		config.Blob.Region = region
	}
}
