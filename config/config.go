package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	AppName    = "RAG Chatbot API"
	AppVersion = "1.0.0"
)

type Config struct {
	ServerAddr     string
	RequestTimeout time.Duration
	CORSOrigins    []string
	LogLevel       string
	LogFormat      string

	Database  DatabaseConfig
	Embedding EmbeddingConfig
	LLM       LLMConfig
	Ingest    IngestConfig
	Chat      ChatConfig
}

type DatabaseConfig struct {
	Driver         string // "postgres" or "memory"
	Host           string
	Port           int
	User           string
	Password       string
	DBName         string
	SSLMode        string
	CollectionName string
}

// DSN returns a libpq key/value connection string, e.g.
// "host=localhost port=5432 user=postgres password=secret dbname=rag sslmode=disable".
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type EmbeddingConfig struct {
	Provider  string // "openai" or "ollama"
	Model     string
	Dimension int
	OllamaURL string
}

type LLMConfig struct {
	Provider   string // "openai" or "ollama"
	APIKey     string
	BaseURL    string
	APIType    string // "openai" or "azure"
	APIVersion string
	Model      string
	OllamaURL  string
}

type IngestConfig struct {
	ChunkSize           int
	ChunkOverlap        int
	MaxFileSizeMB       int
	SupportedExtensions []string
	DocumentsFolder     string
	AutoLoadOnStartup   bool
	Workers             int
	PDFCropTop          float64
	PDFCropBottom       float64
}

type ChatConfig struct {
	RetrievalK            int
	SimilarityThreshold   float64
	DefaultTemperature    float64
	DefaultMaxTokens      int
	MaxConversationLength int
}

var defaultExtensions = []string{".py", ".md", ".txt", ".json", ".yml", ".yaml", ".docx", ".pdf", ".go"}

// Load reads envFilePath (if present) into the environment and builds the config.
// A missing .env file is not an error; the process environment is enough.
func Load(envFilePath string) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFilePath, err)
		}
	}

	cfg := &Config{
		ServerAddr:     getEnv("SERVER_ADDR", ":8000"),
		RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 5*time.Minute),
		CORSOrigins:    getEnvAsList("CORS_ORIGINS", []string{"http://localhost:3000"}),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		Database: DatabaseConfig{
			Driver:         getEnv("VECTOR_STORE", "postgres"),
			Host:           getEnv("PG_HOST", "localhost"),
			Port:           getEnvAsInt("PG_PORT", 5432),
			User:           getEnv("PG_USER", "postgres"),
			Password:       getEnv("PG_PASS", ""),
			DBName:         getEnv("PG_DB_NAME", "rag"),
			SSLMode:        getEnv("PG_SSLMODE", "disable"),
			CollectionName: getEnv("COLLECTION_NAME", "documents"),
		},
		Embedding: EmbeddingConfig{
			Provider:  getEnv("EMBEDDING_PROVIDER", "openai"),
			Model:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			Dimension: getEnvAsInt("EMBEDDING_DIMENSION", 1536),
			OllamaURL: getEnv("OLLAMA_EMBEDDING_URL", "http://localhost:11434/api/embeddings"),
		},
		LLM: LLMConfig{
			Provider:   getEnv("LLM_PROVIDER", "openai"),
			APIKey:     getEnv("OPENAI_API_KEY", ""),
			BaseURL:    getEnv("OPENAI_BASE_URL", ""),
			APIType:    getEnv("OPENAI_API_TYPE", "openai"),
			APIVersion: getEnv("OPENAI_API_VERSION", "2023-05-15"),
			Model:      getEnv("OPENAI_MODEL", "gpt-3.5-turbo"),
			OllamaURL:  getEnv("LLM_URL", "http://localhost:11434/api/chat"),
		},
		Ingest: IngestConfig{
			ChunkSize:           getEnvAsInt("CHUNK_SIZE", 1000),
			ChunkOverlap:        getEnvAsInt("CHUNK_OVERLAP", 200),
			MaxFileSizeMB:       getEnvAsInt("MAX_FILE_SIZE_MB", 10),
			SupportedExtensions: normalizeExtensions(getEnvAsList("SUPPORTED_EXTENSIONS", defaultExtensions)),
			DocumentsFolder:     getEnv("DOCUMENTS_FOLDER", "./documents"),
			AutoLoadOnStartup:   getEnvAsBool("AUTO_LOAD_ON_STARTUP", true),
			Workers:             getEnvAsInt("INGEST_WORKERS", 4),
			PDFCropTop:          getEnvAsFloat("PDF_CROP_TOP", 0),
			PDFCropBottom:       getEnvAsFloat("PDF_CROP_BOTTOM", 0),
		},
		Chat: ChatConfig{
			RetrievalK:            getEnvAsInt("RETRIEVAL_K", 5),
			SimilarityThreshold:   getEnvAsFloat("SIMILARITY_THRESHOLD", 0.7),
			DefaultTemperature:    getEnvAsFloat("DEFAULT_TEMPERATURE", 0.7),
			DefaultMaxTokens:      getEnvAsInt("DEFAULT_MAX_TOKENS", 1000),
			MaxConversationLength: getEnvAsInt("MAX_CONVERSATION_LENGTH", 10),
		},
	}

	if cfg.Embedding.Provider == "ollama" {
		cfg.Embedding.Model = getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text")
		cfg.Embedding.Dimension = getEnvAsInt("EMBEDDING_DIMENSION", 768)
	}
	if cfg.LLM.Provider == "ollama" {
		cfg.LLM.Model = getEnv("LLM_MODEL", "llama3")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the ingestion and chat paths cannot work with.
func (c *Config) Validate() error {
	var errs []error
	if c.Ingest.ChunkSize <= 0 {
		errs = append(errs, errors.New("CHUNK_SIZE must be positive"))
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		errs = append(errs, errors.New("CHUNK_OVERLAP must be in [0, CHUNK_SIZE)"))
	}
	if c.Ingest.MaxFileSizeMB <= 0 {
		errs = append(errs, errors.New("MAX_FILE_SIZE_MB must be positive"))
	}
	if c.Ingest.Workers <= 0 {
		errs = append(errs, errors.New("INGEST_WORKERS must be positive"))
	}
	if len(c.Ingest.SupportedExtensions) == 0 {
		errs = append(errs, errors.New("SUPPORTED_EXTENSIONS must not be empty"))
	}
	if c.Chat.RetrievalK <= 0 {
		errs = append(errs, errors.New("RETRIEVAL_K must be positive"))
	}
	if c.Chat.MaxConversationLength <= 0 {
		errs = append(errs, errors.New("MAX_CONVERSATION_LENGTH must be positive"))
	}
	if c.Embedding.Dimension <= 0 {
		errs = append(errs, errors.New("EMBEDDING_DIMENSION must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// FilePatterns derives glob patterns ("*.md") from the supported extensions.
func (c IngestConfig) FilePatterns() []string {
	patterns := make([]string, 0, len(c.SupportedExtensions))
	for _, ext := range c.SupportedExtensions {
		patterns = append(patterns, "*"+ext)
	}
	return patterns
}

// MaxFileSizeBytes converts MaxFileSizeMB to bytes.
func (c IngestConfig) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated value; brackets and quotes are
// tolerated so JSON-style lists ("[".md", ".txt"]") also work.
func getEnvAsList(key string, defaultValue []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	raw = strings.Trim(raw, "[]")
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.Trim(strings.TrimSpace(part), `"'`)
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
