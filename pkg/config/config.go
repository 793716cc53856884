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

// StoreDriver はドキュメントストアの実装種別
type StoreDriver string

const (
	StoreDriverPostgres StoreDriver = "postgres"
	StoreDriverMemory   StoreDriver = "memory"
)

// ErrMissingDatabaseConfig は必須のDB設定が欠けている場合のエラー
var ErrMissingDatabaseConfig = errors.New("required database configuration missing")

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// HTTPサーバ設定
	Server ServerConfig

	// Database設定
	Database DatabaseConfig

	// Ollama (OpenAI互換API) 設定
	Ollama OllamaConfig

	// チャンク分割・検索設定
	Chunking ChunkingConfig

	// アップロード設定
	Upload UploadConfig

	// レート制限設定
	RateLimit RateLimitConfig

	// ログ設定
	Log LogConfig

	StoreDriver StoreDriver
}

// ServerConfig はHTTPサーバ設定
type ServerConfig struct {
	Port           int
	AllowedOrigins []string
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// OllamaConfig はモデルバックエンドの設定（Embeddings + Chat）
type OllamaConfig struct {
	BaseURL            string
	APIKey             string
	ChatModel          string
	EmbeddingModel     string
	EmbeddingDimension int
	KeepAlive          time.Duration
	ReasoningEffort    string
	Temperature        float64
}

// ChunkingConfig はチャンク分割と検索件数の設定
type ChunkingConfig struct {
	ChunkSize    int
	ChunkSizeMin int
	ChunkOverlap int
	RetrieverK   int
}

// UploadConfig はアップロード保存先とサイズ上限
type UploadConfig struct {
	DataPath    string
	MaxFileSize int64
}

// RateLimitConfig はパスごとのトークンバケット設定（Windowは秒）
type RateLimitConfig struct {
	Chat          int
	ChatWindow    int
	Upload        int
	UploadWindow  int
	Default       int
	DefaultWindow int
}

// LogConfig はロガー設定
type LogConfig struct {
	Level  string
	Format string
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvAsInt("PORT", 8000),
			AllowedOrigins: splitOrigins(getEnv("ALLOWED_ORIGINS", "")),
		},
		Database: DatabaseConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvAsInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", ""),
			Password: getEnv("POSTGRES_PASSWORD", ""),
			DBName:   getEnv("POSTGRES_DB", ""),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
			MaxConns: getEnvAsInt("POSTGRES_MAX_CONNS", 10),
			MinConns: getEnvAsInt("POSTGRES_MIN_CONNS", 1),
		},
		Ollama: OllamaConfig{
			BaseURL:            getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			APIKey:             getEnv("OLLAMA_API_KEY", ""),
			ChatModel:          getEnv("CHAT_MODEL", "llama3.2"),
			EmbeddingModel:     getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
			EmbeddingDimension: getEnvAsInt("EMBEDDING_DIMENSION", 0),
			KeepAlive:          time.Duration(getEnvAsInt("KEEP_ALIVE", 300)) * time.Second,
			ReasoningEffort:    getEnv("CHAT_REASONING_EFFORT", "low"),
			Temperature:        getEnvAsFloat("CHAT_TEMPERATURE", 0.2),
		},
		Chunking: ChunkingConfig{
			ChunkSize:    getEnvAsInt("CHUNK_SIZE", 800),
			ChunkSizeMin: getEnvAsInt("CHUNK_SIZE_MIN", 100),
			ChunkOverlap: getEnvAsInt("CHUNK_OVERLAP", 200),
			RetrieverK:   getEnvAsInt("RETRIEVER_K", 5),
		},
		Upload: UploadConfig{
			DataPath:    getEnv("DATA_PATH", "./data"),
			MaxFileSize: int64(getEnvAsInt("MAX_FILE_SIZE", 200*1024*1024)),
		},
		RateLimit: RateLimitConfig{
			Chat:          getEnvAsInt("RATE_LIMIT_CHAT", 20),
			ChatWindow:    getEnvAsInt("RATE_LIMIT_CHAT_WINDOW", 60),
			Upload:        getEnvAsInt("RATE_LIMIT_UPLOAD", 10),
			UploadWindow:  getEnvAsInt("RATE_LIMIT_UPLOAD_WINDOW", 60),
			Default:       getEnvAsInt("RATE_LIMIT_DEFAULT", 100),
			DefaultWindow: getEnvAsInt("RATE_LIMIT_DEFAULT_WINDOW", 60),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		StoreDriver: StoreDriver(strings.ToLower(getEnv("STORE_DRIVER", string(StoreDriverPostgres)))),
	}

	return cfg, nil
}

// Validate は起動に必要な設定が揃っているかを検証します
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverMemory:
	case StoreDriverPostgres:
		if c.Database.User == "" || c.Database.Password == "" || c.Database.DBName == "" || c.Database.Host == "" {
			return ErrMissingDatabaseConfig
		}
	default:
		return fmt.Errorf("unknown store driver: %q", c.StoreDriver)
	}

	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive: %d", c.Chunking.ChunkSize)
	}
	if c.Upload.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive: %d", c.Upload.MaxFileSize)
	}

	return nil
}

// splitOrigins はカンマ区切りのオリジン一覧を分解します
func splitOrigins(raw string) []string {
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
