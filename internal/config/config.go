package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Vector    VectorConfig
	Redis     RedisConfig
	Inference InferenceConfig
	Storage   StorageConfig
	Log       LogConfig
	Registry  RegistryConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port string
	Host string
	// CORSOrigins пустой - разрешены все
	CORSOrigins []string
}

// DatabaseConfig - настройки реляционной БД с метаданными персон
type DatabaseConfig struct {
	Driver      string // postgres | mysql
	Host        string
	Port        string
	User        string
	Password    string
	DBName      string
	SSLMode     string
	PersonTable string
}

// VectorConfig - настройки хранилища дескрипторов лиц
type VectorConfig struct {
	Backend       string // pgvector | hnsw
	DSN           string
	Table         string
	Dim           int
	Metric        string // L2 | COSINE
	HNSWIndexPath string
}

// RedisConfig - настройки Redis
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// InferenceConfig - настройки сервера инференса и порогов распознавания
type InferenceConfig struct {
	BaseURL                string
	Timeout                time.Duration
	Model                  string
	DetectionThreshold     float64
	FaceAreaFraction       float64
	FaceCountThreshold     int
	MatchDistanceThreshold float64
	SearchTopK             int
}

// StorageConfig - временные файлы загрузок
type StorageConfig struct {
	DownloadDir     string
	DownloadTimeout time.Duration
}

// LogConfig - настройки логирования
type LogConfig struct {
	Level  string
	Format string
	File   string
}

// RegistryConfig - настройки оркестратора
type RegistryConfig struct {
	IdentityLock bool
}

// Load загружает конфигурацию из переменных окружения
// с fallback на значения по умолчанию. Файл .env опционален.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			CORSOrigins: getEnvList("CORS_ORIGINS"),
		},
		Database: DatabaseConfig{
			Driver:      strings.ToLower(getEnv("DB_DRIVER", "postgres")),
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnv("DB_PORT", "5432"),
			User:        getEnv("DB_USER", "faceuser"),
			Password:    getEnv("DB_PASSWORD", "facepass"),
			DBName:      getEnv("DB_NAME", "facedb"),
			SSLMode:     getEnv("DB_SSLMODE", "disable"),
			PersonTable: getEnv("PERSON_TABLE", "person"),
		},
		Vector: VectorConfig{
			Backend:       strings.ToLower(getEnv("VECTOR_BACKEND", "pgvector")),
			DSN:           getEnv("VECTOR_DSN", ""),
			Table:         getEnv("VECTOR_TABLE", "faces"),
			Dim:           getEnvInt("VECTOR_DIM", 128),
			Metric:        strings.ToUpper(getEnv("VECTOR_METRIC", "L2")),
			HNSWIndexPath: getEnv("HNSW_INDEX_PATH", "data/faces.hnsw"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			TTL:      getEnvDuration("CACHE_TTL", time.Hour),
		},
		Inference: InferenceConfig{
			BaseURL:                getEnv("INFERENCE_BASE_URL", "http://localhost:8081"),
			Timeout:                getEnvDuration("INFERENCE_TIMEOUT", 30*time.Second),
			Model:                  getEnv("INFERENCE_MODEL", "face-reid-slow"),
			DetectionThreshold:     getEnvFloat("DETECTION_THRESHOLD", 0.3),
			FaceAreaFraction:       getEnvFloat("FACE_AREA_FRACTION", 0.10),
			FaceCountThreshold:     getEnvInt("FACE_COUNT_THRESHOLD", 1),
			MatchDistanceThreshold: getEnvFloat("MATCH_DISTANCE_THRESHOLD", 0.1),
			SearchTopK:             getEnvInt("SEARCH_TOP_K", 3),
		},
		Storage: StorageConfig{
			DownloadDir:     getEnv("DOWNLOAD_DIR", "downloads"),
			DownloadTimeout: getEnvDuration("DOWNLOAD_TIMEOUT", 15*time.Second),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
			File:   getEnv("LOG_FILE", ""),
		},
		Registry: RegistryConfig{
			IdentityLock: getEnvBool("IDENTITY_LOCK", true),
		},
	}

	if cfg.Vector.DSN == "" {
		cfg.Vector.DSN = cfg.Database.postgresDSN()
	}

	return cfg
}

// Validate проверяет значения, без которых сервис не может стартовать
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "mysql":
	default:
		return fmt.Errorf("неизвестный DB_DRIVER: %q", c.Database.Driver)
	}
	switch c.Vector.Backend {
	case "pgvector", "hnsw":
	default:
		return fmt.Errorf("неизвестный VECTOR_BACKEND: %q", c.Vector.Backend)
	}
	switch c.Vector.Metric {
	case "L2", "COSINE":
	default:
		return fmt.Errorf("неизвестная VECTOR_METRIC: %q", c.Vector.Metric)
	}
	if c.Vector.Dim <= 0 {
		return fmt.Errorf("VECTOR_DIM должен быть > 0, получено %d", c.Vector.Dim)
	}
	if c.Inference.SearchTopK <= 0 {
		return fmt.Errorf("SEARCH_TOP_K должен быть > 0, получено %d", c.Inference.SearchTopK)
	}
	return nil
}

// GetDSN возвращает строку подключения к БД метаданных для выбранного драйвера
func (c *DatabaseConfig) GetDSN() string {
	if c.Driver == "mysql" {
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
			c.User, c.Password, c.Host, c.Port, c.DBName)
	}
	return c.postgresDSN()
}

func (c *DatabaseConfig) postgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// getEnv получает переменную окружения или возвращает значение по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList разбирает список через запятую
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvInt получает целочисленную переменную окружения
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration понимает как "30s", так и число секунд
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
