package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config 구조체 - 모든 환경변수를 담음
type Config struct {
	// Redis (optional - attempt guard across replicas)
	RedisHost     string
	RedisPort     string
	RedisUsername string
	RedisPassword string
	RedisUseTLS   bool

	// Gemini API
	GeminiAPIKey string
	VeoModel     string

	// Generation
	PollInterval            time.Duration
	MaxPolls                int
	AssetFetchTimeout       time.Duration
	CredentialPromptTimeout time.Duration

	// Server
	Port string

	// Logging
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
}

// LoadConfig - 환경변수 로드
func LoadConfig() (*Config, error) {
	// .env 파일 로드 (있으면)
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  .env file not found, using environment variables")
	}

	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}

	log.Println("✅ Configuration loaded successfully")
	if cfg.UseRedis() {
		log.Printf("   Redis: %s (TLS: %v)", cfg.GetRedisAddr(), cfg.RedisUseTLS)
	} else {
		log.Printf("   Redis: disabled (in-process attempt guard)")
	}
	log.Printf("   Veo: %s (poll every %s, max %d polls)", cfg.VeoModel, cfg.PollInterval, cfg.MaxPolls)
	log.Printf("   API key: %v", cfg.GeminiAPIKey != "")

	return cfg, nil
}

// FromEnv builds a Config from the current process environment without touching .env files.
func FromEnv() (*Config, error) {
	apiKey := getEnv("GEMINI_API_KEY", "")
	if apiKey == "" {
		apiKey = getEnv("API_KEY", "")
	}

	cfg := &Config{
		// Redis
		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisUsername: getEnv("REDIS_USERNAME", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisUseTLS:   getEnvBool("REDIS_USE_TLS", false),

		// Gemini API
		GeminiAPIKey: apiKey,
		VeoModel:     getEnv("VEO_MODEL", "veo-3.0-generate-001"),

		// Generation
		PollInterval:            getEnvSeconds("POLL_INTERVAL_SECONDS", 10),
		MaxPolls:                getEnvInt("MAX_POLLS", 20),
		AssetFetchTimeout:       getEnvSeconds("ASSET_FETCH_TIMEOUT_SECONDS", 120),
		CredentialPromptTimeout: getEnvSeconds("CREDENTIAL_PROMPT_TIMEOUT_SECONDS", 120),

		// Server
		Port: getEnv("PORT", "8080"),

		// Logging
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 50),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
	}

	// 필수 환경변수 검증
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate - 필수 환경변수 검증
func (c *Config) validate() error {
	if c.VeoModel == "" {
		return fmt.Errorf("VEO_MODEL must not be empty")
	}
	if c.MaxPolls <= 0 {
		return fmt.Errorf("MAX_POLLS must be positive, got %d", c.MaxPolls)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL_SECONDS must be positive")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be numeric: %q", c.Port)
	}
	return nil
}

// UseRedis reports whether a Redis host was configured.
func (c *Config) UseRedis() bool {
	return c.RedisHost != ""
}

// GetRedisAddr - Redis 연결 문자열 생성
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// getEnv - 환경변수 가져오기 (기본값 지원)
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if s := os.Getenv(key); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil {
			return parsed
		}
		log.Printf("⚠️  Invalid %s=%q, using default %d", key, s, defaultValue)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if s := os.Getenv(key); s != "" {
		if parsed, err := strconv.ParseBool(s); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, defaultSeconds)) * time.Second
}
