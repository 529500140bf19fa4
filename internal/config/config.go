package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by CASELORE_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("CASELORE_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// DataDir is the root for tier sidecar state: pinned manifest, cache index
// and payloads, vault blobs and key file.
func DataDir() string {
	d := os.Getenv("DATA_DIR")
	if d == "" {
		return "data"
	}
	return d
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

// EmbeddingProvider returns the configured embedding provider.
// Valid values: openai, mock. Empty disables the vector tier.
func EmbeddingProvider() string {
	return os.Getenv("EMBEDDING_PROVIDER")
}

// VaultKeyPath points at the AES-256 key file for the cold vault. Empty
// means the vault runs unencrypted and says so in every receipt.
func VaultKeyPath() string {
	return os.Getenv("VAULT_KEY_PATH")
}

// PolicyPath points at the optional YAML escalation policy file.
func PolicyPath() string {
	return os.Getenv("POLICY_PATH")
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}
