package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port  string // default: 8080
	Debug bool

	// Hathor
	HathorNetwork string // "testnet" or "mainnet"
	HathorNodeURL string
	WalletSeed    string // required, no fallback

	// Providers
	OpenAIAPIKey    string
	GeminiAPIKey    string
	AnthropicAPIKey string
	LLMModel        string // default: gpt-4o-mini

	// Billing
	CostPer100Tokens float64 // in HTR, default: 0.01

	// Twilio
	TwilioSID            string
	TwilioToken          string
	TwilioWhatsAppNumber string

	// Persistence
	StateFile string // default: state.json

	// Optional backends
	RedisAddr   string // enables per-sender rate limiting when set
	PostgresDSN string // enables the usage archive when set

	// Observability
	OTELExporterType     string // "stdout" or "otlp"
	OTELExporterEndpoint string // default: "localhost:4317"

	// Rate Limiting
	SenderRateLimitPerMin int64 // messages per minute per sender, default: 10

	// Background jobs
	DepositPollInterval time.Duration // default: 30s
	StateSaveInterval   time.Duration // default: 60s
	DepositMaxAge       time.Duration // default: 24h, 0 disables expiry
}

func Load() (*Config, error) {
	// Load .env file if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		Debug:                getEnv("DEBUG", "false") == "true",
		HathorNetwork:        getEnv("HATHOR_NETWORK", "testnet"),
		HathorNodeURL:        getEnv("HATHOR_NODE_URL", "https://node1.testnet.hathor.network"),
		WalletSeed:           os.Getenv("WALLET_SEED"),
		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		GeminiAPIKey:         os.Getenv("GEMINI_API_KEY"),
		AnthropicAPIKey:      os.Getenv("ANTHROPIC_API_KEY"),
		LLMModel:             getEnv("LLM_MODEL", "gpt-4o-mini"),
		TwilioSID:            os.Getenv("TWILIO_SID"),
		TwilioToken:          os.Getenv("TWILIO_TOKEN"),
		TwilioWhatsAppNumber: os.Getenv("TWILIO_WHATSAPP_NUMBER"),
		StateFile:            getEnv("STATE_FILE", "state.json"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		PostgresDSN:          os.Getenv("POSTGRES_DSN"),
		OTELExporterType:     getEnv("OTEL_EXPORTER_TYPE", "stdout"),
		OTELExporterEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
	}

	cost, err := strconv.ParseFloat(getEnv("COST_PER_100_TOKENS", "0.01"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid COST_PER_100_TOKENS: %w", err)
	}
	cfg.CostPer100Tokens = cost

	rpm, err := strconv.ParseInt(getEnv("SENDER_RATE_LIMIT_PER_MIN", "10"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid SENDER_RATE_LIMIT_PER_MIN: %w", err)
	}
	cfg.SenderRateLimitPerMin = rpm

	cfg.DepositPollInterval, err = getDuration("DEPOSIT_POLL_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.StateSaveInterval, err = getDuration("STATE_SAVE_INTERVAL", 60*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.DepositMaxAge, err = getDuration("DEPOSIT_MAX_AGE", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	// Validation. A missing wallet seed must stop the process here: a
	// fallback address would be shared by every user of a misconfigured
	// deployment.
	if cfg.WalletSeed == "" {
		return nil, fmt.Errorf("WALLET_SEED is required")
	}
	if cfg.HathorNetwork != "testnet" && cfg.HathorNetwork != "mainnet" {
		return nil, fmt.Errorf("invalid HATHOR_NETWORK %q (want testnet or mainnet)", cfg.HathorNetwork)
	}
	if cfg.TwilioSID == "" || cfg.TwilioToken == "" || cfg.TwilioWhatsAppNumber == "" {
		return nil, fmt.Errorf("TWILIO_SID, TWILIO_TOKEN and TWILIO_WHATSAPP_NUMBER are required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
