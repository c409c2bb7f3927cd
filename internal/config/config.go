package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	StoreDriverMySQL  = "mysql"
	StoreDriverMemory = "memory"
)

type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`

	// Meta webhook
	VerifyToken     string        `envconfig:"VERIFY_TOKEN"`
	PageAccessToken string        `envconfig:"PAGE_ACCESS_TOKEN"` // используется, если у канала нет своего токена
	GraphAPIURL     string        `envconfig:"GRAPH_API_URL" default:"https://graph.facebook.com/v19.0"`
	SendTimeout     time.Duration `envconfig:"SEND_TIMEOUT" default:"10s"`

	StoreDriver string `envconfig:"STORE_DRIVER" default:"mysql"`
	DatabaseDSN string `envconfig:"DATABASE_DSN"`
	SeedFile    string `envconfig:"SEED_FILE"`

	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel   string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL"`

	KafkaBrokers string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string `envconfig:"KAFKA_TOPIC" default:"order-events"`

	AdminToken string `envconfig:"ADMIN_TOKEN"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = StoreDriverMySQL
	}
	return &cfg, nil
}

// Brokers список брокеров из KAFKA_BROKERS через запятую
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// StoreConfigured false, когда MySQL выбран, но DSN не задан
func (c *Config) StoreConfigured() bool {
	if c.StoreDriver == StoreDriverMemory {
		return true
	}
	return c.DatabaseDSN != ""
}
