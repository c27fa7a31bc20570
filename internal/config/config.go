package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr          string        `yaml:"addr"`
	JWTSecret     string        `yaml:"jwt_secret"`
	APITimeout    time.Duration `yaml:"timeout"`
	DatabasePath  string        `yaml:"database_path"`
	TokenDuration time.Duration `yaml:"token_duration"`
	Drafter       DrafterConfig `yaml:"drafter"`
	Events        EventsConfig  `yaml:"events"`
	Mailer        MailerConfig  `yaml:"mailer"`
}

// DrafterConfig drives the LLM-backed message writer.
type DrafterConfig struct {
	BaseURL                 string        `yaml:"base_url"`
	Model                   string        `yaml:"model"`
	Timeout                 time.Duration `yaml:"timeout"`
	Retries                 int           `yaml:"retries"`
	Backoff                 time.Duration `yaml:"backoff"`
	CircuitFailureThreshold int           `yaml:"circuit_failure_threshold"`
	CircuitReset            time.Duration `yaml:"circuit_reset"`
}

// EventsConfig tunes the in-process event hub.
type EventsConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ReplaySize        int           `yaml:"replay_size"`
	SubscriberBuffer  int           `yaml:"subscriber_buffer"`
}

// MailerConfig configures outbound introduction delivery. When disabled the
// send-email endpoint reports a validation failure instead of calling out.
type MailerConfig struct {
	Enabled         bool   `yaml:"enabled"`
	From            string `yaml:"from"`
	CredentialsFile string `yaml:"credentials_file"`
	TokenFile       string `yaml:"token_file"`
}

func LoadConfig(path string) (*Config, error) {
	// optional .env for local development; missing file is fine
	_ = godotenv.Load()

	cfg := &Config{
		Addr:          getEnv("INTRODESK_ADDR", ":8080"),
		JWTSecret:     getEnv("INTRODESK_JWT_SECRET", "supersecretkey"),
		APITimeout:    15 * time.Second,
		DatabasePath:  getEnv("INTRODESK_DATABASE_PATH", "introdesk.db"),
		TokenDuration: 1 * time.Hour,
		Drafter: DrafterConfig{
			BaseURL:                 getEnv("INTRODESK_DRAFTER_URL", "http://localhost:11434"),
			Model:                   getEnv("INTRODESK_DRAFTER_MODEL", "llama3.2"),
			Timeout:                 30 * time.Second,
			Retries:                 2,
			Backoff:                 500 * time.Millisecond,
			CircuitFailureThreshold: 5,
			CircuitReset:            30 * time.Second,
		},
		Events: EventsConfig{
			HeartbeatInterval: 15 * time.Second,
			ReplaySize:        256,
			SubscriberBuffer:  16,
		},
		Mailer: MailerConfig{
			From:            getEnv("INTRODESK_MAIL_FROM", ""),
			CredentialsFile: getEnv("INTRODESK_MAIL_CREDENTIALS", ""),
			TokenFile:       getEnv("INTRODESK_MAIL_TOKEN", ""),
		},
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}
