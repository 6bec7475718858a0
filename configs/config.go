package configs

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// AppConfig holds the application configuration.
// It's populated once by LoadConfig.
var AppConfig Configuration
var once sync.Once

// Configuration defines the structure for application settings.
type Configuration struct {
	JWTSecret       string         `yaml:"jwt_secret"`
	ServerPort      string         `yaml:"server_port"`
	FrontendBaseURL string         `yaml:"frontend_base_url"`
	Database        DatabaseConfig `yaml:"database"`
	AI              AIConfig       `yaml:"ai"`
	SMTP            SMTPConfig     `yaml:"smtp"`
	SMS             SMSConfig      `yaml:"sms"`
	Queue           QueueConfig    `yaml:"queue"`
	Workflow        WorkflowConfig `yaml:"workflow"`
	Kafka           KafkaConfig    `yaml:"kafka"`
	Google          GoogleConfig   `yaml:"google"`
}

// DatabaseConfig selects the gorm driver. Driver is "sqlite" or "postgres".
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	LogLevel string `yaml:"log_level"`
}

// AIConfig configures the OpenAI-compatible generation provider.
type AIConfig struct {
	Endpoint        string        `yaml:"endpoint"`
	Model           string        `yaml:"model"`
	APIKey          string        `yaml:"-"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialBackoff  time.Duration `yaml:"initial_backoff"`
	DefaultLanguage string        `yaml:"default_language"`
}

// SMTPConfig holds the SMTP server configuration
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"-"`
	Sender   string `yaml:"sender"`
}

// SMSConfig points at an HTTP SMS gateway.
type SMSConfig struct {
	GatewayURL string        `yaml:"gateway_url"`
	Token      string        `yaml:"-"`
	Sender     string        `yaml:"sender"`
	Timeout    time.Duration `yaml:"timeout"`
}

// QueueConfig selects and tunes the job queue. Backend is "database" or "redis".
type QueueConfig struct {
	Backend      string        `yaml:"backend"`
	RedisURL     string        `yaml:"redis_url"`
	Concurrency  int           `yaml:"concurrency"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxAttempts  int           `yaml:"max_attempts"`
	StaleAfter   time.Duration `yaml:"stale_after"`
}

// WorkflowConfig holds the business timing constants.
type WorkflowConfig struct {
	EscalationSLA   time.Duration `yaml:"escalation_sla"`
	ReminderDelay   time.Duration `yaml:"reminder_delay"`
	RequestLifetime time.Duration `yaml:"request_lifetime"`
	ExternalTimeout time.Duration `yaml:"external_timeout"`
}

// KafkaConfig enables domain event publishing when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// GoogleConfig holds the OAuth client used for Google Business Profile.
type GoogleConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"-"`
	TokenURL     string `yaml:"token_url"`
	APIBaseURL   string `yaml:"api_base_url"`
}

const (
	defaultJWTSecret       = "feedback"              // Default JWT secret, used if env var is not set.
	envJWTSecretKey        = "JWT_SECRET_KEY"        // Environment variable name for the JWT secret.
	defaultServerPort      = "8080"                  // Default server port.
	envServerPortKey       = "SERVER_PORT"           // Environment variable name for the server port.
	defaultFrontendBaseURL = "http://localhost:3000" // 默认前端基础URL
	envFrontendBaseURLKey  = "FRONTEND_BASE_URL"     // 前端基础URL环境变量名
	envConfigFileKey       = "APP_CONFIG_FILE"
)

// Defaults returns the built-in configuration used before the file and env are applied.
func Defaults() Configuration {
	return Configuration{
		JWTSecret:       defaultJWTSecret,
		ServerPort:      defaultServerPort,
		FrontendBaseURL: defaultFrontendBaseURL,
		Database: DatabaseConfig{
			Driver:   "sqlite",
			DSN:      "data/feedback.db",
			LogLevel: "warn",
		},
		AI: AIConfig{
			Endpoint:        "https://api.openai.com/v1",
			Model:           "gpt-4o-mini",
			Timeout:         30 * time.Second,
			MaxAttempts:     3,
			InitialBackoff:  time.Second,
			DefaultLanguage: "en",
		},
		SMTP: SMTPConfig{Port: 587},
		SMS:  SMSConfig{Timeout: 30 * time.Second},
		Queue: QueueConfig{
			Backend:      "database",
			Concurrency:  4,
			PollInterval: 2 * time.Second,
			MaxAttempts:  5,
			StaleAfter:   10 * time.Minute,
		},
		Workflow: WorkflowConfig{
			EscalationSLA:   4 * time.Hour,
			ReminderDelay:   48 * time.Hour,
			RequestLifetime: 30 * 24 * time.Hour,
			ExternalTimeout: 30 * time.Second,
		},
		Kafka: KafkaConfig{Topic: "feedback-events"},
		Google: GoogleConfig{
			TokenURL:   "https://oauth2.googleapis.com/token",
			APIBaseURL: "https://mybusiness.googleapis.com",
		},
	}
}

// LoadConfig loads configuration from defaults, an optional YAML file, .env and
// environment variables, in that order. It should be called once at application startup.
func LoadConfig(path string) error {
	var loadErr error
	once.Do(func() {
		cfg, err := Load(path)
		if err != nil {
			loadErr = err
			return
		}
		AppConfig = *cfg
		log.Info("应用配置已加载。")
	})
	return loadErr
}

// Load builds a Configuration without touching the AppConfig singleton.
func Load(path string) (*Configuration, error) {
	cfg := Defaults()

	if path == "" {
		path = os.Getenv(envConfigFileKey)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			log.Warnf("config file %s not found, continuing with defaults", path)
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file loaded (this is normal in production)")
	}

	cfg.applyEnvOverrides()
	return &cfg, nil
}

func (c *Configuration) applyEnvOverrides() {
	if v := os.Getenv(envJWTSecretKey); v != "" {
		c.JWTSecret = v
	} else if c.JWTSecret == defaultJWTSecret {
		log.Warnf("警告: %s 环境变量未设置。正在使用默认的JWT密钥。请在生产环境中设置此变量以保证安全。", envJWTSecretKey)
	}
	if v := os.Getenv(envServerPortKey); v != "" {
		c.ServerPort = v
	}
	if v := os.Getenv(envFrontendBaseURLKey); v != "" {
		c.FrontendBaseURL = v
	}
	if v := os.Getenv("DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		c.Database.DSN = v
	} else if v := os.Getenv("SQLITE_DB_PATH"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("AI_ENDPOINT"); v != "" {
		c.AI.Endpoint = v
	}
	if v := os.Getenv("AI_MODEL"); v != "" {
		c.AI.Model = v
	}
	c.AI.APIKey = os.Getenv("OPENAI_API_KEY")
	if v := os.Getenv("AI_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.AI.MaxAttempts = n
		}
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		c.SMTP.Host = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.SMTP.Port = port
		} else {
			log.Warnf("invalid SMTP_PORT %q ignored", v)
		}
	}
	if v := os.Getenv("SMTP_USERNAME"); v != "" {
		c.SMTP.Username = v
	}
	c.SMTP.Password = os.Getenv("SMTP_PASSWORD")
	if v := os.Getenv("SMTP_SENDER_EMAIL"); v != "" {
		c.SMTP.Sender = v
	}
	if v := os.Getenv("SMS_GATEWAY_URL"); v != "" {
		c.SMS.GatewayURL = v
	}
	c.SMS.Token = os.Getenv("SMS_GATEWAY_TOKEN")
	if v := os.Getenv("SMS_SENDER"); v != "" {
		c.SMS.Sender = v
	}
	if v := os.Getenv("QUEUE_BACKEND"); v != "" {
		c.Queue.Backend = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Queue.RedisURL = v
	}
	if v := os.Getenv("WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Queue.Concurrency = n
		}
	}
	if v := os.Getenv("ESCALATION_SLA"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Workflow.EscalationSLA = d
		}
	}
	if v := os.Getenv("REMINDER_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Workflow.ReminderDelay = d
		}
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		c.Google.ClientID = v
	}
	c.Google.ClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
}
