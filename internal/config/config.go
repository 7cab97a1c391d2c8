package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"ayl/internal/message"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalid         = errors.New("invalid configuration")
)

type Config struct {
	// Queue backend
	QueueBackend           string `envconfig:"QUEUE_BACKEND" default:"beanstalk"`
	QueueName              string `envconfig:"QUEUE_NAME" default:"default"`
	BeanstalkAddr          string `envconfig:"BEANSTALK_ADDR" default:"localhost:11300"`
	BeanstalkReserveWindow int    `envconfig:"BEANSTALK_RESERVE_WINDOW_SECONDS" default:"5"`
	NSQDHost               string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQLookupd             string `envconfig:"NSQ_LOOKUPD"`
	NSQChannel             string `envconfig:"NSQ_CHANNEL" default:"ayl"`
	WorkerDrain            bool   `envconfig:"WORKER_DRAIN" default:"false"`

	// Default disposition policy for messages that leave fields unset
	FailedJobHandler  string `envconfig:"FAILED_JOB_HANDLER" default:"delete"`
	DecayThreshold    int    `envconfig:"DECAY_THRESHOLD" default:"3"`
	DecayDelaySeconds int    `envconfig:"DECAY_DELAY_SECONDS" default:"0"`
	MaxAgeSeconds     int    `envconfig:"MAX_AGE_SECONDS" default:"60"`
	RetryMode         string `envconfig:"RETRY_MODE" default:"attempts"`

	// Submission defaults
	DefaultPriority     uint32 `envconfig:"DEFAULT_PRIORITY" default:"512"`
	DefaultDelaySeconds int    `envconfig:"DEFAULT_DELAY_SECONDS" default:"0"`
	DefaultTTRSeconds   int    `envconfig:"DEFAULT_TTR_SECONDS" default:"120"`

	// Notifications
	SMTPHost            string `envconfig:"SMTP_HOST" default:"localhost"`
	SMTPPort            int    `envconfig:"SMTP_PORT" default:"25"`
	SMTPFrom            string `envconfig:"SMTP_FROM" default:"ayl@localhost"`
	SMTPUsername        string `envconfig:"SMTP_USERNAME"`
	SMTPPassword        string `envconfig:"SMTP_PASSWORD"`
	SMTPTLS             bool   `envconfig:"SMTP_TLS" default:"false"`
	NotifyEmailTo       string `envconfig:"NOTIFY_EMAIL_TO"`
	NotifyRatePerMinute int    `envconfig:"NOTIFY_RATE_PER_MINUTE" default:"30"`
	NotifyBurst         int    `envconfig:"NOTIFY_BURST" default:"5"`

	// Quarantine ledger
	LedgerEnabled bool   `envconfig:"LEDGER_ENABLED" default:"false"`
	DBHost        string `envconfig:"DB_HOST" default:"postgres"`
	DBPort        int    `envconfig:"DB_PORT" default:"5432"`
	DBUser        string `envconfig:"DB_USER" default:"ayl"`
	DBPass        string `envconfig:"DB_PASS" default:"password"`
	DBName        string `envconfig:"DB_NAME" default:"ayl"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Admin server
	AdminEnabled bool `envconfig:"ADMIN_ENABLED" default:"true"`
	AdminPort    int  `envconfig:"ADMIN_PORT" default:"8081"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Ignore errors, as env vars might be set in the shell
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../.env"))

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.QueueBackend {
	case BackendBeanstalk:
		if c.BeanstalkAddr == "" {
			return fmt.Errorf("%w: BEANSTALK_ADDR", ErrMissingRequired)
		}
	case BackendNSQ:
		if c.NSQDHost == "" {
			return fmt.Errorf("%w: NSQD_HOST", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("%w: QUEUE_BACKEND %q", ErrInvalid, c.QueueBackend)
	}
	if c.QueueName == "" {
		return fmt.Errorf("%w: QUEUE_NAME", ErrMissingRequired)
	}
	if c.LedgerEnabled {
		if c.DBHost == "" {
			return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
		}
		if c.DBUser == "" {
			return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
		}
		if c.DBName == "" {
			return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
		}
	}
	if c.NotifyRatePerMinute <= 0 {
		return fmt.Errorf("%w: NOTIFY_RATE_PER_MINUTE must be positive", ErrInvalid)
	}
	if err := c.DefaultPolicy().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// DefaultPolicy is the disposition policy applied to any field a message
// leaves unset.
func (c *Config) DefaultPolicy() message.Policy {
	return message.Policy{
		OnFailure:      message.Action(c.FailedJobHandler),
		DecayThreshold: c.DecayThreshold,
		DecayDelay:     time.Duration(c.DecayDelaySeconds) * time.Second,
		MaxAge:         time.Duration(c.MaxAgeSeconds) * time.Second,
		RetryMode:      message.RetryMode(c.RetryMode),
	}
}

func (c *Config) SubmitDefaults() message.Options {
	return message.Options{
		Queue:     c.QueueName,
		Priority:  c.DefaultPriority,
		Delay:     time.Duration(c.DefaultDelaySeconds) * time.Second,
		TimeToRun: time.Duration(c.DefaultTTRSeconds) * time.Second,
	}
}

// EmailRecipients splits NOTIFY_EMAIL_TO on commas, dropping blanks.
func (c *Config) EmailRecipients() []string {
	var out []string
	for _, r := range strings.Split(c.NotifyEmailTo, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPass, c.DBName)
}
