package main

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/jac4e/serveit/internal/logger"
	"github.com/jac4e/serveit/internal/service/notify"
	"github.com/jac4e/serveit/internal/service/refill"
)

const (
	defaultListenAddr     = "localhost:8000"
	defaultLoggingLevel   = logger.LevelInfo
	defaultEnvironment    = logger.EnvProduction
	defaultMailProvider   = notify.ProviderDisabled
	defaultAuditDir       = "audit"
	defaultPollInterval   = time.Minute
	defaultNotifyInterval = 5 * time.Minute
)

type Config struct {
	// Default logging level
	LogLevel string

	// Environment
	Environment string

	// Address on which the service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Shared key guarding the staff endpoints
	AdminKey string

	// Public base url, used to build checkout return addresses
	PublicURL string

	// Stripe API secret and the webhook signing secret
	StripeSecretKey     string
	StripeWebhookSecret string

	// Minimum non-cash refill in cents
	MinimumNonCash int64

	// Notification provider: smtp, gmail, mock or none
	MailProvider string
	SMTP         notify.SMTPConfig

	// Gmail OAuth material for the e-transfer mailbox
	GoogleCredentialsFile string
	GoogleTokenFile       string

	// Where rejected e-transfer notices are dumped
	AuditDir string

	// Background task cadence
	PollInterval   time.Duration
	NotifyInterval time.Duration
}

func NewConfig() *Config {
	return &Config{
		LogLevel:       defaultLoggingLevel,
		Environment:    defaultEnvironment,
		ListenAddr:     defaultListenAddr,
		MinimumNonCash: refill.DefaultMinimumNonCash,
		MailProvider:   defaultMailProvider,
		AuditDir:       defaultAuditDir,
		PollInterval:   defaultPollInterval,
		NotifyInterval: defaultNotifyInterval,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		c.LoadEnv(func(key string) string {
			return envMap[key]
		})
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}
	setInt := func(o *int) func(value string) {
		return func(value string) {
			if parsed, err := strconv.Atoi(value); err == nil {
				*o = parsed
			}
		}
	}
	setInt64 := func(o *int64) func(value string) {
		return func(value string) {
			if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
				*o = parsed
			}
		}
	}
	setDuration := func(o *time.Duration) func(value string) {
		return func(value string) {
			if parsed, err := time.ParseDuration(value); err == nil {
				*o = parsed
			}
		}
	}

	envMap := map[string]func(string){
		"RUN_ADDRESS":              setString(&c.ListenAddr),
		"DATABASE_URI":             setString(&c.DatabaseDSN),
		"LOG_LEVEL":                setString(&c.LogLevel),
		"ENVIRONMENT":              setString(&c.Environment),
		"ADMIN_KEY":                setString(&c.AdminKey),
		"PUBLIC_URL":               setString(&c.PublicURL),
		"STRIPE_SECRET_KEY":        setString(&c.StripeSecretKey),
		"STRIPE_WEBHOOK_SECRET":    setString(&c.StripeWebhookSecret),
		"REFILL_MINIMUM":           setInt64(&c.MinimumNonCash),
		"MAIL_PROVIDER":            setString(&c.MailProvider),
		"SMTP_HOST":                setString(&c.SMTP.Host),
		"SMTP_PORT":                setInt(&c.SMTP.Port),
		"SMTP_USERNAME":            setString(&c.SMTP.Username),
		"SMTP_PASSWORD":            setString(&c.SMTP.Password),
		"SMTP_FROM":                setString(&c.SMTP.From),
		"GOOGLE_CREDENTIALS_FILE":  setString(&c.GoogleCredentialsFile),
		"GOOGLE_TOKEN_FILE":        setString(&c.GoogleTokenFile),
		"AUDIT_DIR":                setString(&c.AuditDir),
		"ETRANSFER_POLL_INTERVAL":  setDuration(&c.PollInterval),
		"NOTIFY_DISPATCH_INTERVAL": setDuration(&c.NotifyInterval),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("serveit", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVarP(&c.AdminKey, "admin-key", "k", c.AdminKey, "Shared key for staff endpoints")
	fs.StringVarP(&c.PublicURL, "public-url", "u", c.PublicURL, "Public base url of the service")
	fs.StringVar(&c.StripeSecretKey, "stripe-key", c.StripeSecretKey, "Stripe API secret key")
	fs.StringVar(&c.StripeWebhookSecret, "stripe-webhook-secret", c.StripeWebhookSecret, "Stripe webhook signing secret")
	fs.StringVarP(&c.MailProvider, "mail-provider", "m", c.MailProvider, "Notification provider (smtp, gmail, mock, none)")
	fs.StringVar(&c.AuditDir, "audit-dir", c.AuditDir, "Directory for quarantined message dumps")
	fs.DurationVar(&c.PollInterval, "poll-interval", c.PollInterval, "E-transfer mailbox poll interval")
	fs.DurationVar(&c.NotifyInterval, "notify-interval", c.NotifyInterval, "Notification dispatch interval")

	return fs.Parse(args)
}
