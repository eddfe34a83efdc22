package main

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/mpetrenko/postqueue/internal/logger"
	"github.com/mpetrenko/postqueue/internal/models"
	"github.com/mpetrenko/postqueue/internal/service/authflow"
)

const (
	defaultListenAddr       = "localhost:8000"
	defaultLoggingLevel     = logger.LevelInfo
	defaultEnvironment      = logger.EnvProduction
	defaultFrontendURL      = "http://localhost:3000"
	defaultDispatchInterval = 15 * time.Second
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the postqueue service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret key
	// Used for signing internal service JWTs and deriving the credential
	// encryption key
	SecretKey string

	// Frontend base URL the connect flow redirects back to
	FrontendURL string

	// Public base URL of this service, used to build OAuth redirect URIs
	PublicBaseURL string

	// How often the dispatcher polls for due posts
	DispatchInterval time.Duration

	// Per platform OAuth app registrations
	Clients map[models.Platform]authflow.ClientCredentials

	// Environment
	Environment string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:         defaultLoggingLevel,
		ListenAddr:       defaultListenAddr,
		FrontendURL:      defaultFrontendURL,
		DispatchInterval: defaultDispatchInterval,
		Environment:      defaultEnvironment,
		Clients:          make(map[models.Platform]authflow.ClientCredentials),
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
	setDuration := func(o *time.Duration) func(value string) {
		return func(value string) {
			if d, err := time.ParseDuration(value); err == nil && value != "" {
				*o = d
			}
		}
	}
	setClient := func(platform models.Platform, secret bool) func(value string) {
		return func(value string) {
			if value == "" {
				return
			}
			creds := c.Clients[platform]
			if secret {
				creds.ClientSecret = value
			} else {
				creds.ClientID = value
			}
			c.Clients[platform] = creds
		}
	}

	envMap := map[string]func(string){
		"RUN_ADDRESS":       setString(&c.ListenAddr),
		"DATABASE_URI":      setString(&c.DatabaseDSN),
		"SECRET_KEY":        setString(&c.SecretKey),
		"LOG_LEVEL":         setString(&c.LogLevel),
		"ENVIRONMENT":       setString(&c.Environment),
		"FRONTEND_URL":      setString(&c.FrontendURL),
		"PUBLIC_BASE_URL":   setString(&c.PublicBaseURL),
		"DISPATCH_INTERVAL": setDuration(&c.DispatchInterval),

		"TWITTER_CLIENT_ID":       setClient(models.PlatformTwitter, false),
		"TWITTER_CLIENT_SECRET":   setClient(models.PlatformTwitter, true),
		"LINKEDIN_CLIENT_ID":      setClient(models.PlatformLinkedIn, false),
		"LINKEDIN_CLIENT_SECRET":  setClient(models.PlatformLinkedIn, true),
		"FACEBOOK_CLIENT_ID":      setClient(models.PlatformFacebook, false),
		"FACEBOOK_CLIENT_SECRET":  setClient(models.PlatformFacebook, true),
		"INSTAGRAM_CLIENT_ID":     setClient(models.PlatformInstagram, false),
		"INSTAGRAM_CLIENT_SECRET": setClient(models.PlatformInstagram, true),
		"REDDIT_CLIENT_ID":        setClient(models.PlatformReddit, false),
		"REDDIT_CLIENT_SECRET":    setClient(models.PlatformReddit, true),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("postqueue", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.FrontendURL, "frontend-url", "f", c.FrontendURL, "Frontend base URL for connect flow redirects")
	fs.StringVarP(&c.PublicBaseURL, "public-url", "p", c.PublicBaseURL, "Public base URL of this service")
	fs.DurationVarP(&c.DispatchInterval, "dispatch-interval", "i", c.DispatchInterval, "Dispatcher polling interval")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")

	return fs.Parse(args)
}
