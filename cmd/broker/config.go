package main

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/faxretriever/broker/internal/logger"
)

const (
	defaultListenAddr   = "localhost:8000"
	defaultLoggingLevel = logger.LevelInfo
	defaultEnvironment  = logger.EnvProduction
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the broker service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret key used to sign session JWTs
	SecretKey string

	// Master key for sealing reseller credentials at rest
	// Never the same value as SecretKey
	MasterKey string

	// Shared key guarding the admin surface; empty disables it
	AdminKey string

	// Provider OAuth token endpoint to exchange reseller credentials at
	ProviderTokenURL string

	// Environment
	Environment string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:    defaultLoggingLevel,
		ListenAddr:  defaultListenAddr,
		Environment: defaultEnvironment,
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

	envMap := map[string]func(string){
		"RUN_ADDRESS":        setString(&c.ListenAddr),
		"DATABASE_URI":       setString(&c.DatabaseDSN),
		"SECRET_KEY":         setString(&c.SecretKey),
		"MASTER_KEY":         setString(&c.MasterKey),
		"ADMIN_KEY":          setString(&c.AdminKey),
		"PROVIDER_TOKEN_URL": setString(&c.ProviderTokenURL),
		"LOG_LEVEL":          setString(&c.LogLevel),
		"ENVIRONMENT":        setString(&c.Environment),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("broker", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key for signing session tokens")
	fs.StringVarP(&c.MasterKey, "master-key", "m", c.MasterKey, "Master key for sealing reseller credentials")
	fs.StringVarP(&c.AdminKey, "admin-key", "k", c.AdminKey, "Shared key for the admin surface")
	fs.StringVarP(&c.ProviderTokenURL, "provider-url", "p", c.ProviderTokenURL, "Provider OAuth token endpoint")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")

	return fs.Parse(args)
}

// Validate checks the settings without which the broker cannot start.
func (c *Config) Validate() error {
	switch {
	case c.DatabaseDSN == "":
		return errors.New("database DSN is required")
	case c.SecretKey == "":
		return errors.New("secret key is required")
	case c.MasterKey == "":
		return errors.New("master key is required")
	case c.MasterKey == c.SecretKey:
		return errors.New("master key must differ from secret key")
	case c.ProviderTokenURL == "":
		return errors.New("provider token URL is required")
	}
	return nil
}
