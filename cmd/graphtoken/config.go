package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/graphtoken/internal/logger"
)

const (
	appName              = "graphtoken"
	defaultListenAddr    = "localhost:8000"
	defaultLoggingLevel  = logger.LevelInfo
	defaultEnvironment   = logger.EnvProduction
	defaultGraphURL      = "https://graph.facebook.com"
	defaultAPIVersion    = "v19.0"
	defaultTokenFile     = "data/token.json"
	defaultIssuerTimeout = 5 * time.Second
	defaultRefreshEvery  = 12 * time.Hour
)

type Config struct {
	// Default logging level
	LogLevel string `validate:"oneof=debug info warn error"`

	// Address on which the service will be run
	ListenAddr string `validate:"required"`

	// Environment: affects log format
	Environment string `validate:"oneof=dev prod"`

	// Graph API location and version
	GraphURL   string `validate:"required,url"`
	APIVersion string `validate:"required"`

	// Graph application credentials
	AppID       string `validate:"required"`
	AppSecret   string `validate:"required"`
	RedirectURI string `validate:"required,url"`

	// Comma separated login scopes. If empty then defaults are used
	Scopes string

	// Token storage: database if DSN set, file otherwise
	TokenFile   string `validate:"required_without=DatabaseDSN"`
	DatabaseDSN string

	// Secret key
	// OAuth state is signed with it
	SecretKey string `validate:"required"`

	// Background token check interval. Zero disables the check
	RefreshInterval time.Duration `validate:"min=0s"`

	// Timeout of one issuer call
	IssuerTimeout time.Duration `validate:"min=100ms"`
}

func NewConfig() *Config {
	return &Config{
		LogLevel:        defaultLoggingLevel,
		ListenAddr:      defaultListenAddr,
		Environment:     defaultEnvironment,
		GraphURL:        defaultGraphURL,
		APIVersion:      defaultAPIVersion,
		TokenFile:       defaultTokenFile,
		RefreshInterval: defaultRefreshEvery,
		IssuerTimeout:   defaultIssuerTimeout,
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
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":        setString(&c.ListenAddr),
		"LOG_LEVEL":          setString(&c.LogLevel),
		"ENVIRONMENT":        setString(&c.Environment),
		"GRAPH_API_URL":      setString(&c.GraphURL),
		"GRAPH_API_VERSION":  setString(&c.APIVersion),
		"GRAPH_APP_ID":       setString(&c.AppID),
		"GRAPH_APP_SECRET":   setString(&c.AppSecret),
		"GRAPH_REDIRECT_URI": setString(&c.RedirectURI),
		"GRAPH_SCOPES":       setString(&c.Scopes),
		"TOKEN_FILE":         setString(&c.TokenFile),
		"DATABASE_URI":       setString(&c.DatabaseDSN),
		"SECRET_KEY":         setString(&c.SecretKey),
		"REFRESH_INTERVAL":   setDuration(&c.RefreshInterval),
		"ISSUER_TIMEOUT":     setDuration(&c.IssuerTimeout),
	}

	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			return fmt.Errorf("invalid %s. Err: %w", key, err)
		}
	}
	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet(appName, pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVar(&c.GraphURL, "graph-url", c.GraphURL, "Graph API url")
	fs.StringVar(&c.APIVersion, "api-version", c.APIVersion, "Graph API version")
	fs.StringVar(&c.AppID, "app-id", c.AppID, "Graph application id")
	fs.StringVar(&c.AppSecret, "app-secret", c.AppSecret, "Graph application secret")
	fs.StringVar(&c.RedirectURI, "redirect-uri", c.RedirectURI, "OAuth redirect uri registered for the application")
	fs.StringVar(&c.Scopes, "scopes", c.Scopes, "Comma separated login scopes")
	fs.StringVarP(&c.TokenFile, "token-file", "f", c.TokenFile, "Token file path")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string. Token is stored in database if set")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.DurationVar(&c.RefreshInterval, "refresh-interval", c.RefreshInterval, "Background token check interval, 0 disables it")
	fs.DurationVar(&c.IssuerTimeout, "issuer-timeout", c.IssuerTimeout, "Timeout of one Graph API call")

	return fs.Parse(args)
}

// Validate reports every invalid option at once
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err
	}

	msgs := make([]string, 0, len(errs))
	for _, fe := range errs {
		msgs = append(msgs, fmt.Sprintf("%s: failed on '%s'", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// ScopeList splits comma separated scopes dropping blanks
func (c *Config) ScopeList() []string {
	var scopes []string
	for _, s := range strings.Split(c.Scopes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	return scopes
}
