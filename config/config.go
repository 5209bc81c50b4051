// Package config reads the client settings from the environment.
//
// Every field of Config is bound to an environment variable by its env tag.
// Durations are integer millisecond counts, booleans also accept yes and no.
// Empty variables count as unset.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/bitrise-io/go-utils/v2/env"
	parser "github.com/caarlos0/env/v11"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/joho/godotenv"
	"github.com/pdfcraft/go-pdfcraft/conversion"
	"github.com/pdfcraft/go-pdfcraft/network"
	"github.com/pdfcraft/go-pdfcraft/poll"
)

// Secret is a string that is masked when printed.
type Secret string

// String ...
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return strings.Repeat("*", 5)
}

// Config ...
type Config struct {
	APIKey  Secret `env:"PDF_CRAFT_API_KEY,required"`
	BaseURL string `env:"PDF_CRAFT_BASE_URL"`

	MaxWait          time.Duration `env:"PDF_CRAFT_MAX_WAIT_MS"`
	CheckInterval    time.Duration `env:"PDF_CRAFT_CHECK_INTERVAL_MS"`
	MaxCheckInterval time.Duration `env:"PDF_CRAFT_MAX_CHECK_INTERVAL_MS"`
	BackoffFactor    float64       `env:"PDF_CRAFT_BACKOFF_FACTOR"`

	UploadMaxRetries int  `env:"PDF_CRAFT_UPLOAD_MAX_RETRIES"`
	APIRetryMax      int  `env:"PDF_CRAFT_API_RETRY_MAX"`
	Debug            bool `env:"PDF_CRAFT_DEBUG"`
	// AnalyticsURL receives usage events. Nothing is sent when empty.
	AnalyticsURL string `env:"PDF_CRAFT_ANALYTICS_URL"`

	AWSRegion          string `env:"AWS_REGION"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey Secret `env:"AWS_SECRET_ACCESS_KEY"`
}

// Default returns the config with every optional setting at its default.
func Default() Config {
	polling := poll.DefaultConfig()
	return Config{
		BaseURL:          conversion.DefaultBaseURL,
		MaxWait:          polling.MaxWait,
		CheckInterval:    polling.CheckInterval,
		MaxCheckInterval: polling.MaxCheckInterval,
		BackoffFactor:    polling.BackoffFactor,
		UploadMaxRetries: 3,
	}
}

// LoadDotEnv loads KEY=value files into the process environment. Variables
// that are already set win. Without paths ".env" is loaded when it exists.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		if _, err := os.Stat(".env"); errors.Is(err, os.ErrNotExist) {
			return nil
		}
		paths = []string{".env"}
	}
	if err := godotenv.Load(paths...); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// Load reads the config from envRepo on top of Default and validates it once.
func Load(envRepo env.Repository) (Config, error) {
	cfg := Default()
	if err := parse(&cfg, envRepo); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate ...
func (c Config) Validate() error {
	var errs []error
	if c.APIKey == "" {
		errs = append(errs, errors.New("API key is required"))
	}
	if err := c.Polling().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.UploadMaxRetries < 1 {
		errs = append(errs, fmt.Errorf("upload max retries must be at least 1, got %d", c.UploadMaxRetries))
	}
	if c.APIRetryMax < 0 {
		errs = append(errs, fmt.Errorf("API retry max must not be negative, got %d", c.APIRetryMax))
	}
	return errors.Join(errs...)
}

// Polling ...
func (c Config) Polling() poll.Config {
	return poll.Config{
		MaxWait:          c.MaxWait,
		CheckInterval:    c.CheckInterval,
		MaxCheckInterval: c.MaxCheckInterval,
		BackoffFactor:    c.BackoffFactor,
	}
}

// S3 ...
func (c Config) S3() network.S3Params {
	return network.S3Params{
		Region:          c.AWSRegion,
		AccessKeyID:     c.AWSAccessKeyID,
		SecretAccessKey: string(c.AWSSecretAccessKey),
	}
}

// ClientOptions builds the options of conversion.New.
func (c Config) ClientOptions(envRepo env.Repository, logger log.Logger) conversion.Options {
	opts := conversion.Options{
		APIKey:      string(c.APIKey),
		BaseURL:     c.BaseURL,
		APIRetryMax: c.APIRetryMax,
		Logger:      logger,
		S3:          c.S3(),
		EnvRepo:     envRepo,
	}
	if tracker := conversion.NewTracker(c.AnalyticsURL, envRepo, logger); tracker != nil {
		opts.Tracker = tracker
	}
	return opts
}

// ConvertOptions returns the polling and upload settings of a conversion.
func (c Config) ConvertOptions() conversion.ConvertOptions {
	return conversion.ConvertOptions{
		Polling:          c.Polling(),
		UploadMaxRetries: c.UploadMaxRetries,
	}
}

// Print logs the effective config, secrets masked.
func (c Config) Print(logger log.Logger) {
	logger.Infof("Configuration:")
	v := reflect.ValueOf(c)
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		name := tagOf(t.Field(i))
		if name == "" {
			continue
		}
		logger.Printf("- %s: %s", name, valueString(v.Field(i)))
	}
}

func parse(cfg *Config, envRepo env.Repository) error {
	return parser.ParseWithOptions(cfg, parser.Options{
		Environment: environ(envRepo),
		FuncMap: map[reflect.Type]parser.ParserFunc{
			reflect.TypeOf(time.Duration(0)): parseMilliseconds,
			reflect.TypeOf(false):            parseBool,
		},
	})
}

// environ returns the non-empty variables of envRepo. The map is never nil,
// so the process environment is not consulted behind envRepo's back.
func environ(envRepo env.Repository) map[string]string {
	vars := map[string]string{}
	for _, kv := range envRepo.List() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if value = strings.TrimSpace(value); value != "" {
			vars[key] = value
		}
	}
	return vars
}

func parseMilliseconds(value string) (interface{}, error) {
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("can't convert %q to milliseconds: %w", value, err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func parseBool(value string) (interface{}, error) {
	switch strings.ToLower(value) {
	case "yes", "y":
		return true, nil
	case "no", "n":
		return false, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return nil, fmt.Errorf("can't convert %q to bool: %w", value, err)
	}
	return b, nil
}

func tagOf(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("env"), ",")
	return name
}

func valueString(v reflect.Value) string {
	if s, ok := v.Interface().(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", v.Interface())
}
