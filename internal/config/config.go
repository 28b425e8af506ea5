package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/gestalt-social/gestalt/internal/logger"
)

//go:embed defaults.yaml
var defaultYAML []byte

// Version is set at startup from build information.
var Version = "dev"

var validate = validator.New()

var hexKeyRe = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Config holds every sub-config.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"  validate:"required"`
	Client   ClientConfig   `mapstructure:"client"   validate:"required"`
	Relays   RelaysConfig   `mapstructure:"relays"   validate:"required"`
	Identity IdentityConfig `mapstructure:"identity"`
	Storage  StorageConfig  `mapstructure:"storage"  validate:"required"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

func init() {
	registerCustomValidators()

	validate.RegisterStructValidation(func(sl validator.StructLevel) {
		cfg := sl.Current().Interface().(Config)
		performCrossFieldValidation(sl, cfg)
	}, Config{})
}

func registerCustomValidators() {
	// Relay URLs must be websocket endpoints.
	if err := validate.RegisterValidation("relayurl", func(fl validator.FieldLevel) bool {
		raw := fl.Field().String()
		u, err := url.Parse(raw)
		if err != nil {
			return false
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return false
		}
		return u.Host != ""
	}); err != nil {
		logger.Error("Failed to register relayurl validator", zap.Error(err))
	}

	// Public keys are 64-character lowercase hex.
	if err := validate.RegisterValidation("pubkey", func(fl validator.FieldLevel) bool {
		key := fl.Field().String()
		if key == "" {
			return true // optional field
		}
		return hexKeyRe.MatchString(key)
	}); err != nil {
		logger.Error("Failed to register pubkey validator", zap.Error(err))
	}

	if err := validate.RegisterValidation("timeout_duration", func(fl validator.FieldLevel) bool {
		d := fl.Field().Interface().(time.Duration)
		return d >= 100*time.Millisecond && d <= time.Hour
	}); err != nil {
		logger.Error("Failed to register timeout_duration validator", zap.Error(err))
	}

	if err := validate.RegisterValidation("reasonable_duration", func(fl validator.FieldLevel) bool {
		d := fl.Field().Interface().(time.Duration)
		return d >= time.Second && d <= 24*time.Hour
	}); err != nil {
		logger.Error("Failed to register reasonable_duration validator", zap.Error(err))
	}

	if err := validate.RegisterValidation("log_level", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "debug", "info", "warn", "error", "fatal":
			return true
		}
		return false
	}); err != nil {
		logger.Error("Failed to register log_level validator", zap.Error(err))
	}

	if err := validate.RegisterValidation("log_format", func(fl validator.FieldLevel) bool {
		format := fl.Field().String()
		return format == "console" || format == "json"
	}); err != nil {
		logger.Error("Failed to register log_format validator", zap.Error(err))
	}
}

func performCrossFieldValidation(sl validator.StructLevel, cfg Config) {
	// The publish window must fit inside the query window, otherwise a
	// follow (query + publish) can never complete before its own timeout.
	if cfg.Client.PublishTimeout > cfg.Client.QueryTimeout*2 {
		sl.ReportError(cfg.Client.PublishTimeout, "PublishTimeout", "PublishTimeout", "publish_timeout_too_long", "")
	}

	if cfg.Identity.SecretKey != "" && cfg.Identity.KeyFile != "" {
		sl.ReportError(cfg.Identity.SecretKey, "SecretKey", "SecretKey", "identity_conflict", "")
	}

	// Disk-backed storage needs a path.
	if !cfg.Storage.InMemory && cfg.Storage.Path == "" {
		sl.ReportError(cfg.Storage.Path, "Path", "Path", "storage_path_missing", "")
	}
}

// SetVersion sets the version from build information.
func SetVersion(v string) {
	Version = v
}

// Load merges defaults → file (optional) → env vars, validates, and returns
// the config. It also initializes the global logger from the logging section.
func Load(path string, log *zap.Logger) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("GESTALT") // GESTALT_CLIENT_QUERY_TIMEOUT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 1. defaults.yaml (embedded)
	if err := v.ReadConfig(bytes.NewReader(defaultYAML)); err != nil {
		return nil, fmt.Errorf("read defaults: %w", err)
	}

	// 2. optional user file
	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("gestalt")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.MergeInConfig(); err != nil {
			if log != nil {
				log.Info("No gestalt.yaml found, using defaults")
			}
		} else if log != nil {
			log.Info("Loaded gestalt.yaml from current directory")
		}
	}

	// 3. env already merged by AutomaticEnv()

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, formatValidationError(err)
	}

	if err := initializeLogger(cfg.Logging); err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	if log != nil {
		log.Info("configuration loaded",
			zap.String("version", Version),
			zap.Int("relays", len(cfg.Relays.URLs)),
		)
	}
	return &cfg, nil
}

// Validate re-validates a programmatically constructed config.
func Validate(cfg *Config) error {
	if err := validate.Struct(*cfg); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func initializeLogger(lc LoggingConfig) error {
	return logger.Init(
		logger.WithLevel(lc.Level),
		logger.WithFormat(lc.Format),
		logger.WithFile(lc.FilePath),
		logger.WithVersion(Version),
		logger.WithComponent("gestalt"),
		logger.WithRotation(lc.MaxSize, lc.MaxBackups, lc.MaxAge),
	)
}

// formatValidationError converts validator errors into readable messages.
func formatValidationError(err error) error {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	var messages []string
	for _, fe := range validationErrors {
		messages = append(messages, fieldErrorMessage(fe))
	}
	return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(messages, "\n  - "))
}

func fieldErrorMessage(fe validator.FieldError) string {
	field := fe.Field()
	value := fe.Value()
	param := fe.Param()

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required but not provided", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s (got: %v)", field, param, value)
	case "max":
		return fmt.Sprintf("%s must be at most %s (got: %v)", field, param, value)
	case "relayurl":
		return fmt.Sprintf("%s must be a ws:// or wss:// URL (got: %v)", field, value)
	case "pubkey":
		return fmt.Sprintf("%s must be a 64-character hexadecimal string (got: %v)", field, value)
	case "timeout_duration":
		return fmt.Sprintf("%s must be between 100ms and 1 hour (got: %v)", field, value)
	case "reasonable_duration":
		return fmt.Sprintf("%s must be between 1 second and 24 hours (got: %v)", field, value)
	case "log_level":
		return fmt.Sprintf("%s must be one of: debug, info, warn, error, fatal (got: %v)", field, value)
	case "log_format":
		return fmt.Sprintf("%s must be either 'console' or 'json' (got: %v)", field, value)
	case "publish_timeout_too_long":
		return fmt.Sprintf("%s must not exceed twice the query timeout", field)
	case "identity_conflict":
		return "identity secret_key and key_file are mutually exclusive"
	case "storage_path_missing":
		return "storage path is required unless in_memory is set"
	default:
		return fmt.Sprintf("%s validation failed: %s (got: %v)", field, fe.Tag(), value)
	}
}
