package config

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/hannahoo/UCLA-CS-118/internal/core"
)

// configRoot is the top-level wrapper matching the YAML structure `rdt: ...`.
type configRoot struct {
	RDT GlobalConfig `mapstructure:"rdt"`
}

// Load loads configuration from path. An empty path loads defaults and
// environment overrides only.
// Env vars map through the key replacer, e.g. "rdt.log.level" → RDT_LOG_LEVEL.
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&root, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.RDT

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *GlobalConfig {
	cfg, err := Load("")
	if err != nil {
		// Only reachable through a bad RDT_* environment override.
		panic(err)
	}
	return cfg
}

// setDefaults sets default values for configuration.
// All keys use the "rdt." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("rdt.log.level", "info")
	v.SetDefault("rdt.log.format", "pattern")
	v.SetDefault("rdt.log.pattern", "%time [%level] %msg %field\n")
	v.SetDefault("rdt.log.time_format", "2006-01-02 15:04:05")
	v.SetDefault("rdt.log.file.enabled", false)
	v.SetDefault("rdt.log.file.path", "rdt.log")
	v.SetDefault("rdt.log.file.rotation.max_size_mb", 100)
	v.SetDefault("rdt.log.file.rotation.max_age_days", 30)
	v.SetDefault("rdt.log.file.rotation.max_backups", 5)
	v.SetDefault("rdt.log.file.rotation.compress", true)

	// Metrics defaults
	v.SetDefault("rdt.metrics.enabled", false)
	v.SetDefault("rdt.metrics.listen", ":9091")
	v.SetDefault("rdt.metrics.path", "/metrics")

	// Receiver defaults
	v.SetDefault("rdt.receiver.host", "localhost")
	v.SetDefault("rdt.receiver.port", 0)
	v.SetDefault("rdt.receiver.output_dir", ".")
	v.SetDefault("rdt.receiver.output_prefix", "new_")
	v.SetDefault("rdt.receiver.read_timeout", "0s")
	v.SetDefault("rdt.receiver.tos", 0)
	v.SetDefault("rdt.receiver.trace_file", "")
	v.SetDefault("rdt.receiver.loss_probability", 0.0)
	v.SetDefault("rdt.receiver.corruption_probability", 0.0)

	// Sender defaults
	v.SetDefault("rdt.sender.listen", ":5000")
	v.SetDefault("rdt.sender.root", ".")
	v.SetDefault("rdt.sender.timeout", "500ms")
	v.SetDefault("rdt.sender.max_retries", 50)
	v.SetDefault("rdt.sender.tos", 0)
	v.SetDefault("rdt.sender.trace_file", "")
	v.SetDefault("rdt.sender.loss_probability", 0.0)
	v.SetDefault("rdt.sender.corruption_probability", 0.0)

	// Report defaults
	v.SetDefault("rdt.report.type", "none")
	v.SetDefault("rdt.report.format", "text")
	v.SetDefault("rdt.report.kafka.brokers", []string{})
	v.SetDefault("rdt.report.kafka.topic", "rdt-transfers")
	v.SetDefault("rdt.report.kafka.batch_timeout", "100ms")
	v.SetDefault("rdt.report.kafka.compression", "snappy")
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Log.Level)] {
		return fmt.Errorf("%w: invalid log level: %s (must be trace/debug/info/warn/error)", core.ErrConfigInvalid, cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "pattern", "text", "json":
	default:
		return fmt.Errorf("%w: invalid log format: %s (must be pattern/text/json)", core.ErrConfigInvalid, cfg.Log.Format)
	}
	if cfg.Log.File.Enabled && cfg.Log.File.Path == "" {
		return fmt.Errorf("%w: log.file.path is required when log.file.enabled=true", core.ErrConfigInvalid)
	}

	// ── Receiver ──
	if err := cfg.Receiver.ImpairmentConfig.Validate("receiver"); err != nil {
		return err
	}
	if err := validatePort("receiver.port", cfg.Receiver.Port); err != nil {
		return err
	}
	if cfg.Receiver.ReadTimeout < 0 {
		return fmt.Errorf("%w: receiver.read_timeout must not be negative", core.ErrConfigInvalid)
	}
	if err := validateTOS("receiver.tos", cfg.Receiver.TOS); err != nil {
		return err
	}
	if cfg.Receiver.OutputDir == "" {
		cfg.Receiver.OutputDir = "."
	}

	// ── Sender ──
	if err := cfg.Sender.ImpairmentConfig.Validate("sender"); err != nil {
		return err
	}
	if cfg.Sender.Timeout <= 0 {
		return fmt.Errorf("%w: sender.timeout must be positive", core.ErrConfigInvalid)
	}
	if cfg.Sender.MaxRetries < 0 {
		return fmt.Errorf("%w: sender.max_retries must not be negative", core.ErrConfigInvalid)
	}
	if err := validateTOS("sender.tos", cfg.Sender.TOS); err != nil {
		return err
	}
	if cfg.Sender.Root == "" {
		cfg.Sender.Root = "."
	}

	// ── Report ──
	switch cfg.Report.Type {
	case "", "none":
		cfg.Report.Type = "none"
	case "console":
		if cfg.Report.Format != "text" && cfg.Report.Format != "json" {
			return fmt.Errorf("%w: invalid report.format: %s (must be text/json)", core.ErrConfigInvalid, cfg.Report.Format)
		}
	case "kafka":
		if len(cfg.Report.Kafka.Brokers) == 0 {
			return fmt.Errorf("%w: report.kafka.brokers is required when report.type=kafka", core.ErrConfigInvalid)
		}
		if cfg.Report.Kafka.Topic == "" {
			return fmt.Errorf("%w: report.kafka.topic is required when report.type=kafka", core.ErrConfigInvalid)
		}
	default:
		return fmt.Errorf("%w: unsupported report.type: %s (must be none/console/kafka)", core.ErrConfigInvalid, cfg.Report.Type)
	}

	return nil
}

// Validate checks that both probabilities lie in [0,1]. NaN is rejected.
func (c ImpairmentConfig) Validate(section string) error {
	if !validProbability(c.LossProbability) {
		return fmt.Errorf("%w: %s.loss_probability must be between 0 and 1, got %v", core.ErrConfigInvalid, section, c.LossProbability)
	}
	if !validProbability(c.CorruptionProbability) {
		return fmt.Errorf("%w: %s.corruption_probability must be between 0 and 1, got %v", core.ErrConfigInvalid, section, c.CorruptionProbability)
	}
	return nil
}

func validProbability(p float64) bool { return p >= 0 && p <= 1 }

func validatePort(key string, port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("%w: %s out of range: %d", core.ErrConfigInvalid, key, port)
	}
	return nil
}

func validateTOS(key string, tos int) error {
	if tos < 0 || tos > 255 {
		return fmt.Errorf("%w: %s out of range: %d", core.ErrConfigInvalid, key, tos)
	}
	return nil
}
