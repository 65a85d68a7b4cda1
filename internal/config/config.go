// Package config handles global configuration loading using viper.
package config

import "time"

// GlobalConfig represents the top-level configuration.
// Maps to the `rdt:` root key in YAML.
type GlobalConfig struct {
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Receiver ReceiverConfig `mapstructure:"receiver"`
	Sender   SenderConfig   `mapstructure:"sender"`
	Report   ReportConfig   `mapstructure:"report"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level      string           `mapstructure:"level"`       // trace / debug / info / warn / error
	Format     string           `mapstructure:"format"`      // pattern / text / json
	Pattern    string           `mapstructure:"pattern"`     // used when format = pattern
	TimeFormat string           `mapstructure:"time_format"` // Go layout for %time
	File       FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Endpoints ───

// ImpairmentConfig holds the simulated loss and corruption probabilities
// applied to outgoing frames.
type ImpairmentConfig struct {
	LossProbability       float64 `mapstructure:"loss_probability"`
	CorruptionProbability float64 `mapstructure:"corruption_probability"`
}

// ReceiverConfig configures the receiving side of a transfer.
type ReceiverConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	OutputDir        string        `mapstructure:"output_dir"`
	OutputPrefix     string        `mapstructure:"output_prefix"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"` // 0 = block until a datagram arrives
	TOS              int           `mapstructure:"tos"`          // IPv4 TOS byte, 0 = leave unset
	TraceFile        string        `mapstructure:"trace_file"`   // pcap output, empty = disabled
	ImpairmentConfig `mapstructure:",squash"`
}

// SenderConfig configures the serving side of a transfer.
type SenderConfig struct {
	Listen           string        `mapstructure:"listen"`
	Root             string        `mapstructure:"root"`
	Timeout          time.Duration `mapstructure:"timeout"` // retransmission timeout
	MaxRetries       int           `mapstructure:"max_retries"`
	TOS              int           `mapstructure:"tos"`
	TraceFile        string        `mapstructure:"trace_file"`
	ImpairmentConfig `mapstructure:",squash"`
}

// ─── Report ───

// ReportConfig selects where transfer summaries go.
type ReportConfig struct {
	Type   string            `mapstructure:"type"`   // none / console / kafka
	Format string            `mapstructure:"format"` // console: text / json
	Kafka  KafkaReportConfig `mapstructure:"kafka"`
}

// KafkaReportConfig configures the Kafka summary reporter.
type KafkaReportConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	Compression  string        `mapstructure:"compression"` // none / gzip / snappy / lz4
}
