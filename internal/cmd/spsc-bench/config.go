package main

import "time"

type Config struct {
	Capacity int    `mapstructure:"capacity" yaml:"capacity" validate:"required,gt=0"`
	Count    int64  `mapstructure:"count" yaml:"count" validate:"gte=0"`
	Impl     string `mapstructure:"impl" yaml:"impl" validate:"required,oneof=spsc chan smallnest"`
	LogLevel string `mapstructure:"log_level" yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	Trace    bool   `mapstructure:"trace" yaml:"trace"`

	Payload  PayloadConfig  `mapstructure:"payload" yaml:"payload" validate:"required"`
	Wait     WaitConfig     `mapstructure:"wait" yaml:"wait" validate:"required"`
	Pacing   PacingConfig   `mapstructure:"pacing" yaml:"pacing"`
	Affinity AffinityConfig `mapstructure:"affinity" yaml:"affinity"`
	Report   ReportConfig   `mapstructure:"report" yaml:"report" validate:"required"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics" validate:"required"`
}

type PayloadConfig struct {
	Type     string `mapstructure:"type" yaml:"type" validate:"required,oneof=sequence random file"`
	File     string `mapstructure:"file" yaml:"file" validate:"required_if=Type file"`
	Encoding string `mapstructure:"encoding" yaml:"encoding" validate:"omitempty,oneof=plain gzip zstd"`
	Seed     uint64 `mapstructure:"seed" yaml:"seed"`
}

type WaitConfig struct {
	Policy      string        `mapstructure:"policy" yaml:"policy" validate:"required,oneof=yield spin sleep"`
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts" validate:"gte=0"`
	SleepFor    time.Duration `mapstructure:"sleep_for" yaml:"sleep_for" validate:"gte=0"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gte=0"`
}

type PacingConfig struct {
	ThrottleEvery int64         `mapstructure:"throttle_every" yaml:"throttle_every" validate:"gte=0"`
	ThrottleFor   time.Duration `mapstructure:"throttle_for" yaml:"throttle_for" validate:"gte=0"`
	JitterMax     time.Duration `mapstructure:"jitter_max" yaml:"jitter_max" validate:"gte=0"`
	SampleEvery   int64         `mapstructure:"sample_every" yaml:"sample_every" validate:"gte=0"`
}

type AffinityConfig struct {
	Enabled     bool `mapstructure:"enabled" yaml:"enabled"`
	ProducerCPU int  `mapstructure:"producer_cpu" yaml:"producer_cpu" validate:"gte=0"`
	ConsumerCPU int  `mapstructure:"consumer_cpu" yaml:"consumer_cpu" validate:"gte=0"`
}

type ReportConfig struct {
	Interval time.Duration   `mapstructure:"interval" yaml:"interval" validate:"required,gt=0"`
	Format   string          `mapstructure:"format" yaml:"format" validate:"required,oneof=json human"`
	OutFile  string          `mapstructure:"out_file" yaml:"out_file"`
	Encoding string          `mapstructure:"encoding" yaml:"encoding" validate:"omitempty,oneof=plain gzip zstd"`
	DB       *ReportDBConfig `mapstructure:"db" yaml:"db"`
}

type ReportDBConfig struct {
	DSN   string `mapstructure:"dsn" yaml:"dsn" validate:"required"`
	Table string `mapstructure:"table" yaml:"table" validate:"omitempty,alphanum"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr" validate:"required_if=Enabled true"`
}

// Verification follows the payload: a sequence is checked value by value,
// anything else by checksum.
func (c *Config) VerifyMode() string {
	if c.Payload.Type == "sequence" {
		return verifySequence
	}
	return verifyChecksum
}
