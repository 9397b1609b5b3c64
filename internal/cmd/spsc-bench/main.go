package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile  string
	config   Config
	validate = validator.New()
	logger   zerolog.Logger
)

func setupLogger() {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
		NoColor:    false,
	}

	// producer and consumer trace concurrently; serialize the writes only
	logger = zerolog.New(zerolog.SyncWriter(output)).
		With().
		Timestamp().
		Str("app", "spsc-bench").
		Logger()

	log.Logger = logger
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	}
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

var rootCmd = &cobra.Command{
	Use:          "spsc-bench",
	Short:        "Lock-free SPSC ring buffer bench",
	Long:         `Runs one producer and one consumer over a bounded lock-free ring buffer, verifies ordering and reports hand-off throughput.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogger()
		setLogLevel(viper.GetString("log_level"))
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.Info().
			Str("config_file", viper.ConfigFileUsed()).
			Msg("Starting bench")

		var err error
		config, err = loadConfig()
		if err != nil {
			return err
		}

		logger.Info().
			Int("capacity", config.Capacity).
			Int64("count", config.Count).
			Str("impl", config.Impl).
			Str("payload", config.Payload.Type).
			Str("wait_policy", config.Wait.Policy).
			Int("max_attempts", config.Wait.MaxAttempts).
			Msg("Configuration loaded successfully")

		return performBench(cmd.Context(), &config)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	flags.Int("capacity", 1024, "Usable slots in the buffer")
	flags.Int64("count", 500000, "Number of items to hand off, 0 runs until interrupted")
	flags.String("impl", "spsc", "Buffer implementation: spsc, chan or smallnest")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.Bool("trace", false, "Log every produced and consumed item at debug level")

	flags.String("payload", "sequence", "Payload type: sequence, random or file")
	flags.String("payload-file", "", "File of newline separated integers for the file payload")
	flags.String("payload-encoding", "plain", "Encoding of the payload file (plain, gzip, zstd)")
	flags.Uint64("seed", 0, "Seed for the random payload, 0 picks one")

	flags.String("wait-policy", "yield", "What to do between failed attempts: yield, spin or sleep")
	flags.Int("max-attempts", 0, "Give up after this many failed attempts per item, 0 never gives up")
	flags.Duration("sleep-for", time.Microsecond, "Pause used by the sleep wait policy")
	flags.Duration("timeout", 0, "Abort the run after this long, 0 disables")

	flags.Int64("throttle-every", 100000, "Producer pauses every N items, 0 disables")
	flags.Duration("throttle-for", time.Microsecond, "Length of the producer pause")
	flags.Duration("jitter-max", 0, "Random sleep up to this long after every item on both sides")
	flags.Int64("sample-every", 64, "Record one wait latency sample every N items, 0 disables")

	flags.Bool("pin", false, "Pin producer and consumer to CPUs (Linux only)")
	flags.Int("producer-cpu", 0, "CPU for the producer when pinning")
	flags.Int("consumer-cpu", 1, "CPU for the consumer when pinning")

	flags.Duration("report-interval", time.Second, "Interval between progress reports")
	flags.String("report-format", "human", "Final report format: human or json")
	flags.String("report-out", "", "File for the json report")
	flags.String("report-encoding", "plain", "Encoding of the report file (plain, gzip, zstd)")

	flags.Bool("metrics-enabled", false, "Enable Prometheus metrics server")
	flags.String("metrics-addr", ":2112", "Address to listen on for metrics server")

	viper.BindPFlag("capacity", flags.Lookup("capacity"))
	viper.BindPFlag("count", flags.Lookup("count"))
	viper.BindPFlag("impl", flags.Lookup("impl"))
	viper.BindPFlag("log_level", flags.Lookup("log-level"))
	viper.BindPFlag("trace", flags.Lookup("trace"))
	viper.BindPFlag("payload.type", flags.Lookup("payload"))
	viper.BindPFlag("payload.file", flags.Lookup("payload-file"))
	viper.BindPFlag("payload.encoding", flags.Lookup("payload-encoding"))
	viper.BindPFlag("payload.seed", flags.Lookup("seed"))
	viper.BindPFlag("wait.policy", flags.Lookup("wait-policy"))
	viper.BindPFlag("wait.max_attempts", flags.Lookup("max-attempts"))
	viper.BindPFlag("wait.sleep_for", flags.Lookup("sleep-for"))
	viper.BindPFlag("wait.timeout", flags.Lookup("timeout"))
	viper.BindPFlag("pacing.throttle_every", flags.Lookup("throttle-every"))
	viper.BindPFlag("pacing.throttle_for", flags.Lookup("throttle-for"))
	viper.BindPFlag("pacing.jitter_max", flags.Lookup("jitter-max"))
	viper.BindPFlag("pacing.sample_every", flags.Lookup("sample-every"))
	viper.BindPFlag("affinity.enabled", flags.Lookup("pin"))
	viper.BindPFlag("affinity.producer_cpu", flags.Lookup("producer-cpu"))
	viper.BindPFlag("affinity.consumer_cpu", flags.Lookup("consumer-cpu"))
	viper.BindPFlag("report.interval", flags.Lookup("report-interval"))
	viper.BindPFlag("report.format", flags.Lookup("report-format"))
	viper.BindPFlag("report.out_file", flags.Lookup("report-out"))
	viper.BindPFlag("report.encoding", flags.Lookup("report-encoding"))
	viper.BindPFlag("metrics.enabled", flags.Lookup("metrics-enabled"))
	viper.BindPFlag("metrics.addr", flags.Lookup("metrics-addr"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	viper.SetEnvPrefix("SPSC_BENCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Printf("Error reading config file: %s\n", err)
			os.Exit(1)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
