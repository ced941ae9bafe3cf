package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"kokorod/internal/pkg/kokorod/segment"
)

type Config struct {
	Text          string  `mapstructure:"text"`
	Output        string  `mapstructure:"output"`
	Voice         string  `mapstructure:"voice"`
	LangCode      string  `mapstructure:"lang_code"`
	Speed         float32 `mapstructure:"speed"`
	Backend       string  `mapstructure:"backend"`
	EngineURL     string  `mapstructure:"engine_url"`
	EngineCommand string  `mapstructure:"engine_command"`
	MaxChunkSize  int     `mapstructure:"max_chunk_size"`
	FadeDuration  float64 `mapstructure:"fade_duration"`
	MaxConcurrent int     `mapstructure:"max_concurrency"`
	ServeAddr     string  `mapstructure:"serve_addr"`
	Serve         bool    `mapstructure:"serve"`
	Stdio         bool    `mapstructure:"stdio"`
	LogLevel      string  `mapstructure:"log_level"`
	LogFile       string  `mapstructure:"log_file"`
	ListVoices    bool    `mapstructure:"list_voices"`
}

func LoadAndParse() (*Config, error) {
	viper.SetDefault("output", "output.wav")
	viper.SetDefault("voice", "af_heart")
	viper.SetDefault("lang_code", "a")
	viper.SetDefault("speed", 1.0)
	viper.SetDefault("backend", "mock")
	viper.SetDefault("engine_url", "")
	viper.SetDefault("engine_command", "")
	viper.SetDefault("max_chunk_size", segment.DefaultMaxChunkSize)
	viper.SetDefault("fade_duration", 0.1)
	viper.SetDefault("max_concurrency", 2)
	viper.SetDefault("serve_addr", ":8000")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_file", "")

	flagSet := pflag.NewFlagSet("kokorod", pflag.ContinueOnError)
	configFile := flagSet.StringP("config", "c", "", "Path to config file")
	flagSet.StringP("text", "t", "", "Text to synthesize (use '-' to read from stdin)")
	flagSet.StringP("file", "f", "", "Read text from file")
	flagSet.StringP("output", "o", "", "Output WAV file")
	flagSet.StringP("voice", "v", "", "Voice to use")
	flagSet.String("lang-code", "", "Language code (a=American English, b=British English)")
	flagSet.Float32P("speed", "s", 1.0, "Speech speed (0.5-2.0)")
	flagSet.StringP("backend", "b", "", "Engine backend (mock, kokoro-http, kokoro-exec)")
	flagSet.String("engine-url", "", "Base URL of the kokoro-http backend")
	flagSet.String("engine-command", "", "Command line for the kokoro-exec backend")
	flagSet.Int("max-chunk-size", segment.DefaultMaxChunkSize, "Maximum characters per synthesis chunk")
	flagSet.Float64("fade-duration", 0.1, "Crossfade length between chunks in seconds")
	flagSet.Int("max-concurrency", 2, "Maximum chunk synthesis calls in flight")
	flagSet.Bool("serve", false, "Run the HTTP server instead of one-shot synthesis")
	flagSet.String("serve-addr", "", "HTTP listen address")
	flagSet.Bool("stdio", false, "Serve the JSON line protocol on stdin/stdout")
	flagSet.StringP("log-level", "l", "", "Log level (debug, info, warn, error)")
	flagSet.String("log-file", "", "Log file path")
	flagSet.Bool("list-voices", false, "List available voices and exit")
	helpFlag := flagSet.BoolP("help", "h", false, "Show help message")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	if *helpFlag {
		fmt.Fprintf(os.Stderr, "Usage: kokorod [options] [text]\n\nOptions:\n")
		flagSet.PrintDefaults()
		os.Exit(0)
	}

	bindings := map[string]string{
		"text":            "text",
		"output":          "output",
		"voice":           "voice",
		"lang_code":       "lang-code",
		"speed":           "speed",
		"backend":         "backend",
		"engine_url":      "engine-url",
		"engine_command":  "engine-command",
		"max_chunk_size":  "max-chunk-size",
		"fade_duration":   "fade-duration",
		"max_concurrency": "max-concurrency",
		"serve":           "serve",
		"serve_addr":      "serve-addr",
		"stdio":           "stdio",
		"log_level":       "log-level",
		"log_file":        "log-file",
		"list_voices":     "list-voices",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, flagSet.Lookup(flag)); err != nil {
			return nil, err
		}
	}

	if *configFile != "" {
		viper.SetConfigFile(*configFile)
	} else {
		viper.SetConfigName("kokorod.cfg")
		viper.SetConfigType("toml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("configs")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "kokorod"))
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	viper.SetEnvPrefix("KOKOROD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	textFile, _ := flagSet.GetString("file")
	if textFile != "" {
		content, err := os.ReadFile(textFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read text file: %w", err)
		}
		cfg.Text = strings.TrimSpace(string(content))
	} else if cfg.Text == "-" {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
		cfg.Text = strings.TrimSpace(string(content))
	} else if cfg.Text == "" {
		args := flagSet.Args()
		if len(args) > 0 {
			cfg.Text = strings.Join(args, " ")
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Text == "" && !c.ListVoices && !c.Serve && !c.Stdio {
		return fmt.Errorf("text is required (use -t, -f, or provide as argument)")
	}
	if c.Speed < 0.5 || c.Speed > 2.0 {
		return fmt.Errorf("speed must be between 0.5 and 2.0")
	}
	if c.MaxChunkSize < 1 {
		return fmt.Errorf("max-chunk-size must be at least 1")
	}
	if c.FadeDuration < 0 {
		return fmt.Errorf("fade-duration cannot be negative")
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max-concurrency must be at least 1")
	}
	if c.Serve && c.Stdio {
		return fmt.Errorf("--serve and --stdio are mutually exclusive")
	}
	return nil
}
