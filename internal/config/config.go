package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Logging  LoggingConfig
	Pipeline PipelineConfig
	Cache    CacheConfig
	Audio    AudioConfig
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// PipelineConfig holds retiming pipeline configuration
type PipelineConfig struct {
	OutputFrameRate  float64 // frames per second of every produced clip
	ProgressInterval int     // emit progress every N frames
	TimestampEpsilon float64 // keeps mapped source timestamps short of the clip end
	DefaultDuration  float64 // analyzer fallback when no duration is probeable
	DefaultBitrate   int64   // analyzer fallback; a larger measured value always wins
	DefaultFrameRate float64 // analyzer fallback
}

// CacheConfig holds per-segment blob cache configuration
type CacheConfig struct {
	MaxEntries int
}

// AudioConfig holds background audio defaults
type AudioConfig struct {
	SampleRate int
	Channels   int
	FadeIn     float64
	FadeOut    float64
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		// Defaults always unmarshal; keep the signature simple for callers.
		panic(fmt.Sprintf("default config failed to unmarshal: %v", err))
	}
	return &config
}

func setDefaults() {
	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")

	// Pipeline defaults
	viper.SetDefault("pipeline.outputFrameRate", 60.0)
	viper.SetDefault("pipeline.progressInterval", 10)
	viper.SetDefault("pipeline.timestampEpsilon", 0.001)
	viper.SetDefault("pipeline.defaultDuration", 5.0)
	viper.SetDefault("pipeline.defaultBitrate", 6500000)
	viper.SetDefault("pipeline.defaultFrameRate", 30.0)

	// Cache defaults
	viper.SetDefault("cache.maxEntries", 64)

	// Audio defaults
	viper.SetDefault("audio.sampleRate", 44100)
	viper.SetDefault("audio.channels", 2)
	viper.SetDefault("audio.fadeIn", 0.0)
	viper.SetDefault("audio.fadeOut", 0.0)
}
