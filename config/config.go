// Package config loads the YAML configuration shared by the CLI commands and the server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v2"

	"cytodx/errdefs"
	"cytodx/ml"
)

// DefaultFile is looked up in the working directory and its parent.
const DefaultFile = "config.yaml"

type Config struct {
	Data     Data     `yaml:"data"`
	Model    Model    `yaml:"model"`
	Training Training `yaml:"training"`
	Database Database `yaml:"database"`
	HTTP     HTTP     `yaml:"http"`
	Serving  Serving  `yaml:"serving"`
	Log      Log      `yaml:"log"`
}

type Data struct {
	Path      string `yaml:"path"`
	Delimiter string `yaml:"delimiter"`
	Header    bool   `yaml:"header"`
}

type Model struct {
	Dir string `yaml:"dir"`
	// Keep bounds the number of published versions on disk. Zero keeps all of them.
	Keep int `yaml:"keep"`
}

type Training struct {
	Algorithm     string            `yaml:"algorithm"`
	SplitFraction float64           `yaml:"split_fraction"`
	Seed          int64             `yaml:"seed"`
	Linear        ml.LinearParams   `yaml:"linear"`
	Ensemble      ml.EnsembleParams `yaml:"ensemble"`
	// Schedule is a cron expression for periodic retraining; empty disables it.
	Schedule string `yaml:"schedule"`
}

type Database struct {
	Path string `yaml:"path"`
}

type HTTP struct {
	Port           int           `yaml:"port"`
	Timeout        time.Duration `yaml:"timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

type Serving struct {
	CacheSize int  `yaml:"cache_size"`
	Watch     bool `yaml:"watch"`
}

type Log struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

func Default() *Config {
	train := ml.DefaultTrainConfig()
	return &Config{
		Data: Data{
			Path:      "data/data.csv",
			Delimiter: ",",
		},
		Model: Model{Dir: "model", Keep: 10},
		Training: Training{
			Algorithm:     string(train.Algorithm),
			SplitFraction: train.SplitFraction,
			Seed:          train.Seed,
			Linear:        train.Linear,
			Ensemble:      train.Ensemble,
		},
		Database: Database{Path: "cytodx.db"},
		HTTP: HTTP{
			Port:           8080,
			Timeout:        30 * time.Second,
			AllowedOrigins: []string{"*"},
		},
		Serving: Serving{CacheSize: 4},
		Log: Log{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load decodes path over Default. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errdefs.ErrInvalidConfig, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Resolve returns explicit if set, otherwise the first DefaultFile found in the working
// directory or its parent, otherwise "".
func Resolve(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, candidate := range []string{DefaultFile, filepath.Join("..", DefaultFile)} {
		if _, err := os.Stat(candidate); !errors.Is(err, fs.ErrNotExist) {
			return candidate
		}
	}
	return ""
}

func (c *Config) Validate() error {
	if _, err := c.TrainConfig(); err != nil {
		return err
	}
	if len([]rune(c.Data.Delimiter)) != 1 {
		return fmt.Errorf("%w: data.delimiter must be one character", errdefs.ErrInvalidConfig)
	}
	if c.Model.Dir == "" {
		return fmt.Errorf("%w: model.dir is required", errdefs.ErrInvalidConfig)
	}
	if c.Model.Keep < 0 {
		return fmt.Errorf("%w: model.keep must not be negative", errdefs.ErrInvalidConfig)
	}
	if c.Training.Schedule != "" {
		if _, err := cron.ParseStandard(c.Training.Schedule); err != nil {
			return fmt.Errorf("%w: training.schedule: %v", errdefs.ErrInvalidConfig, err)
		}
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("%w: http.port %d out of range", errdefs.ErrInvalidConfig, c.HTTP.Port)
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("%w: http.timeout must be positive", errdefs.ErrInvalidConfig)
	}
	if c.Serving.CacheSize < 0 {
		return fmt.Errorf("%w: serving.cache_size must not be negative", errdefs.ErrInvalidConfig)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log.level %q", errdefs.ErrInvalidConfig, c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: log.format %q", errdefs.ErrInvalidConfig, c.Log.Format)
	}
	return nil
}

// TrainConfig converts the training section for ml.Train.
func (c *Config) TrainConfig() (ml.TrainConfig, error) {
	alg, err := ml.ParseAlgorithm(c.Training.Algorithm)
	if err != nil {
		return ml.TrainConfig{}, err
	}
	tc := ml.TrainConfig{
		Algorithm:     alg,
		SplitFraction: c.Training.SplitFraction,
		Seed:          c.Training.Seed,
		Linear:        c.Training.Linear,
		Ensemble:      c.Training.Ensemble,
	}
	if err := tc.Validate(); err != nil {
		return ml.TrainConfig{}, err
	}
	return tc, nil
}

// Delimiter returns the data delimiter as a rune.
func (c *Config) Delimiter() rune {
	return []rune(c.Data.Delimiter)[0]
}
