package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type LMConfig struct {
	Name  string `yaml:"name"`
	Path  string `yaml:"path"`
	Order int    `yaml:"order"` // 0 keeps the file's order
}

type Config struct {
	// Weights maps a feature name to one weight per score component.
	Weights     map[string][]float64 `yaml:"weights"`
	WeightsFile string               `yaml:"weights_file"`

	LM          []LMConfig `yaml:"lm"`
	PhraseTable string     `yaml:"phrase_table"`
	// Reordering names the lexicalised reordering feature; empty disables it.
	Reordering string `yaml:"reordering"`

	MaxPhraseLength       int  `yaml:"max_phrase_length"`
	TableLimit            int  `yaml:"table_limit"`
	DistortionLimit       int  `yaml:"distortion_limit"` // negative means unlimited
	SourceStartPosMatters bool `yaml:"source_start_pos_matters"`
	LMStats               bool `yaml:"lm_stats"`

	Search struct {
		StackSize    int     `yaml:"stack_size"`
		EarlyDiscard float64 `yaml:"early_discard"`
	} `yaml:"search"`

	NBest struct {
		Size          int  `yaml:"size"`
		ArcMultiplier int  `yaml:"arc_multiplier"`
		NeedAllArcs   bool `yaml:"need_all_arcs"`
	} `yaml:"nbest"`

	Gibbs struct {
		BurnIn          int      `yaml:"burn_in"`
		Iterations      int      `yaml:"iterations"`
		Temperature     float64  `yaml:"temperature"`
		Operators       []string `yaml:"operators"`
		Seed            uint64   `yaml:"seed"`
		CheckpointEvery int      `yaml:"checkpoint_every"`
		Print           bool     `yaml:"print"`
	} `yaml:"gibbs"`

	Log struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
		Dir   string `yaml:"dir"`
	} `yaml:"log"`

	Storage struct {
		DB string `yaml:"db"`
	} `yaml:"storage"`

	Workers int `yaml:"workers"`
}

// Default returns the settings used for anything the file leaves out.
func Default() *Config {
	cfg := &Config{
		Reordering:      "msd",
		DistortionLimit: 6,
		Workers:         1,
	}
	cfg.Search.StackSize = 100
	cfg.NBest.Size = 1
	cfg.NBest.ArcMultiplier = 5
	cfg.Gibbs.BurnIn = 10
	cfg.Gibbs.Iterations = 100
	cfg.Gibbs.Temperature = 1
	cfg.Log.Level = "info"
	cfg.Storage.DB = "derivo.db"
	return cfg
}

// LoadConfig reads path over the defaults, then applies the environment and
// the weights file. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	// 2. Load YAML config
	cfg := Default()
	if path != "" {
		file, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	// 3. Override with Environment Variables if present
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	// 4. Weights file wins over inline weights
	if cfg.WeightsFile != "" {
		f, err := os.Open(cfg.WeightsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open weights file: %w", err)
		}
		defer f.Close()
		weights, err := ReadWeights(f)
		if err != nil {
			return nil, fmt.Errorf("weights file %s: %w", cfg.WeightsFile, err)
		}
		if cfg.Weights == nil {
			cfg.Weights = make(map[string][]float64)
		}
		for name, w := range weights {
			cfg.Weights[name] = w
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if db := os.Getenv("DERIVO_DB"); db != "" {
		c.Storage.DB = db
	}
	if level := os.Getenv("DERIVO_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if seed := os.Getenv("DERIVO_SEED"); seed != "" {
		v, err := strconv.ParseUint(seed, 10, 64)
		if err != nil {
			return fmt.Errorf("DERIVO_SEED: %w", err)
		}
		c.Gibbs.Seed = v
	}
	return nil
}

// ReadWeights parses lines of the form "name v1 v2 ...". Blank lines and
// lines starting with '#' are skipped.
func ReadWeights(r io.Reader) (map[string][]float64, error) {
	out := make(map[string][]float64)
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: %q has no values", line, fields[0])
		}
		vals := make([]float64, len(fields)-1)
		for i, f := range fields[1:] {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			vals[i] = v
		}
		out[fields[0]] = vals
	}
	return out, sc.Err()
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	add := func(format string, args ...any) {
		result = multierror.Append(result, fmt.Errorf(format, args...))
	}

	if c.PhraseTable == "" {
		add("phrase_table is required")
	}
	if len(c.Weights) == 0 {
		add("no weights configured")
	}
	for i, l := range c.LM {
		if l.Name == "" || l.Path == "" {
			add("lm[%d]: name and path are required", i)
		}
		if l.Order < 0 {
			add("lm[%d]: order must not be negative", i)
		}
	}
	if c.Search.StackSize <= 0 {
		add("search.stack_size must be positive")
	}
	if c.NBest.Size <= 0 {
		add("nbest.size must be positive")
	}
	if c.NBest.ArcMultiplier <= 0 {
		add("nbest.arc_multiplier must be positive")
	}
	if c.Gibbs.BurnIn < 0 || c.Gibbs.Iterations < 0 {
		add("gibbs.burn_in and gibbs.iterations must not be negative")
	}
	if c.Gibbs.Temperature <= 0 {
		add("gibbs.temperature must be positive")
	}
	if c.Gibbs.CheckpointEvery < 0 {
		add("gibbs.checkpoint_every must not be negative")
	}
	if c.Workers <= 0 {
		add("workers must be positive")
	}
	if c.MaxPhraseLength < 0 || c.TableLimit < 0 {
		add("max_phrase_length and table_limit must not be negative")
	}

	return result.ErrorOrNil()
}
