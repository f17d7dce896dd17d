// Package config loads the YAML configuration shared by the commands.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	"modelkit/logging"
)

type Config struct {
	Log      logging.Config `yaml:"log"`
	Database struct {
		Path string `yaml:"path" validate:"required"`
	} `yaml:"database"`
	Pool struct {
		Size  int  `yaml:"size" validate:"gte=1"`
		Watch bool `yaml:"watch"`
	} `yaml:"pool"`
	Schema struct {
		BaseURI string `yaml:"base_uri" validate:"required,url"`
	} `yaml:"schema"`
	Training struct {
		ModelDir        string `yaml:"model_dir" validate:"required"`
		MaxDepth        int    `yaml:"max_depth" validate:"gte=0"`
		MinSamplesSplit int    `yaml:"min_samples_split" validate:"omitempty,gte=2"`
	} `yaml:"training"`
	Models []ModelConfig `yaml:"models" validate:"dive"`
}

// ModelConfig selects a registered model and, optionally, the directory of a
// trained artifact to construct it from instead of the packaged one.
type ModelConfig struct {
	QualifiedName string `yaml:"qualified_name" validate:"required"`
	ArtifactDir   string `yaml:"artifact_dir"`
}

var validate = validator.New()

// Default is the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads, defaults and validates the YAML file at path.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var cfg Config
	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Database.Path == "" {
		c.Database.Path = "modelkit.db"
	}
	if c.Pool.Size == 0 {
		c.Pool.Size = 16
	}
	if c.Schema.BaseURI == "" {
		c.Schema.BaseURI = "https://schemas.modelkit.local"
	}
	if c.Training.ModelDir == "" {
		c.Training.ModelDir = "./models"
	}
}

func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", e.Namespace(), e.Tag()))
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

// ArtifactDir returns the configured artifact directory of a model, or "" to
// use the packaged artifact.
func (c *Config) ArtifactDir(qualifiedName string) string {
	for _, m := range c.Models {
		if m.QualifiedName == qualifiedName {
			return m.ArtifactDir
		}
	}
	return ""
}
