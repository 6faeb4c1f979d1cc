// Package config loads the YAML configuration shared by the server and
// client binaries.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/server"
	"github.com/zeusync/replica/sdk/go/client"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Log        LogConfig     `yaml:"log"`
	Server     server.Config `yaml:"server"`
	Client     client.Config `yaml:"client"`
	World      WorldConfig   `yaml:"world"`
	SchemaFile string        `yaml:"schema_file"`
}

type LogConfig struct {
	Level log.Level `yaml:"level"`
}

type WorldConfig struct {
	MaxCascadeSteps int `yaml:"max_cascade_steps"`
}

func Default() Config {
	return Config{
		Log:        LogConfig{Level: log.LevelInfo},
		Server:     server.DefaultServerConfig(),
		Client:     client.DefaultClientConfig(),
		SchemaFile: "schema.yaml",
	}
}

// Load reads the file at path over the defaults.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes YAML from r over the defaults and validates the result.
// Unknown keys are rejected.
func Parse(r io.Reader) (Config, error) {
	c := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Client.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.SchemaFile == "" {
		return fmt.Errorf("%w: schema_file is required", ErrInvalidConfig)
	}
	if c.World.MaxCascadeSteps < 0 {
		return fmt.Errorf("%w: max_cascade_steps must not be negative", ErrInvalidConfig)
	}
	return nil
}
