// Package config loads the daemon configuration: the listen address, the
// store path and the static pod list the registry is populated from.
package config

import (
	"fmt"
	"net"
	"os"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	// listen_addr validates "host:port" with a numeric port.
	validate.RegisterValidation("listen_addr", func(fl validator.FieldLevel) bool {
		_, port, err := net.SplitHostPort(fl.Field().String())
		if err != nil || port == "" {
			return false
		}
		_, err = net.LookupPort("tcp", port)
		return err == nil
	})
}

type Config struct {
	Listen    string      `yaml:"listen" default:":8080" validate:"listen_addr"`
	StorePath string      `yaml:"store" default:"bipio.db" validate:"required"`
	QueueSize int         `yaml:"queue_size" default:"64" validate:"gte=1"`
	Domain    string      `yaml:"domain" default:"localhost:8080"`
	Pods      []PodConfig `yaml:"pods" validate:"dive"`
}

// PodConfig is one entry of the static pod list. Order is registration order.
type PodConfig struct {
	Name   string         `yaml:"name" validate:"required"`
	Config map[string]any `yaml:"config"`
}

// Load reads, defaults and validates a YAML config file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("applying config defaults: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
