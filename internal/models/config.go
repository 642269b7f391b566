package models

import (
	"os"

	"gopkg.in/yaml.v2"
)

// defaultBufferM is the buffer radius applied when the config omits one.
const defaultBufferM = 500

type Config struct {
	ServerAddr     string `yaml:"server_addr"`
	DatabaseURL    string `yaml:"database_url"`
	KafkaBroker    string `yaml:"kafka_broker"`
	KafkaTopic     string `yaml:"kafka_topic"`
	DefaultBufferM int    `yaml:"default_buffer_m"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.DefaultBufferM <= 0 {
		cfg.DefaultBufferM = defaultBufferM
	}
	return &cfg, nil
}
