package cmd

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Icerzack/wordlobby/internal/storage"
)

type Config struct {
	Apps struct {
		LogLevel string `yaml:"log_level"`
		LogFile  string `yaml:"log_file"`
		Rest     struct {
			Port  int `yaml:"port"`
			Token struct {
				Key       string        `yaml:"key"`
				Algorithm string        `yaml:"algorithm"`
				TTL       time.Duration `yaml:"ttl"`
			} `yaml:"token"`
		} `yaml:"rest"`
	} `yaml:"apps"`
	Storage struct {
		Type          string `yaml:"type"`
		RedisAddress  string `yaml:"redis_address"`
		RedisPassword string `yaml:"redis_password"`
		RedisDB       int    `yaml:"redis_db"`
	} `yaml:"storage"`
}

// DefaultConfig returns the settings used when no config file is given.
func DefaultConfig() *Config {
	var config Config
	config.Apps.LogLevel = "info"
	config.Apps.Rest.Port = 8080
	config.Apps.Rest.Token.Key = "dummy"
	config.Apps.Rest.Token.Algorithm = "HS256"
	config.Apps.Rest.Token.TTL = 2 * time.Hour
	config.Storage.Type = storage.InMemoryStorageType
	config.Storage.RedisAddress = "localhost:6379"
	return &config
}

// ParseConfig reads the YAML file at path on top of DefaultConfig.
func ParseConfig(path string, logger *zap.Logger) (*Config, error) {
	config := DefaultConfig()
	if path == "" {
		return config, nil
	}

	file, err := os.Open(path)
	if err != nil {
		logger.Error("Failed to open config file", zap.Error(err))
		return nil, fmt.Errorf("error opening file %w", err)
	}
	defer file.Close()

	err = yaml.NewDecoder(file).Decode(config)
	if err != nil {
		logger.Error("Failed to decode config file", zap.Error(err))
		return nil, fmt.Errorf("error decoding file %w", err)
	}

	switch config.Storage.Type {
	case storage.InMemoryStorageType, storage.RedisStorageType:
	default:
		return nil, fmt.Errorf("unknown storage type %q", config.Storage.Type)
	}

	return config, nil
}
