package config

import (
	"encoding/json"
	"os"
	"time"
)

type MongoConfig struct {
	URI      string `json:"uri"`
	Database string `json:"database"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type ServerConfig struct {
	ListenAddr string `json:"listen_addr"`
}

type LimitsConfig struct {
	EditWindowMinutes   int `json:"edit_window_minutes"`
	DeleteWindowMinutes int `json:"delete_window_minutes"`
	MaxMessageBytes     int `json:"max_message_bytes"`
}

type Config struct {
	Mongo  MongoConfig  `json:"mongo"`
	Redis  RedisConfig  `json:"redis"`
	Server ServerConfig `json:"server"`
	Limits LimitsConfig `json:"limits"`
}

func Default() *Config {
	return &Config{
		Mongo:  MongoConfig{URI: "mongodb://localhost:27017", Database: "securechat"},
		Redis:  RedisConfig{Addr: "localhost:6379"},
		Server: ServerConfig{ListenAddr: "localhost:9090"},
		Limits: LimitsConfig{
			EditWindowMinutes:   15,
			DeleteWindowMinutes: 30,
			MaxMessageBytes:     64 * 1024,
		},
	}
}

// Load reads a JSON config file. Missing fields keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) EditWindow() time.Duration {
	return time.Duration(c.Limits.EditWindowMinutes) * time.Minute
}

func (c *Config) DeleteWindow() time.Duration {
	return time.Duration(c.Limits.DeleteWindowMinutes) * time.Minute
}
