package config

import (
	"encoding/hex"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// DBConfig holds the database connection parameters.
type DBConfig struct {
	Host     string `json:"host"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	Port     int    `json:"port"`
	SSLMode  string `json:"sslmode"`
	TimeZone string `json:"timezone"`
}

// LoggerConfig holds the logging configuration.
type LoggerConfig struct {
	Level      string `json:"level"`  // e.g., "debug", "info", "warn", "error"
	Format     string `json:"format"` // "text" or "json"
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"` // megabytes
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`
}

// CustodianNode describes one remote key-share custodian in the fleet.
type CustodianNode struct {
	NodeID    string `json:"node_id"`
	ServerURL string `json:"server_url"`
}

// Config holds the orchestrator's configuration values.
type Config struct {
	ServerPort     string          `json:"server_port"`
	ShareSecret    string          `json:"share_secret"` // hex, 32 bytes
	SSSThreshold   int             `json:"sss_threshold"`
	CustodianFleet []CustodianNode `json:"custodian_fleet"`
	Database       DBConfig        `json:"database"`
	Logger         LoggerConfig    `json:"logger"`
}

// NodeConfig holds a single custodian node's configuration values.
type NodeConfig struct {
	NodeID      string       `json:"node_id"`
	ServerPort  string       `json:"server_port"`
	ShareSecret string       `json:"share_secret"` // hex, 32 bytes
	Database    DBConfig     `json:"database"`
	Logger      LoggerConfig `json:"logger"`
}

// LoadConfig reads the orchestrator configuration from a file.
func LoadConfig(path string) (*Config, error) {
	config := &Config{}
	if err := decodeFile(path, config); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadNodeConfig reads a custodian node configuration from a file.
func LoadNodeConfig(path string) (*NodeConfig, error) {
	config := &NodeConfig{}
	if err := decodeFile(path, config); err != nil {
		return nil, err
	}
	return config, nil
}

func decodeFile(path string, v interface{}) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return json.NewDecoder(file).Decode(v)
}

// DecodeSecret decodes a hex-encoded 32-byte share secret.
func DecodeSecret(s string) ([]byte, error) {
	secret, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "share secret is not valid hex")
	}
	if len(secret) != 32 {
		return nil, errors.Errorf("share secret must be 32 bytes, got %d", len(secret))
	}
	return secret, nil
}
