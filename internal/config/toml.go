// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Server      ServerConfig      `toml:"server"`
	Replication ReplicationConfig `toml:"replication"`
	Autodump    AutodumpConfig    `toml:"autodump"`
	Log         LogConfig         `toml:"log"`
	Fields      []FieldConfig     `toml:"fields"`
}

// ServerConfig maps listener and process settings.
type ServerConfig struct {
	Address        *string `toml:"address"`
	Port           *int    `toml:"port"`
	UDPAddress     *string `toml:"udp-address"`
	UDPPort        *int    `toml:"udp-port"`
	IDType         *string `toml:"id-type"`
	Pidfile        *string `toml:"pidfile"`
	MetricsAddress *string `toml:"metrics-address"`
}

// ReplicationConfig maps the slave the server forwards updates to.
type ReplicationConfig struct {
	SlaveAddress *string `toml:"slave-address"`
	SlavePort    *int    `toml:"slave-port"`
}

// AutodumpConfig maps periodic dump settings.
type AutodumpConfig struct {
	Target  *string `toml:"target"`
	Delay   *string `toml:"delay"`
	History *string `toml:"history"`
}

// LogConfig maps logging settings.
type LogConfig struct {
	Verbose *bool `toml:"verbose"`
}

// FieldConfig is one predefined field.
type FieldConfig struct {
	Name string `toml:"name"`
	Type string `toml:"type"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key: %s", undecoded[0])
	}
	for i, f := range cfg.Fields {
		if f.Name == "" || f.Type == "" {
			return FileConfig{}, fmt.Errorf("field #%d needs both name and type", i+1)
		}
	}
	return cfg, nil
}

// FieldPairs returns the [[fields]] entries as name/type pairs.
func (c FileConfig) FieldPairs() [][2]string {
	out := make([][2]string, 0, len(c.Fields))
	for _, f := range c.Fields {
		out = append(out, [2]string{f.Name, f.Type})
	}
	return out
}
