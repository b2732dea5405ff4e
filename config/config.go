// File: config/config.go
// Package config parses ring buffer and IPC service sizing from YAML,
// grounded on sakateka-yanet2's use of gopkg.in/yaml.v3 and
// github.com/c2h5oh/datasize for human-readable byte sizes ("1MB").
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package config

import (
	"os"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"

	"github.com/loopmesh/qbipc/api"
)

// Ring configures a single named ring buffer segment (spec §4.1, §4.2).
type Ring struct {
	Name          string            `yaml:"name"`
	Bytes         datasize.ByteSize `yaml:"bytes"`
	Overwrite     bool              `yaml:"overwrite"`
	UserDataBytes int               `yaml:"user_data_bytes"`
}

// Service configures an IPC service endpoint (spec §4.7).
type Service struct {
	Name          string            `yaml:"name"`
	Transport     string            `yaml:"transport"` // "shm" | "socket"
	MaxMsgSize    datasize.ByteSize `yaml:"max_msg_size"`
	MaxBufferSize datasize.ByteSize `yaml:"max_buffer_size"`
	RateLimit     int               `yaml:"rate_limit"`
	PollPriority  string            `yaml:"poll_priority"` // "low" | "med" | "high"
}

// Config is the top-level document loaded by Load.
type Config struct {
	Rings    []Ring    `yaml:"rings"`
	Services []Service `yaml:"services"`
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, api.NewSyscallError("config: read "+path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "config: parse "+path).WithCause(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks size and transport fields against the invariants
// spec.md §6 "Testable properties" assumes hold before open/connect.
func (c *Config) Validate() error {
	for _, r := range c.Rings {
		if r.Name == "" {
			return api.NewError(api.ErrCodeInvalidArgument, "config: ring missing name")
		}
		if r.Bytes == 0 {
			return api.NewError(api.ErrCodeInvalidArgument, "config: ring "+r.Name+" has zero bytes")
		}
	}
	for _, s := range c.Services {
		if s.Name == "" {
			return api.NewError(api.ErrCodeInvalidArgument, "config: service missing name")
		}
		switch s.Transport {
		case "shm", "socket":
		default:
			return api.NewError(api.ErrCodeInvalidArgument, "config: service "+s.Name+" has unknown transport "+s.Transport)
		}
		if s.MaxMsgSize == 0 {
			return api.NewError(api.ErrCodeInvalidArgument, "config: service "+s.Name+" has zero max_msg_size")
		}
	}
	return nil
}
