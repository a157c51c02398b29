package process

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// Config describes the local program that answers scoring calls.
type Config struct {
	Command string            `yaml:"command" json:"command"`
	Args    []string          `yaml:"args" json:"args"`
	Env     map[string]string `yaml:"env" json:"env"`
	// Dir is the working directory; empty means the current one.
	Dir string `yaml:"dir" json:"dir"`
}

// Enabled reports whether a command is configured.
func (c Config) Enabled() bool {
	return c.Command != ""
}

func (c Config) Validate() error {
	if c.Command == "" {
		return errors.New("process command is required")
	}
	for k := range c.Env {
		if k == "" || k == EnvEndpoint || k == EnvAttempt {
			return fmt.Errorf("process env %q is reserved or empty", k)
		}
	}
	return nil
}

// environ renders Env as sorted KEY=VALUE pairs.
func (c Config) environ() []string {
	out := make([]string, 0, len(c.Env))
	for _, k := range slices.Sorted(maps.Keys(c.Env)) {
		out = append(out, k+"="+c.Env[k])
	}
	return out
}
