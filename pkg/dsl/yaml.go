package dsl

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aretw0/advisor/internal/runtime"
	"github.com/aretw0/advisor/pkg/domain"
	"gopkg.in/yaml.v3"
)

type planFile struct {
	SettleDelay time.Duration `yaml:"settle_delay"`
	MinDuration time.Duration `yaml:"min_duration"`
	Steps       []stepFile    `yaml:"steps"`
}

type stepFile struct {
	ID          string        `yaml:"id"`
	Title       string        `yaml:"title"`
	MinDuration time.Duration `yaml:"min_duration"`
	Progress    int           `yaml:"progress"`
	Remote      string        `yaml:"remote"`
}

// Decode reads a plan document:
//
//	settle_delay: 2s
//	min_duration: 1s
//	steps:
//	  - id: portfolio
//	    remote: allocation
//	    progress: 50
//
// Unknown fields are rejected. Category aliases ("xai", "portfolio") are
// accepted for remote.
func Decode(r io.Reader) (runtime.Plan, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f planFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return runtime.Plan{}, fmt.Errorf("empty plan document")
		}
		return runtime.Plan{}, fmt.Errorf("failed to decode plan: %w", err)
	}

	b := New().SettleDelay(f.SettleDelay)
	if f.MinDuration > 0 {
		b.MinDuration(f.MinDuration)
	}
	for _, s := range f.Steps {
		sb := b.Step(s.ID).Title(s.Title).Progress(s.Progress)
		if s.MinDuration > 0 {
			sb.MinDuration(s.MinDuration)
		}
		if s.Remote != "" {
			c, err := domain.ParseCategory(s.Remote)
			if err != nil {
				return runtime.Plan{}, fmt.Errorf("step %q: %w", s.ID, err)
			}
			sb.Remote(c)
		}
	}
	return b.Build()
}

// ParseYAML decodes a plan from bytes.
func ParseYAML(data []byte) (runtime.Plan, error) {
	return Decode(bytes.NewReader(data))
}

// LoadFile decodes the plan stored at path.
func LoadFile(path string) (runtime.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return runtime.Plan{}, fmt.Errorf("failed to read plan file: %w", err)
	}
	return ParseYAML(data)
}
