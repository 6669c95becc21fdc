// Package config fills env-tagged structs from the process environment and
// optional dotenv files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type loader struct {
	files   []string
	environ map[string]string
}

// Option adjusts where Load reads variables from.
type Option func(*loader)

// WithEnvFiles adds dotenv files as a fallback source. Earlier files win
// over later ones and the environment wins over all of them. Missing files
// are skipped.
func WithEnvFiles(paths ...string) Option {
	return func(l *loader) { l.files = append(l.files, paths...) }
}

// WithEnvironment replaces the process environment as the primary source.
func WithEnvironment(vars map[string]string) Option {
	return func(l *loader) { l.environ = vars }
}

// Load parses variables into cfg, a pointer to a struct with `env` tags.
func Load(cfg any, opts ...Option) error {
	l := &loader{}
	for _, opt := range opts {
		opt(l)
	}

	vars, err := l.variables()
	if err != nil {
		return err
	}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: vars}); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func (l *loader) variables() (map[string]string, error) {
	vars := make(map[string]string, len(l.environ))
	if l.environ != nil {
		for k, v := range l.environ {
			vars[k] = v
		}
	} else {
		for _, kv := range os.Environ() {
			if k, v, ok := strings.Cut(kv, "="); ok {
				vars[k] = v
			}
		}
	}

	for _, path := range l.files {
		fileVars, err := godotenv.Read(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read env file %s: %w", path, err)
		}
		for k, v := range fileVars {
			if _, set := vars[k]; !set {
				vars[k] = v
			}
		}
	}
	return vars, nil
}

// MissingKeys lists the required variables a Load error reports as unset.
func MissingKeys(err error) []string {
	var agg env.AggregateError
	if !errors.As(err, &agg) {
		return nil
	}
	var keys []string
	for _, e := range agg.Errors {
		var unset env.EnvVarIsNotSetError
		if errors.As(e, &unset) {
			keys = append(keys, unset.Key)
		}
	}
	return keys
}
