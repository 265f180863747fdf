package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadDotEnv reads .env files and sets environment variables.
// It does NOT override existing env vars (env takes precedence).
// Missing files are not an error.
func LoadDotEnv(paths ...string) error {
	existing := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// Settings is the locally persisted backend configuration, written by the
// setup screen when the operator has no environment to edit.
type Settings struct {
	Supabase struct {
		URL            string `yaml:"url"`
		AnonKey        string `yaml:"anon_key"`
		ServiceRoleKey string `yaml:"service_role_key"`
		JWTSecret      string `yaml:"jwt_secret"`
	} `yaml:"supabase"`
}

// LoadSettings reads the yaml settings file. A missing file yields empty
// settings.
func LoadSettings(path string) (*Settings, error) {
	s := &Settings{}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read settings %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return s, nil
}

// SaveSettings persists s to path with owner-only permissions.
func SaveSettings(path string, s *Settings) error {
	raw, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

// ApplySettings fills Supabase fields that the environment left empty.
func (c *Config) ApplySettings(s *Settings) {
	if s == nil {
		return
	}
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = strings.TrimSpace(v)
		}
	}
	fill(&c.SupabaseURL, s.Supabase.URL)
	fill(&c.SupabaseAnonKey, s.Supabase.AnonKey)
	fill(&c.SupabaseServiceKey, s.Supabase.ServiceRoleKey)
	fill(&c.SupabaseJWTSecret, s.Supabase.JWTSecret)
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
