// Package config loads runtime configuration from YAML files with
// environment-variable overrides, backed by viper.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Loader wraps a viper instance with the load order: defaults, then file,
// then environment (APP_ prefixed, dots become underscores).
type Loader struct {
	v           *viper.Viper
	envPrefix   string
	loadedFiles []string
}

// NewLoader creates a Loader with the given env prefix (empty = "APP").
func NewLoader(envPrefix string) *Loader {
	if envPrefix == "" {
		envPrefix = "APP"
	}
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v, envPrefix: envPrefix}
}

// SetDefault registers a default value for a key.
func (l *Loader) SetDefault(key string, value interface{}) {
	l.v.SetDefault(key, value)
}

// LoadFile reads a config file into the loader. Missing file is an error;
// callers that treat config as optional should check os.Stat first.
func (l *Loader) LoadFile(path string) error {
	l.v.SetConfigFile(path)
	if err := l.v.MergeInConfig(); err != nil {
		return err
	}
	l.loadedFiles = append(l.loadedFiles, path)
	return nil
}

// Unmarshal decodes the merged settings into v (mapstructure tags).
func (l *Loader) Unmarshal(out interface{}) error {
	return l.v.Unmarshal(out)
}

// UnmarshalKey decodes one subtree into out.
func (l *Loader) UnmarshalKey(key string, out interface{}) error {
	return l.v.UnmarshalKey(key, out)
}

// GetString returns a string setting.
func (l *Loader) GetString(key string) string { return l.v.GetString(key) }

// GetInt returns an int setting.
func (l *Loader) GetInt(key string) int { return l.v.GetInt(key) }

// GetBool returns a bool setting.
func (l *Loader) GetBool(key string) bool { return l.v.GetBool(key) }

// IsSet reports whether the key is present in any source.
func (l *Loader) IsSet(key string) bool { return l.v.IsSet(key) }

// LoadedFiles returns the files merged so far, in order.
func (l *Loader) LoadedFiles() []string { return l.loadedFiles }

// GetViper exposes the underlying viper for integration points.
func (l *Loader) GetViper() *viper.Viper { return l.v }
