// Package config provides the read-only configuration handle exposed
// to plugins through the Core Facade. It is backed by
// github.com/spf13/viper, the configuration library used in the
// retrieved kiosk404/echoryn repo, but the value handed to plugins is
// an immutable Snapshot: the host application's own viper instance may
// keep reloading (file watches, env overrides) after the facade is
// built, and plugins must not observe that churn mid-execution or be
// able to mutate configuration out from under the host.
package config

import (
	"bytes"
	"fmt"

	"github.com/spf13/viper"
)

// Snapshot is an immutable view over configuration values, taken at a
// point in time from a *viper.Viper.
type Snapshot struct {
	v *viper.Viper
}

// NewSnapshot takes a point-in-time copy of v's settings. Later writes
// to v are not observed through the returned Snapshot.
func NewSnapshot(v *viper.Viper) *Snapshot {
	frozen := viper.New()
	for key, val := range v.AllSettings() {
		frozen.Set(key, val)
	}
	return &Snapshot{v: frozen}
}

// Load builds a Snapshot from YAML bytes, the format the teacher's own
// flow/manifest fixtures use elsewhere in this module.
func Load(yamlBytes []byte) (*Snapshot, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(yamlBytes)); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	return NewSnapshot(v), nil
}

// Empty returns a Snapshot with no values set, for hosts that have no
// configuration to hand to plugins.
func Empty() *Snapshot {
	return NewSnapshot(viper.New())
}

func (s *Snapshot) Get(key string) any       { return s.v.Get(key) }
func (s *Snapshot) GetString(key string) string { return s.v.GetString(key) }
func (s *Snapshot) GetInt(key string) int       { return s.v.GetInt(key) }
func (s *Snapshot) GetBool(key string) bool     { return s.v.GetBool(key) }
func (s *Snapshot) IsSet(key string) bool       { return s.v.IsSet(key) }

// Sub returns a Snapshot scoped to a nested key, mirroring viper.Sub,
// or nil if the key holds no sub-tree.
func (s *Snapshot) Sub(key string) *Snapshot {
	sub := s.v.Sub(key)
	if sub == nil {
		return nil
	}
	return NewSnapshot(sub)
}

// AllSettings returns a copy of every key/value pair in the snapshot.
func (s *Snapshot) AllSettings() map[string]any {
	settings := s.v.AllSettings()
	out := make(map[string]any, len(settings))
	for k, v := range settings {
		out[k] = v
	}
	return out
}
