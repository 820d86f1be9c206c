// Package config implements the dot-notation user settings surface: a
// bundled-defaults file merged with a user override file, both flat-ish
// JSON documents addressed by dotted key paths.
//
// File watching and hot-reload belong to the UI shell; this package
// only implements the accessor surface over the two files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ravnmail/ravncore/internal/logging"
)

// Settings holds merged bundled-default and user-override configuration,
// addressable by dot-notation key paths (e.g. "appearance.theme.mode").
type Settings struct {
	mu             sync.RWMutex
	defaults       map[string]any
	user           map[string]any
	userConfigPath string
}

// New loads defaults from defaultsPath (bundled with the application) and
// merges the user override file at userConfigPath, creating an empty one
// if absent.
func New(defaultsPath, userConfigPath string) (*Settings, error) {
	log := logging.WithComponent("config")

	defaults, err := readJSONObject(defaultsPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read bundled defaults: %w", err)
	}

	if _, err := os.Stat(userConfigPath); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(userConfigPath), 0700); err != nil {
			return nil, fmt.Errorf("create settings directory: %w", err)
		}
		if err := os.WriteFile(userConfigPath, []byte("{}\n"), 0600); err != nil {
			return nil, fmt.Errorf("seed user settings file: %w", err)
		}
		log.Debug().Str("path", userConfigPath).Msg("seeded empty user settings file")
	}

	user, err := readJSONObject(userConfigPath)
	if err != nil {
		return nil, fmt.Errorf("read user settings: %w", err)
	}

	return &Settings{
		defaults:       defaults,
		user:           user,
		userConfigPath: userConfigPath,
	}, nil
}

func readJSONObject(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, err
		}
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// Get returns the value at the dotted key, user override taking
// precedence over bundled default. ok is false if the key is unset in
// both.
func (s *Settings) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := lookup(s.user, key); ok {
		return v, true
	}
	return lookup(s.defaults, key)
}

// GetAll returns the defaults merged with user overrides, user wins on
// conflicting keys.
func (s *Settings) GetAll() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	merged := deepCopy(s.defaults)
	mergeInto(merged, s.user)
	return merged
}

// GetUserKeys returns only the keys the user has explicitly overridden
// (not inherited from bundled defaults), as dotted paths.
func (s *Settings) GetUserKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	collectKeys(s.user, "", &keys)
	return keys
}

// Set assigns value at the dotted key path in the user override file and
// persists it immediately. One level of a leaf object is flattened into
// dotted sub-keys; arrays are stored atomically (not flattened).
func (s *Settings) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if obj, ok := value.(map[string]any); ok {
		for k, v := range obj {
			setFlat(s.user, key+"."+k, v)
		}
	} else {
		setFlat(s.user, key, value)
	}

	return s.persistLocked()
}

// Remove deletes the dotted key from the user override file, reverting
// to the bundled default (if any).
func (s *Settings) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	removeFlat(s.user, key)
	return s.persistLocked()
}

func (s *Settings) persistLocked() error {
	encoded, err := json.MarshalIndent(s.user, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal user settings: %w", err)
	}
	return os.WriteFile(s.userConfigPath, append(encoded, '\n'), 0600)
}

func lookup(m map[string]any, key string) (any, bool) {
	parts := strings.Split(key, ".")
	var cur any = m
	for _, p := range parts {
		asMap, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = asMap[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func setFlat(m map[string]any, key string, value any) {
	parts := strings.Split(key, ".")
	cur := m
	for i, p := range parts {
		if i == len(parts)-1 {
			cur[p] = value
			return
		}
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[p] = next
		}
		cur = next
	}
}

func removeFlat(m map[string]any, key string) {
	parts := strings.Split(key, ".")
	cur := m
	for i, p := range parts {
		if i == len(parts)-1 {
			delete(cur, p)
			return
		}
		next, ok := cur[p].(map[string]any)
		if !ok {
			return
		}
		cur = next
	}
}

func collectKeys(m map[string]any, prefix string, out *[]string) {
	for k, v := range m {
		full := k
		if prefix != "" {
			full = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			collectKeys(sub, full, out)
			continue
		}
		*out = append(*out, full)
	}
}

func deepCopy(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sub, ok := v.(map[string]any); ok {
			out[k] = deepCopy(sub)
		} else {
			out[k] = v
		}
	}
	return out
}

func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		if subSrc, ok := v.(map[string]any); ok {
			subDst, ok := dst[k].(map[string]any)
			if !ok {
				subDst = map[string]any{}
				dst[k] = subDst
			}
			mergeInto(subDst, subSrc)
			continue
		}
		dst[k] = v
	}
}
