// Package localstore keeps small string values on the user's machine.
package localstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

const appDir = "ttrpg-tracker"

// DefaultPath is the state file under the user's config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, appDir, "state.yaml"), nil
}

// File is a YAML-backed key/value store. Every write rewrites the file.
type File struct {
	mu     sync.RWMutex
	path   string
	values map[string]string
}

// Open loads path. A missing file is an empty store.
func Open(path string) (*File, error) {
	f := &File{path: path, values: make(map[string]string)}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &f.values); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if f.values == nil {
		f.values = make(map[string]string)
	}
	return f, nil
}

func (f *File) Path() string { return f.path }

func (f *File) Get(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.values[key]
	return v, ok
}

func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, had := f.values[key]
	f.values[key] = value
	if err := f.flush(); err != nil {
		if had {
			f.values[key] = prev
		} else {
			delete(f.values, key)
		}
		return err
	}
	return nil
}

func (f *File) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, had := f.values[key]
	if !had {
		return nil
	}
	delete(f.values, key)
	if err := f.flush(); err != nil {
		f.values[key] = prev
		return err
	}
	return nil
}

func (f *File) flush() error {
	raw, err := yaml.Marshal(f.values)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

// Memory is an in-process store for tests and ephemeral sessions.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
