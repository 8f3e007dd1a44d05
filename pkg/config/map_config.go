package config

import (
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/subosito/gotenv"
)

// MapConfig holds manager settings in memory. Keys are matched without
// regard to case. It is used for fixtures and for managers that must not
// touch the process environment.
type MapConfig struct {
	keyReader
	mu     sync.RWMutex
	values map[string]string
	path   string
}

func NewMapConfig(entries map[string]string) *MapConfig {
	c := &MapConfig{values: make(map[string]string)}
	c.keyReader = keyReader{lookup: c.get}

	for key, value := range entries {
		c.Set(key, value)
	}

	return c
}

// LoadFromPath reads a dotenv file into the map, replacing settings with the
// same name.
func (c *MapConfig) LoadFromPath(path string) error {
	expanded, err := ExpandPath(path)
	if err != nil {
		return err
	}

	f, err := os.Open(expanded)
	if err != nil {
		return errors.Wrapf(err, "unable to open manager settings %s", expanded)
	}
	defer f.Close()

	env, err := gotenv.StrictParse(f)
	if err != nil {
		return errors.Wrapf(err, "unable to parse manager settings %s", expanded)
	}

	for key, value := range env {
		c.Set(key, value)
	}

	c.mu.Lock()
	c.path = path
	c.mu.Unlock()

	return nil
}

// Load re-reads the last file given to LoadFromPath, if any.
func (c *MapConfig) Load() error {
	c.mu.RLock()
	path := c.path
	c.mu.RUnlock()

	if path == "" {
		return nil
	}

	return c.LoadFromPath(path)
}

// Set changes a single setting.
func (c *MapConfig) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[strings.ToLower(key)] = value
}

func (c *MapConfig) get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	val, ok := c.values[strings.ToLower(key)]
	return val, ok
}
