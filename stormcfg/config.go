// Package stormcfg holds Storm's configuration types in a leaf package so
// that packages below the root (plan, exec, txn, dialect, driver) can read
// configuration without importing the root storm package, which wires those
// same packages together and would otherwise create an import cycle.
package stormcfg

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// UpdateMode selects how the Write Planner shapes UPDATE statements.
type UpdateMode string

const (
	UpdateModeOff    UpdateMode = "OFF"
	UpdateModeEntity UpdateMode = "ENTITY"
	UpdateModeField  UpdateMode = "FIELD"
)

// DirtyCheck selects how the Write Planner compares observed and current
// column values.
type DirtyCheck string

const (
	DirtyCheckInstance DirtyCheck = "INSTANCE"
	DirtyCheckValue    DirtyCheck = "VALUE"
)

const (
	KeyUpdateDefaultMode = "storm.update.default_mode"
	KeyUpdateDirtyCheck  = "storm.update.dirty_check"
	KeyUpdateMaxShapes   = "storm.update.max_shapes"
	KeyBatchDefaultSize  = "storm.batch.default_size"
	KeyChunkDefaultSize  = "storm.chunk.default_size"
)

// Config is a process-wide, concurrency-safe key/value store. Unset keys
// fall through to an environment variable derived from the key
// ("storm.update.default_mode" -> "STORM_UPDATE_DEFAULT_MODE").
type Config struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewDefaultConfig() *Config {
	return &Config{values: map[string]string{
		KeyUpdateDefaultMode: string(UpdateModeEntity),
		KeyUpdateDirtyCheck:  string(DirtyCheckInstance),
		KeyUpdateMaxShapes:   "16",
		KeyBatchDefaultSize:  "32",
		KeyChunkDefaultSize:  "1000",
	}}
}

// GlobalConfig is the process-wide Config instance consulted by every
// component unless a call site is given an explicit override.
var GlobalConfig = NewDefaultConfig()

func envKey(key string) string {
	return "STORM_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Get returns the string value for key, falling through to the environment
// variable derived from key when unset.
func (c *Config) Get(key string) (string, bool) {
	c.mu.RLock()
	v, ok := c.values[key]
	c.mu.RUnlock()
	if ok {
		return v, true
	}
	if ev, ok := os.LookupEnv(envKey(key)); ok {
		return ev, true
	}
	return "", false
}

// Set assigns a value for key, taking priority over both compiled-in
// defaults and the environment.
func (c *Config) Set(key, value string) {
	c.mu.Lock()
	c.values[key] = value
	c.mu.Unlock()
}

// GetInt returns key as an int, or def if unset or unparsable.
func (c *Config) GetInt(key string, def int) int {
	v, ok := c.Get(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

func (c *Config) UpdateMode() UpdateMode {
	v, _ := c.Get(KeyUpdateDefaultMode)
	return UpdateMode(strings.ToUpper(v))
}

func (c *Config) DirtyCheck() DirtyCheck {
	v, _ := c.Get(KeyUpdateDirtyCheck)
	return DirtyCheck(strings.ToUpper(v))
}

func (c *Config) MaxShapes() int { return c.GetInt(KeyUpdateMaxShapes, 16) }
func (c *Config) BatchSize() int { return c.GetInt(KeyBatchDefaultSize, 32) }
func (c *Config) ChunkSize() int { return c.GetInt(KeyChunkDefaultSize, 1000) }

// LoadConfigFile merges a flat YAML document of key/value pairs into c. Keys
// present in the file override compiled-in defaults but are themselves
// overridable by an explicit Set call made afterwards.
func LoadConfigFile(c *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var doc map[string]string
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	for k, v := range doc {
		c.Set(k, v)
	}
	return nil
}

// WatchConfigFile reloads path into c whenever it changes on disk, using
// fsnotify. The returned stop function closes the underlying watcher; it is
// idempotent and safe to call more than once. onReload, if non-nil, is
// called with the reload error (nil on success) after each write event.
func WatchConfigFile(c *Config, path string, onReload func(error)) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					err := LoadConfigFile(c, path)
					if onReload != nil {
						onReload(err)
					}
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			case <-done:
				watcher.Close()
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }, nil
}
