package storm

import "github.com/storm-repo/storm-framework-sub012/stormcfg"

// UpdateMode, DirtyCheck and Config live in the leaf package stormcfg so
// that components below root (plan, exec, txn, dialect, driver) can depend
// on configuration without importing this package, which re-exports their
// public types. These aliases are the public API.
type UpdateMode = stormcfg.UpdateMode
type DirtyCheck = stormcfg.DirtyCheck
type Config = stormcfg.Config

const (
	UpdateModeOff    = stormcfg.UpdateModeOff
	UpdateModeEntity = stormcfg.UpdateModeEntity
	UpdateModeField  = stormcfg.UpdateModeField

	DirtyCheckInstance = stormcfg.DirtyCheckInstance
	DirtyCheckValue    = stormcfg.DirtyCheckValue

	KeyUpdateDefaultMode = stormcfg.KeyUpdateDefaultMode
	KeyUpdateDirtyCheck  = stormcfg.KeyUpdateDirtyCheck
	KeyUpdateMaxShapes   = stormcfg.KeyUpdateMaxShapes
	KeyBatchDefaultSize  = stormcfg.KeyBatchDefaultSize
	KeyChunkDefaultSize  = stormcfg.KeyChunkDefaultSize
)

// GlobalConfig is the process-wide Config instance consulted by every
// component unless a call site is given an explicit override.
var GlobalConfig = stormcfg.GlobalConfig

// LoadConfigFile merges a flat YAML document of key/value pairs into c.
func LoadConfigFile(c *Config, path string) error {
	return stormcfg.LoadConfigFile(c, path)
}

// WatchConfigFile reloads path into c whenever it changes on disk, logging
// reload failures and successes through the "config" logger.
func WatchConfigFile(c *Config, path string) (stop func(), err error) {
	log := Logger("config")
	return stormcfg.WatchConfigFile(c, path, func(err error) {
		if err != nil {
			log.Error("reload config file", "path", path, "err", err)
		} else {
			log.Debug("reloaded config file", "path", path)
		}
	})
}
