// Package config provides user configuration management for the hdhr tool.
//
// This package manages a YAML-based configuration file that stores
// user-defined metadata for HDHomeRun devices (nicknames, favorite
// channels) and application preferences such as the discovery mode and
// scan timeout. The configuration follows OS-specific conventions for
// storage location.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/hdhr/config.yaml or $HOME/.config/hdhr/config.yaml
//   - macOS: $HOME/.config/hdhr/config.yaml
//   - Windows: %LOCALAPPDATA%\hdhr\config.yaml
//
// # What is stored
//
// Only user metadata lives here. Device state (tuner status, channel
// lineups, firmware versions) is rediscovered from the network on every
// run and never persisted.
//
// # Usage Example
//
//	// Load the global registry
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Nickname a device by its id
//	registry.SetDeviceNickname("10501234", "Living Room Tuner")
//
//	// Save changes atomically
//	if err := registry.Save(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// The global registry uses sync.Once for safe initialization across goroutines.
// File operations are protected by a mutex to ensure atomic writes.
package config
