package config

import "time"

// Registry represents the entire user configuration file.
// This stores user-defined metadata for devices and application preferences.
// Device state itself (tuner status, lineups) is never persisted; it is
// rediscovered on every run.
type Registry struct {
	Version     int                `yaml:"version"`
	Devices     map[string]*Device `yaml:"devices,omitempty"` // Keyed by 8-hex-digit device id
	Preferences *Preferences       `yaml:"preferences,omitempty"`
}

// Device represents user-defined metadata for a single HDHomeRun unit.
// This is keyed by the device's id in the Registry.
type Device struct {
	Nickname string    `yaml:"nickname,omitempty"`  // User-friendly name
	LastIP   string    `yaml:"last_ip,omitempty"`   // Last known IP address
	LastSeen time.Time `yaml:"last_seen,omitempty"` // Last discovery time

	// FavoriteChannels holds guide numbers the user starred, purely
	// client-side information.
	FavoriteChannels []string `yaml:"favorite_channels,omitempty"`
}

// Preferences represents application-wide user preferences.
type Preferences struct {
	DiscoverMode     string `yaml:"discover_mode"`               // "auto", "http" or "udp"
	ScanTimeout      int    `yaml:"scan_timeout"`                // UDP collection window in seconds
	BroadcastAddress string `yaml:"broadcast_address,omitempty"` // Override for the discovery target
	DirectoryURL     string `yaml:"directory_url,omitempty"`     // Alternate HTTP directory endpoint
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version: 1,
		Devices: make(map[string]*Device),
		Preferences: &Preferences{
			DiscoverMode: "auto",
			ScanTimeout:  3,
		},
	}
}

// GetDevice retrieves device metadata by device id.
// Returns nil if the device doesn't exist in the registry.
func (r *Registry) GetDevice(deviceID string) *Device {
	return r.Devices[deviceID]
}

// EnsureDevice ensures a device entry exists in the registry.
// If the device doesn't exist, creates a new entry with default values.
// Returns the device entry (existing or newly created).
func (r *Registry) EnsureDevice(deviceID string) *Device {
	if r.Devices == nil {
		r.Devices = make(map[string]*Device)
	}

	if device, exists := r.Devices[deviceID]; exists {
		return device
	}

	device := &Device{}
	r.Devices[deviceID] = device
	return device
}

// UpdateDeviceLastSeen updates the last seen timestamp and IP for a device.
func (r *Registry) UpdateDeviceLastSeen(deviceID, ip string) {
	device := r.EnsureDevice(deviceID)
	device.LastSeen = time.Now()
	device.LastIP = ip
}

// SetDeviceNickname sets a user-friendly nickname for a device.
func (r *Registry) SetDeviceNickname(deviceID, nickname string) {
	device := r.EnsureDevice(deviceID)
	device.Nickname = nickname
}

// ToggleFavoriteChannel stars or unstars a guide number for a device and
// reports whether it is now a favorite.
func (r *Registry) ToggleFavoriteChannel(deviceID, guideNumber string) bool {
	device := r.EnsureDevice(deviceID)
	for i, ch := range device.FavoriteChannels {
		if ch == guideNumber {
			device.FavoriteChannels = append(device.FavoriteChannels[:i], device.FavoriteChannels[i+1:]...)
			return false
		}
	}
	device.FavoriteChannels = append(device.FavoriteChannels, guideNumber)
	return true
}

// IsFavoriteChannel reports whether the guide number is starred for the
// device.
func (r *Registry) IsFavoriteChannel(deviceID, guideNumber string) bool {
	device := r.GetDevice(deviceID)
	if device == nil {
		return false
	}
	for _, ch := range device.FavoriteChannels {
		if ch == guideNumber {
			return true
		}
	}
	return false
}
