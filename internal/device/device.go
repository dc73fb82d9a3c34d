package device

import (
	"fmt"
	"time"
)

// Type is the device type as carried in the UDP discovery protocol.
type Type uint32

const (
	TypeUnknown Type = 0
	TypeTuner   Type = 1
	TypeStorage Type = 5
)

// String returns a human-readable device type name.
func (t Type) String() string {
	switch t {
	case TypeTuner:
		return "tuner"
	case TypeStorage:
		return "storage"
	case TypeUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("Type(%d)", uint32(t))
	}
}

// DiscoveryMethod records which transport produced a device record.
type DiscoveryMethod int

const (
	MethodUnset DiscoveryMethod = iota
	MethodHTTP
	MethodUDP
)

// String returns a human-readable discovery method name.
func (m DiscoveryMethod) String() string {
	switch m {
	case MethodHTTP:
		return "http"
	case MethodUDP:
		return "udp"
	default:
		return "unset"
	}
}

// Channel is one entry from the device's lineup.json.
type Channel struct {
	GuideNumber string `json:"GuideNumber"`
	GuideName   string `json:"GuideName"`
	URL         string `json:"URL"`
	HD          int    `json:"HD,omitempty"`
	DRM         int    `json:"DRM,omitempty"`
	Favorite    int    `json:"Favorite,omitempty"`
}

// TunerStatus is the status of a single tuner. The HTTP status.json
// endpoint returns these directly; the TCP control path synthesizes the
// same shape from the space-delimited status string. Zero-valued signal
// metrics are omitted during decoding, so a zero here means "absent".
type TunerStatus struct {
	Resource              string `json:"Resource"`
	SignalStrengthPercent int    `json:"SignalStrengthPercent,omitempty"`
	SignalQualityPercent  int    `json:"SignalQualityPercent,omitempty"`
	SymbolQualityPercent  int    `json:"SymbolQualityPercent,omitempty"`
	Frequency             int    `json:"Frequency,omitempty"`
	VctNumber             string `json:"VctNumber,omitempty"`
	VctName               string `json:"VctName,omitempty"`
	TargetIP              string `json:"TargetIP,omitempty"`
}

// Device is the normalized record for one physical unit, populated from
// whichever transports responded. DeviceID is the sole identity key; it
// never changes once set.
type Device struct {
	// DeviceID is the 4-byte device identifier rendered as 8 uppercase
	// hex digits (e.g. "10501234").
	DeviceID string

	// Host is the IP or hostname used for all requests to the device.
	Host string

	// URLs advertised by the device or the directory service.
	BaseURL     string
	DiscoverURL string
	LineupURL   string

	Kind             Type
	FriendlyName     string
	Model            string // firmware name
	HWModel          string // model number
	InstalledVersion string
	LatestVersion    string
	DeviceAuth       string

	TunerCount int

	// Legacy devices do not serve the HTTP status endpoints and are
	// refreshed over the control protocol even when HTTP-discovered.
	Legacy bool

	// Dynamic state, wholesale-replaced on refresh.
	Channels    []Channel
	TunerStatus []TunerStatus

	ChannelSources []string
	ScanInProgress bool
	ScanFound      int

	Method DiscoveryMethod

	// Online flips to false only on connection-level failure, never on
	// a successful-but-empty response.
	Online bool

	DiscoveredAt time.Time
}

// New returns a device record for the given host. Devices start online
// until a refresh fails.
func New(host string) *Device {
	return &Device{
		Host:         host,
		Online:       true,
		DiscoveredAt: time.Now(),
	}
}

// String returns a human-readable representation of the device.
func (d *Device) String() string {
	name := d.FriendlyName
	if name == "" {
		name = d.HWModel
	}
	if name == "" {
		name = "HDHomeRun"
	}
	return fmt.Sprintf("%s %s at %s", name, d.DeviceID, d.Host)
}

// FormatID renders a raw 4-byte device identifier the way the rest of
// the system keys devices: 8 uppercase hex digits.
func FormatID(id uint32) string {
	return fmt.Sprintf("%08X", id)
}
