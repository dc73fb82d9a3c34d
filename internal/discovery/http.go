package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tunerkit/hdhr/internal/device"
	"github.com/tunerkit/hdhr/internal/logging"
)

// DefaultDirectoryURL is the vendor directory service that lists devices
// registered from the local public IP.
const DefaultDirectoryURL = "https://ipv4-api.hdhomerun.com/discover"

// DefaultHTTPTimeout bounds each individual HTTP request.
const DefaultHTTPTimeout = 5 * time.Second

// HTTPClient queries the JSON endpoints served by the directory service
// and by the devices themselves.
type HTTPClient struct {
	// DirectoryURL is the discovery directory endpoint. Overridable for
	// tests and for alternate directory deployments.
	DirectoryURL string

	// Timeout bounds each request when the caller's context carries no
	// earlier deadline.
	Timeout time.Duration

	// Client is the underlying HTTP client. A zero value uses
	// http.DefaultClient semantics with Timeout applied per request.
	Client *http.Client
}

// NewHTTPClient creates an HTTP transport with default settings.
func NewHTTPClient() *HTTPClient {
	return &HTTPClient{
		DirectoryURL: DefaultDirectoryURL,
		Timeout:      DefaultHTTPTimeout,
		Client:       &http.Client{},
	}
}

// deviceJSON is the wire shape shared by the directory service and the
// per-device discover.json endpoint. Unknown keys are ignored.
type deviceJSON struct {
	DeviceID         string `json:"DeviceID"`
	LocalIP          string `json:"LocalIP"`
	BaseURL          string `json:"BaseURL"`
	DiscoverURL      string `json:"DiscoverURL"`
	LineupURL        string `json:"LineupURL"`
	StorageURL       string `json:"StorageURL"`
	DeviceAuth       string `json:"DeviceAuth"`
	FriendlyName     string `json:"FriendlyName"`
	FirmwareName     string `json:"FirmwareName"`
	FirmwareVersion  string `json:"FirmwareVersion"`
	ModelNumber      string `json:"ModelNumber"`
	TunerCount       int    `json:"TunerCount"`
	UpgradeAvailable string `json:"UpgradeAvailable"`
	Legacy           int    `json:"Legacy"`
}

// lineupStatusJSON is the wire shape of lineup_status.json.
type lineupStatusJSON struct {
	ScanInProgress int      `json:"ScanInProgress"`
	ScanPossible   int      `json:"ScanPossible"`
	Source         string   `json:"Source"`
	SourceList     []string `json:"SourceList"`
	Progress       int      `json:"Progress"`
	Found          int      `json:"Found"`
}

// Discover queries the directory endpoint and returns one Device per
// listed unit. An unreachable or non-2xx directory is reported as
// *HTTPUnavailableError so callers can fall back to UDP discovery.
func (c *HTTPClient) Discover(ctx context.Context) ([]*device.Device, error) {
	raw, err := c.fetch(ctx, c.directoryURL())
	if err != nil {
		return nil, err
	}
	entries, err := decodeDeviceList(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode directory response: %w", err)
	}

	devices := make([]*device.Device, 0, len(entries))
	for _, entry := range entries {
		d := device.New("")
		applyDeviceJSON(d, &entry)
		d.Method = device.MethodHTTP
		devices = append(devices, d)
	}
	return devices, nil
}

// Rediscover refreshes a known device in place from its own
// discover.json (or its directory-provided DiscoverURL). The same Device
// instance is mutated so that existing references keep one identity.
// Connection-level failure marks the device offline.
func (c *HTTPClient) Rediscover(ctx context.Context, d *device.Device) error {
	entries, err := c.fetchDiscover(ctx, d)
	if err != nil {
		if IsHTTPUnavailable(err) {
			d.Online = false
		}
		return err
	}
	applyDiscover(d, entries)
	return nil
}

func (c *HTTPClient) fetchDiscover(ctx context.Context, d *device.Device) ([]deviceJSON, error) {
	target := d.DiscoverURL
	if target == "" {
		target = c.deviceURL(d, "discover.json")
	}
	if target == "" {
		return nil, fmt.Errorf("device %s has no host or discover url", d.DeviceID)
	}

	raw, err := c.fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	entries, err := decodeDeviceList(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode discover response: %w", err)
	}
	return entries, nil
}

func applyDiscover(d *device.Device, entries []deviceJSON) {
	d.Online = true
	for _, entry := range entries {
		if d.DeviceID != "" && entry.DeviceID != "" && !strings.EqualFold(entry.DeviceID, d.DeviceID) {
			continue
		}
		applyDeviceJSON(d, &entry)
		if d.Method == device.MethodUnset {
			d.Method = device.MethodHTTP
		}
	}
}

// Lineup fetches lineup.json and replaces the device's channel list.
func (c *HTTPClient) Lineup(ctx context.Context, d *device.Device) error {
	channels, err := c.fetchLineup(ctx, d)
	if err != nil {
		if IsHTTPUnavailable(err) {
			d.Online = false
		}
		return err
	}
	d.Online = true
	d.Channels = channels
	return nil
}

func (c *HTTPClient) fetchLineup(ctx context.Context, d *device.Device) ([]device.Channel, error) {
	target := d.LineupURL
	if target == "" {
		target = c.deviceURL(d, "lineup.json")
	}
	if target == "" {
		return nil, fmt.Errorf("device %s has no lineup url", d.DeviceID)
	}
	target = withQuery(target, "show", "found")

	raw, err := c.fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	var channels []device.Channel
	if err := json.Unmarshal(raw, &channels); err != nil {
		return nil, fmt.Errorf("failed to decode lineup response: %w", err)
	}
	return channels, nil
}

// LineupStatus fetches lineup_status.json, updating the device's channel
// sources and scan state, and returns the scan progress percentage.
func (c *HTTPClient) LineupStatus(ctx context.Context, d *device.Device) (int, error) {
	status, err := c.fetchLineupStatus(ctx, d)
	if err != nil {
		if IsHTTPUnavailable(err) {
			d.Online = false
		}
		return 0, err
	}
	applyLineupStatus(d, status)
	return status.Progress, nil
}

func (c *HTTPClient) fetchLineupStatus(ctx context.Context, d *device.Device) (*lineupStatusJSON, error) {
	target := c.deviceURL(d, "lineup_status.json")
	if target == "" {
		return nil, fmt.Errorf("device %s has no host", d.DeviceID)
	}

	raw, err := c.fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	var status lineupStatusJSON
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, fmt.Errorf("failed to decode lineup status: %w", err)
	}
	return &status, nil
}

func applyLineupStatus(d *device.Device, status *lineupStatusJSON) {
	d.Online = true
	d.ScanInProgress = status.ScanInProgress != 0
	d.ScanFound = status.Found
	if len(status.SourceList) > 0 {
		d.ChannelSources = status.SourceList
	}
}

// TunerStatus fetches status.json and replaces the device's tuner status
// wholesale. On transport failure the prior status is retained and the
// device is marked offline.
func (c *HTTPClient) TunerStatus(ctx context.Context, d *device.Device) error {
	target := c.deviceURL(d, "status.json")
	if target == "" {
		return fmt.Errorf("device %s has no host", d.DeviceID)
	}

	raw, err := c.fetch(ctx, target)
	if err != nil {
		if IsHTTPUnavailable(err) {
			d.Online = false
		}
		return err
	}

	var status []device.TunerStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return fmt.Errorf("failed to decode status response: %w", err)
	}
	d.Online = true
	d.TunerStatus = status
	return nil
}

// StartChannelScan asks the device to begin scanning the given source
// (e.g. "Antenna" or "Cable"). This is a user command: failures
// propagate instead of being converted to offline state.
func (c *HTTPClient) StartChannelScan(ctx context.Context, d *device.Device, source string) error {
	target := c.deviceURL(d, "lineup.post")
	if target == "" {
		return fmt.Errorf("device %s has no host", d.DeviceID)
	}

	form := url.Values{}
	form.Set("scan", "start")
	if source != "" {
		form.Set("source", source)
	}
	target = target + "?" + form.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, nil)
	if err != nil {
		return err
	}
	logging.LogHTTPRequest(target, http.MethodPost)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("channel scan request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("channel scan request returned status %d", resp.StatusCode)
	}
	return nil
}

// fetch performs one GET and returns the body, converting transport and
// non-2xx failures to *HTTPUnavailableError.
func (c *HTTPClient) fetch(ctx context.Context, target string) ([]byte, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &HTTPUnavailableError{URL: target, Err: err}
	}
	logging.LogHTTPRequest(target, http.MethodGet)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, &HTTPUnavailableError{URL: target, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPUnavailableError{URL: target, StatusCode: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

// decodeDeviceList normalizes a response that may be either one JSON
// object or an array of them.
func decodeDeviceList(raw []byte) ([]deviceJSON, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var entries []deviceJSON
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, err
		}
		return entries, nil
	}
	var entry deviceJSON
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, err
	}
	return []deviceJSON{entry}, nil
}

// applyDeviceJSON copies decoded fields onto a device, skipping empty
// values so gaps never erase known data. DeviceID is only ever set once.
func applyDeviceJSON(d *device.Device, entry *deviceJSON) {
	if d.DeviceID == "" && entry.DeviceID != "" {
		d.DeviceID = strings.ToUpper(entry.DeviceID)
	}
	if entry.LocalIP != "" {
		d.Host = entry.LocalIP
	}
	if entry.BaseURL != "" {
		d.BaseURL = entry.BaseURL
		if d.Host == "" {
			if u, err := url.Parse(entry.BaseURL); err == nil {
				d.Host = u.Hostname()
			}
		}
	}
	if entry.DiscoverURL != "" {
		d.DiscoverURL = entry.DiscoverURL
	}
	if entry.LineupURL != "" {
		d.LineupURL = entry.LineupURL
	}
	if entry.DeviceAuth != "" {
		d.DeviceAuth = entry.DeviceAuth
	}
	if entry.FriendlyName != "" {
		d.FriendlyName = entry.FriendlyName
	}
	if entry.FirmwareName != "" {
		d.Model = entry.FirmwareName
	}
	if entry.FirmwareVersion != "" {
		d.InstalledVersion = entry.FirmwareVersion
	}
	if entry.ModelNumber != "" {
		d.HWModel = entry.ModelNumber
	}
	if entry.TunerCount > 0 {
		d.TunerCount = entry.TunerCount
	}
	if entry.UpgradeAvailable != "" {
		d.LatestVersion = entry.UpgradeAvailable
	}
	if entry.Legacy != 0 {
		d.Legacy = true
	}
	if entry.TunerCount > 0 && d.Kind == device.TypeUnknown {
		d.Kind = device.TypeTuner
	}
}

// deviceURL builds a device-relative endpoint URL from its BaseURL when
// present, else from its host.
func (c *HTTPClient) deviceURL(d *device.Device, path string) string {
	if d.BaseURL != "" {
		return strings.TrimSuffix(d.BaseURL, "/") + "/" + path
	}
	if d.Host != "" {
		return "http://" + d.Host + "/" + path
	}
	return ""
}

func withQuery(target, key, value string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *HTTPClient) directoryURL() string {
	if c.DirectoryURL == "" {
		return DefaultDirectoryURL
	}
	return c.DirectoryURL
}

func (c *HTTPClient) httpClient() *http.Client {
	if c.Client == nil {
		return http.DefaultClient
	}
	return c.Client
}
