package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tunerkit/hdhr/internal/device"
)

func TestHTTPDiscoverDirectory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"DeviceID":"1234ABCD","TunerCount":4,"LocalIP":"10.0.0.5","BaseURL":"http://10.0.0.5:80","DeviceAuth":"secret","FirmwareVersion":"20230323","ModelNumber":"HDHR5-4US"}]`))
	}))
	defer server.Close()

	client := NewHTTPClient()
	client.DirectoryURL = server.URL

	devices, err := client.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("Discover() returned %d devices, want 1", len(devices))
	}

	d := devices[0]
	if d.DeviceID != "1234ABCD" {
		t.Errorf("DeviceID = %q, want 1234ABCD", d.DeviceID)
	}
	if d.Host != "10.0.0.5" {
		t.Errorf("Host = %q, want 10.0.0.5", d.Host)
	}
	if d.TunerCount != 4 {
		t.Errorf("TunerCount = %d, want 4", d.TunerCount)
	}
	if d.Method != device.MethodHTTP {
		t.Errorf("Method = %v, want http", d.Method)
	}
	if d.DeviceAuth != "secret" {
		t.Errorf("DeviceAuth = %q", d.DeviceAuth)
	}
	if d.InstalledVersion != "20230323" {
		t.Errorf("InstalledVersion = %q", d.InstalledVersion)
	}
	if d.HWModel != "HDHR5-4US" {
		t.Errorf("HWModel = %q", d.HWModel)
	}
}

func TestHTTPDiscoverSingleObject(t *testing.T) {
	// A device's own discover.json returns one object, not an array.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"DeviceID":"10501234","TunerCount":2,"Legacy":1}`))
	}))
	defer server.Close()

	client := NewHTTPClient()
	client.DirectoryURL = server.URL

	devices, err := client.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("Discover() returned %d devices, want 1", len(devices))
	}
	if devices[0].DeviceID != "10501234" {
		t.Errorf("DeviceID = %q", devices[0].DeviceID)
	}
	if !devices[0].Legacy {
		t.Error("Legacy flag not set")
	}
}

func TestHTTPDiscoverUnavailable(t *testing.T) {
	tests := []struct {
		name   string
		status int
		close  bool
	}{
		{"server error", http.StatusInternalServerError, false},
		{"not found", http.StatusNotFound, false},
		{"connection refused", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			if tt.close {
				server.Close()
			} else {
				defer server.Close()
			}

			client := NewHTTPClient()
			client.DirectoryURL = server.URL

			_, err := client.Discover(context.Background())
			if err == nil {
				t.Fatal("Discover() error = nil, want unavailable")
			}
			if !IsHTTPUnavailable(err) {
				t.Errorf("error %v is not HTTPUnavailableError", err)
			}
		})
	}
}

func TestHTTPRediscoverInPlace(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/discover.json" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"DeviceID":"10501234","FriendlyName":"HDHomeRun CONNECT","TunerCount":2,"UpgradeAvailable":"20240101"}`))
	}))
	defer server.Close()

	d := device.New(serverHost(t, server))
	d.DeviceID = "10501234"
	d.Method = device.MethodUDP
	d.BaseURL = server.URL
	before := d

	client := NewHTTPClient()
	if err := client.Rediscover(context.Background(), d); err != nil {
		t.Fatalf("Rediscover() error = %v", err)
	}

	if d != before {
		t.Fatal("Rediscover() must mutate the same instance")
	}
	if d.FriendlyName != "HDHomeRun CONNECT" {
		t.Errorf("FriendlyName = %q", d.FriendlyName)
	}
	if d.LatestVersion != "20240101" {
		t.Errorf("LatestVersion = %q", d.LatestVersion)
	}
	if d.DeviceID != "10501234" {
		t.Errorf("DeviceID changed to %q", d.DeviceID)
	}
	if d.Method != device.MethodUDP {
		t.Errorf("Method changed to %v", d.Method)
	}
}

func TestHTTPRediscoverMarksOffline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	d := device.New("127.0.0.1")
	d.DiscoverURL = server.URL + "/discover.json"

	client := NewHTTPClient()
	if err := client.Rediscover(context.Background(), d); err == nil {
		t.Fatal("Rediscover() error = nil, want failure")
	}
	if d.Online {
		t.Error("device still online after connection failure")
	}
}

func TestHTTPLineup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/lineup.json" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("show"); got != "found" {
			t.Errorf("show query = %q, want found", got)
		}
		_, _ = w.Write([]byte(`[{"GuideNumber":"7.1","GuideName":"KIRO-HD","URL":"http://10.0.0.5:5004/auto/v7.1"}]`))
	}))
	defer server.Close()

	d := device.New(serverHost(t, server))
	d.BaseURL = server.URL

	client := NewHTTPClient()
	if err := client.Lineup(context.Background(), d); err != nil {
		t.Fatalf("Lineup() error = %v", err)
	}
	if len(d.Channels) != 1 {
		t.Fatalf("Channels = %d entries, want 1", len(d.Channels))
	}
	if d.Channels[0].GuideNumber != "7.1" || d.Channels[0].GuideName != "KIRO-HD" {
		t.Errorf("channel = %+v", d.Channels[0])
	}
}

func TestHTTPTunerStatusRetainsOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	d := device.New("127.0.0.1")
	d.BaseURL = server.URL
	prior := []device.TunerStatus{{Resource: "tuner0", SignalStrengthPercent: 80}}
	d.TunerStatus = prior

	client := NewHTTPClient()
	if err := client.TunerStatus(context.Background(), d); err == nil {
		t.Fatal("TunerStatus() error = nil, want failure")
	}
	if len(d.TunerStatus) != 1 || d.TunerStatus[0].SignalStrengthPercent != 80 {
		t.Errorf("prior status not retained: %+v", d.TunerStatus)
	}
	if d.Online {
		t.Error("device still online after connection failure")
	}
}

func TestHTTPTunerStatusReplaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"Resource":"tuner0","SignalStrengthPercent":92,"SymbolQualityPercent":100,"VctNumber":"7.1","VctName":"KIRO-HD"},{"Resource":"tuner1"}]`))
	}))
	defer server.Close()

	d := device.New(serverHost(t, server))
	d.BaseURL = server.URL
	d.TunerStatus = []device.TunerStatus{{Resource: "stale"}}
	d.Online = false

	client := NewHTTPClient()
	if err := client.TunerStatus(context.Background(), d); err != nil {
		t.Fatalf("TunerStatus() error = %v", err)
	}
	if len(d.TunerStatus) != 2 {
		t.Fatalf("TunerStatus = %d entries, want 2", len(d.TunerStatus))
	}
	if d.TunerStatus[0].VctName != "KIRO-HD" {
		t.Errorf("VctName = %q", d.TunerStatus[0].VctName)
	}
	if !d.Online {
		t.Error("successful refresh should restore online state")
	}
}

func TestHTTPLineupStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/lineup_status.json" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"ScanInProgress":1,"Progress":42,"SourceList":["Antenna","Cable"]}`))
	}))
	defer server.Close()

	d := device.New(serverHost(t, server))
	d.BaseURL = server.URL

	client := NewHTTPClient()
	progress, err := client.LineupStatus(context.Background(), d)
	if err != nil {
		t.Fatalf("LineupStatus() error = %v", err)
	}
	if progress != 42 {
		t.Errorf("progress = %d, want 42", progress)
	}
	if !d.ScanInProgress {
		t.Error("ScanInProgress not set")
	}
	if len(d.ChannelSources) != 2 || d.ChannelSources[0] != "Antenna" {
		t.Errorf("ChannelSources = %v", d.ChannelSources)
	}
}

func TestHTTPStartChannelScan(t *testing.T) {
	var gotMethod, gotScan, gotSource string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/lineup.post" {
			http.NotFound(w, r)
			return
		}
		gotMethod = r.Method
		gotScan = r.URL.Query().Get("scan")
		gotSource = r.URL.Query().Get("source")
	}))
	defer server.Close()

	d := device.New(serverHost(t, server))
	d.BaseURL = server.URL

	client := NewHTTPClient()
	if err := client.StartChannelScan(context.Background(), d, "Antenna"); err != nil {
		t.Fatalf("StartChannelScan() error = %v", err)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("method = %q, want POST", gotMethod)
	}
	if gotScan != "start" || gotSource != "Antenna" {
		t.Errorf("query = scan=%q source=%q", gotScan, gotSource)
	}
}

func TestHTTPStartChannelScanPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	d := device.New(serverHost(t, server))
	d.BaseURL = server.URL

	client := NewHTTPClient()
	if err := client.StartChannelScan(context.Background(), d, "Antenna"); err == nil {
		t.Fatal("StartChannelScan() error = nil, want failure")
	}
}

// serverHost extracts the host:port part of an httptest server URL.
func serverHost(t *testing.T, server *httptest.Server) string {
	t.Helper()
	return server.Listener.Addr().String()
}
