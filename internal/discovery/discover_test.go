package discovery

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tunerkit/hdhr/internal/device"
	"github.com/tunerkit/hdhr/internal/protocol"
)

func TestMergeDiscovered(t *testing.T) {
	httpDev := device.New("10.0.0.5")
	httpDev.DeviceID = "10501234"
	httpDev.Method = device.MethodHTTP
	httpDev.FriendlyName = "HDHomeRun CONNECT"
	httpDev.TunerCount = 2

	udpSame := device.New("192.168.1.40")
	udpSame.DeviceID = "10501234"
	udpSame.Method = device.MethodUDP
	udpSame.FriendlyName = "should not win"
	udpSame.BaseURL = "http://192.168.1.40:80"

	udpOther := device.New("192.168.1.41")
	udpOther.DeviceID = "1050BBBB"
	udpOther.Method = device.MethodUDP

	noID := device.New("192.168.1.42")

	devices := mergeDiscovered(
		[]*device.Device{httpDev},
		[]*device.Device{udpSame, udpOther, noID},
	)

	if len(devices) != 2 {
		t.Fatalf("merged %d devices, want 2", len(devices))
	}

	merged := devices[0]
	if merged != httpDev {
		t.Fatal("merge must retain the first-seen instance")
	}
	if merged.FriendlyName != "HDHomeRun CONNECT" {
		t.Errorf("FriendlyName = %q, HTTP value must win", merged.FriendlyName)
	}
	if merged.BaseURL != "http://192.168.1.40:80" {
		t.Errorf("BaseURL = %q, UDP value should fill the gap", merged.BaseURL)
	}
	if devices[1].DeviceID != "1050BBBB" {
		t.Errorf("second device = %q", devices[1].DeviceID)
	}
}

func TestMergeDiscoveredDuplicateDatagrams(t *testing.T) {
	a := device.New("192.168.1.40")
	a.DeviceID = "10501234"
	a.TunerCount = 2
	b := device.New("192.168.1.40")
	b.DeviceID = "10501234"
	b.TunerCount = 2

	devices := mergeDiscovered(nil, []*device.Device{a, b})
	if len(devices) != 1 {
		t.Fatalf("merged %d devices, want 1 (duplicates collapse)", len(devices))
	}
}

func TestServiceDiscoverAuto(t *testing.T) {
	// One device known to the directory, a second only answering
	// broadcast. Both must come back, deduplicated, enriched where an
	// HTTP endpoint exists.
	var directoryURL string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			fmt.Fprintf(w, `[{"DeviceID":"1050AAAA","LocalIP":"127.0.0.1","DiscoverURL":"%s/discover.json","TunerCount":2}]`, directoryURL)
		case "/discover.json":
			fmt.Fprint(w, `{"DeviceID":"1050AAAA","FriendlyName":"HDHomeRun FLEX","FirmwareVersion":"20230323"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()
	directoryURL = server.URL

	scanner := fakeResponder(t, discoverReply(
		protocol.TagValue{Tag: protocol.TagDeviceID, Value: protocol.EncodeUint32(0x1050BBBB)},
		protocol.TagValue{Tag: protocol.TagTunerCount, Value: []byte{4}},
	))

	svc := NewService()
	svc.HTTP.DirectoryURL = server.URL
	svc.UDP = scanner

	devices, err := svc.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("Discover() returned %d devices, want 2", len(devices))
	}

	httpDev := devices[0]
	if httpDev.DeviceID != "1050AAAA" {
		t.Fatalf("first device = %q, want the directory one", httpDev.DeviceID)
	}
	if httpDev.FriendlyName != "HDHomeRun FLEX" {
		t.Errorf("FriendlyName = %q, enrichment did not run", httpDev.FriendlyName)
	}
	if httpDev.InstalledVersion != "20230323" {
		t.Errorf("InstalledVersion = %q", httpDev.InstalledVersion)
	}

	udpDev := devices[1]
	if udpDev.DeviceID != "1050BBBB" {
		t.Errorf("second device = %q", udpDev.DeviceID)
	}
	if udpDev.TunerCount != 4 {
		t.Errorf("TunerCount = %d", udpDev.TunerCount)
	}
	if udpDev.Method != device.MethodUDP {
		t.Errorf("Method = %v", udpDev.Method)
	}
}

func TestServiceDiscoverAutoHTTPDown(t *testing.T) {
	// Directory unreachable: auto mode still returns broadcast results.
	scanner := fakeResponder(t, discoverReply(
		protocol.TagValue{Tag: protocol.TagDeviceID, Value: protocol.EncodeUint32(0x10501234)},
	))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	svc := NewService()
	svc.HTTP.DirectoryURL = server.URL
	svc.UDP = scanner

	devices, err := svc.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(devices) != 1 || devices[0].DeviceID != "10501234" {
		t.Fatalf("devices = %v, want the broadcast device", devices)
	}
}

func TestServiceDiscoverHTTPModePropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	svc := NewService()
	svc.Mode = ModeHTTP
	svc.HTTP.DirectoryURL = server.URL

	if _, err := svc.Discover(context.Background()); err == nil {
		t.Fatal("Discover() error = nil, want directory failure in http mode")
	}
}

func TestServiceRefreshTunerStatusControl(t *testing.T) {
	svc := NewService()
	svc.ControlPort = fakeControlDevice(t, map[string]string{
		"/tuner0/status":     "ch=auto:605000000 lock=8vsb ss=83 snq=0 seq=100",
		"/tuner0/vchannel":   "602",
		"/tuner0/streaminfo": "602: 7.2 GetTV",
		"/tuner0/target":     "rtp://192.168.1.50:5000",
		"/tuner1/status":     "ch=none lock=none",
	})

	d := device.New("127.0.0.1")
	d.DeviceID = "10501234"
	d.Method = device.MethodUDP
	d.TunerCount = 2
	d.TunerStatus = []device.TunerStatus{{Resource: "stale"}}

	svc.RefreshTunerStatus(context.Background(), d)

	if len(d.TunerStatus) != 2 {
		t.Fatalf("TunerStatus = %d entries, want 2", len(d.TunerStatus))
	}
	locked := d.TunerStatus[0]
	if locked.SignalStrengthPercent != 83 || locked.SymbolQualityPercent != 100 {
		t.Errorf("locked tuner = %+v", locked)
	}
	if locked.VctNumber != "7.2" || locked.VctName != "GetTV" {
		t.Errorf("channel details = (%q, %q)", locked.VctNumber, locked.VctName)
	}
	if locked.TargetIP != "192.168.1.50" {
		t.Errorf("TargetIP = %q", locked.TargetIP)
	}
	idle := d.TunerStatus[1]
	if idle.Resource != "tuner1" || idle.SymbolQualityPercent != 0 {
		t.Errorf("idle tuner = %+v", idle)
	}
	if !d.Online {
		t.Error("device should stay online after a successful refresh")
	}
}

func TestServiceRefreshTunerStatusControlUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	svc := NewService()
	svc.ControlPort = port

	d := device.New("127.0.0.1")
	d.TunerCount = 2
	d.TunerStatus = []device.TunerStatus{{Resource: "stale"}}

	svc.RefreshTunerStatus(context.Background(), d)

	if len(d.TunerStatus) != 0 {
		t.Errorf("TunerStatus = %+v, want wholesale replacement with empty", d.TunerStatus)
	}
	if d.Online {
		t.Error("device still online after every tuner failed")
	}
}

func TestServiceGatherDetailsHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/discover.json":
			fmt.Fprint(w, `{"DeviceID":"10501234","FriendlyName":"HDHomeRun CONNECT","TunerCount":2}`)
		case "/lineup.json":
			fmt.Fprint(w, `[{"GuideNumber":"7.1","GuideName":"KIRO-HD"}]`)
		case "/lineup_status.json":
			fmt.Fprint(w, `{"ScanInProgress":0,"SourceList":["Antenna"]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	d := device.New(serverHost(t, server))
	d.DeviceID = "10501234"
	d.Method = device.MethodHTTP
	d.BaseURL = server.URL

	svc := NewService()
	svc.GatherDetails(context.Background(), d)

	if d.FriendlyName != "HDHomeRun CONNECT" {
		t.Errorf("FriendlyName = %q", d.FriendlyName)
	}
	if len(d.Channels) != 1 {
		t.Errorf("Channels = %d entries, want 1", len(d.Channels))
	}
	if len(d.ChannelSources) != 1 || d.ChannelSources[0] != "Antenna" {
		t.Errorf("ChannelSources = %v", d.ChannelSources)
	}
	if !d.Online {
		t.Error("device should be online after successful gather")
	}
}

func TestServiceGatherDetailsControl(t *testing.T) {
	scanner := fakeResponder(t, discoverReply(
		protocol.TagValue{Tag: protocol.TagDeviceID, Value: protocol.EncodeUint32(0x10501234)},
		protocol.TagValue{Tag: protocol.TagBaseURL, Value: protocol.EncodeString("http://127.0.0.1:80")},
	))

	svc := NewService()
	svc.UDP = scanner
	svc.ControlPort = fakeControlDevice(t, map[string]string{
		"/sys/version": "20230323",
		"/sys/model":   "hdhomerun5_atsc",
		"/sys/hwmodel": "HDHR5-4US",
	})

	d := device.New("127.0.0.1")
	d.DeviceID = "10501234"
	d.Method = device.MethodUDP

	svc.GatherDetails(context.Background(), d)

	if d.InstalledVersion != "20230323" {
		t.Errorf("InstalledVersion = %q", d.InstalledVersion)
	}
	if d.Model != "hdhomerun5_atsc" {
		t.Errorf("Model = %q", d.Model)
	}
	if d.HWModel != "HDHR5-4US" {
		t.Errorf("HWModel = %q", d.HWModel)
	}
	if d.BaseURL != "http://127.0.0.1:80" {
		t.Errorf("BaseURL = %q, unicast re-query should fill it", d.BaseURL)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeAuto, false},
		{"auto", ModeAuto, false},
		{"http", ModeHTTP, false},
		{"udp", ModeUDP, false},
		{"broadcast", ModeUDP, false},
		{"bogus", ModeAuto, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseMode(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

// fakeControlDevice serves the control protocol on a loopback TCP port,
// answering get requests from a fixed variable table. It returns the
// port to point Service.ControlPort at.
func fakeControlDevice(t *testing.T, vars map[string]string) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer func() { _ = conn.Close() }()

				header := make([]byte, 4)
				if _, err := io.ReadFull(conn, header); err != nil {
					return
				}
				length := int(header[2])<<8 | int(header[3])
				rest := make([]byte, length+4)
				if _, err := io.ReadFull(conn, rest); err != nil {
					return
				}
				req, err := protocol.ParseResponse(append(header, rest...))
				if err != nil {
					return
				}

				name := protocol.DecodeString(req.Data[protocol.TagGetSetName])
				value, ok := vars[name]
				var reply []byte
				if !ok {
					reply = protocol.BuildRequest(protocol.TypeGetSetRpy, []protocol.TagValue{
						{Tag: protocol.TagErrorMessage, Value: protocol.EncodeString("unknown getset variable")},
					})
				} else {
					reply = protocol.BuildRequest(protocol.TypeGetSetRpy, []protocol.TagValue{
						{Tag: protocol.TagGetSetName, Value: protocol.EncodeString(name)},
						{Tag: protocol.TagGetSetValue, Value: protocol.EncodeString(value)},
					})
				}
				_, _ = conn.Write(reply)
			}(conn)
		}
	}()

	return ln.Addr().(*net.TCPAddr).Port
}
