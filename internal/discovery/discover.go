package discovery

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/tunerkit/hdhr/internal/control"
	"github.com/tunerkit/hdhr/internal/device"
	"github.com/tunerkit/hdhr/internal/logging"
)

// Mode selects which transports a discovery pass uses.
type Mode int

const (
	// ModeAuto runs HTTP and UDP discovery concurrently and merges the
	// results. HTTP failures fall back to the UDP results.
	ModeAuto Mode = iota

	// ModeHTTP queries only the HTTP directory service.
	ModeHTTP

	// ModeUDP uses only the local broadcast protocol.
	ModeUDP
)

// String returns a human-readable mode name.
func (m Mode) String() string {
	switch m {
	case ModeHTTP:
		return "http"
	case ModeUDP:
		return "udp"
	default:
		return "auto"
	}
}

// ParseMode converts a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "auto":
		return ModeAuto, nil
	case "http":
		return ModeHTTP, nil
	case "udp", "broadcast":
		return ModeUDP, nil
	}
	return ModeAuto, fmt.Errorf("unknown discovery mode %q", s)
}

// Service orchestrates discovery across both transports and exposes the
// per-device refresh operations built on top of them.
type Service struct {
	// Mode selects the transports used by Discover.
	Mode Mode

	// HTTP is the JSON transport. Defaults to the public directory.
	HTTP *HTTPClient

	// UDP is the broadcast scanner.
	UDP *Scanner

	// ControlPort overrides the TCP control port on clients the service
	// creates. Zero means the protocol default; tests point it at a
	// local listener.
	ControlPort int
}

// NewService creates a discovery service with default transports.
func NewService() *Service {
	return &Service{
		HTTP: NewHTTPClient(),
		UDP:  NewScanner(),
	}
}

// Discover runs a full discovery pass: the configured transport branches
// run concurrently, results are deduplicated by device id with
// HTTP-sourced fields taking precedence, and every resulting device gets
// a best-effort HTTP rediscover to backfill metadata. Per-device
// enrichment failures never abort the pass.
func (s *Service) Discover(ctx context.Context) ([]*device.Device, error) {
	var (
		wg          sync.WaitGroup
		httpDevices []*device.Device
		udpDevices  []*device.Device
		httpErr     error
		udpErr      error
	)

	if s.Mode == ModeAuto || s.Mode == ModeHTTP {
		wg.Add(1)
		go func() {
			defer wg.Done()
			httpDevices, httpErr = s.http().Discover(ctx)
		}()
	}
	if s.Mode == ModeAuto || s.Mode == ModeUDP {
		wg.Add(1)
		go func() {
			defer wg.Done()
			udpDevices, udpErr = s.udp().Discover(ctx)
		}()
	}
	wg.Wait()

	if httpErr != nil {
		if s.Mode == ModeHTTP {
			return nil, httpErr
		}
		// UDP is the authoritative fallback in auto mode.
		logging.Warn("HTTP discovery unavailable, relying on broadcast results",
			zap.Error(httpErr),
		)
	}
	if udpErr != nil && s.Mode == ModeUDP && len(udpDevices) == 0 {
		return nil, udpErr
	}

	devices := mergeDiscovered(httpDevices, udpDevices)

	// Enrich: backfill metadata over HTTP. Failures leave the device
	// exactly as discovery produced it; a UDP-only unit with no HTTP
	// endpoint is still online.
	for _, d := range devices {
		entries, err := s.http().fetchDiscover(ctx, d)
		if err != nil {
			logging.Debug("Device enrichment failed",
				zap.String("device_id", d.DeviceID),
				zap.String("host", d.Host),
				zap.Error(err),
			)
			continue
		}
		applyDiscover(d, entries)
	}

	logging.Info("Discovery pass complete",
		zap.String("mode", s.Mode.String()),
		zap.Int("devices", len(devices)),
	)
	return devices, nil
}

// mergeDiscovered deduplicates by device id. HTTP records are inserted
// first; UDP records for an already-known id only fill fields the
// existing record lacks.
func mergeDiscovered(httpDevices, udpDevices []*device.Device) []*device.Device {
	byID := make(map[string]*device.Device)
	order := make([]string, 0, len(httpDevices)+len(udpDevices))

	insert := func(d *device.Device) {
		if d.DeviceID == "" {
			logging.Warn("Discarding discovery result without device id",
				zap.String("host", d.Host),
			)
			return
		}
		existing, ok := byID[d.DeviceID]
		if !ok {
			byID[d.DeviceID] = d
			order = append(order, d.DeviceID)
			return
		}
		existing.Merge(d, false)
	}

	for _, d := range httpDevices {
		insert(d)
	}
	for _, d := range udpDevices {
		insert(d)
	}

	devices := make([]*device.Device, 0, len(order))
	for _, id := range order {
		devices = append(devices, byID[id])
	}
	return devices
}

// GatherDetails refreshes everything known about one device. HTTP
// devices get a concurrent discover/lineup/lineup-status fan-out; UDP and
// legacy devices get a unicast re-query plus the firmware variables over
// the control protocol. All of it is best-effort: failures mark the
// device offline where they are connection-level and otherwise leave
// fields as they were.
func (s *Service) GatherDetails(ctx context.Context, d *device.Device) {
	if d.Method == device.MethodHTTP && !d.Legacy {
		s.gatherHTTP(ctx, d)
		return
	}
	s.gatherControl(ctx, d)
}

func (s *Service) gatherHTTP(ctx context.Context, d *device.Device) {
	// The three fetches run concurrently; the device is only written
	// after the join so there is a single writer.
	var (
		wg           sync.WaitGroup
		entries      []deviceJSON
		channels     []device.Channel
		lineupStatus *lineupStatusJSON
		errs         [3]error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		entries, errs[0] = s.http().fetchDiscover(ctx, d)
	}()
	go func() {
		defer wg.Done()
		channels, errs[1] = s.http().fetchLineup(ctx, d)
	}()
	go func() {
		defer wg.Done()
		lineupStatus, errs[2] = s.http().fetchLineupStatus(ctx, d)
	}()
	wg.Wait()

	for i, name := range [...]string{"discover", "lineup", "lineup_status"} {
		if errs[i] != nil {
			logging.Debug("Detail fetch failed",
				zap.String("device_id", d.DeviceID),
				zap.String("fetch", name),
				zap.Error(errs[i]),
			)
		}
	}

	// A device that answered nothing at all is offline; partial answers
	// still count as reachable.
	if IsHTTPUnavailable(errs[0]) && IsHTTPUnavailable(errs[1]) && IsHTTPUnavailable(errs[2]) {
		d.Online = false
		return
	}
	if errs[0] == nil {
		applyDiscover(d, entries)
	}
	if errs[1] == nil {
		d.Online = true
		d.Channels = channels
	}
	if errs[2] == nil {
		applyLineupStatus(d, lineupStatus)
	}
}

func (s *Service) gatherControl(ctx context.Context, d *device.Device) {
	// Both branches run concurrently but only write to the device after
	// the join, so there is never more than one writer.
	var (
		wg      sync.WaitGroup
		fresh   []*device.Device
		sysVars [3]string // version, model, hwmodel
		sysFail bool
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		replies, err := s.udp().DiscoverHost(ctx, d.Host)
		if err != nil {
			logging.Debug("Unicast re-query failed",
				zap.String("device_id", d.DeviceID),
				zap.Error(err),
			)
			return
		}
		fresh = replies
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		client := s.controlFor(d)

		v, err := client.GetVersion(ctx)
		if err != nil {
			logging.Debug("Firmware version fetch failed",
				zap.String("device_id", d.DeviceID),
				zap.Error(err),
			)
			sysFail = true
			return
		}
		sysVars[0] = v.Value
		if v, err := client.GetModel(ctx); err == nil {
			sysVars[1] = v.Value
		}
		if v, err := client.GetHWModel(ctx); err == nil {
			sysVars[2] = v.Value
		}
	}()

	wg.Wait()

	for _, f := range fresh {
		if f.DeviceID == d.DeviceID {
			d.Merge(f, false)
		}
	}
	if sysFail {
		d.Online = false
		return
	}
	d.Online = true
	if sysVars[0] != "" {
		d.InstalledVersion = sysVars[0]
	}
	if sysVars[1] != "" {
		d.Model = sysVars[1]
	}
	if sysVars[2] != "" {
		d.HWModel = sysVars[2]
	}
}

// RefreshTunerStatus replaces the device's per-tuner status. Non-legacy
// HTTP devices refresh via status.json, which retains the prior status
// when the fetch itself fails. Everything else walks the tuners over the
// control protocol and replaces the status wholesale, tolerating
// individual unreachable tuners.
func (s *Service) RefreshTunerStatus(ctx context.Context, d *device.Device) {
	if d.Method == device.MethodHTTP && !d.Legacy {
		if err := s.http().TunerStatus(ctx, d); err != nil {
			logging.Debug("Tuner status fetch failed",
				zap.String("device_id", d.DeviceID),
				zap.Error(err),
			)
		}
		return
	}
	s.refreshTunerStatusControl(ctx, d)
}

func (s *Service) refreshTunerStatusControl(ctx context.Context, d *device.Device) {
	count := d.TunerCount
	if count <= 0 {
		d.TunerStatus = nil
		return
	}

	client := s.controlFor(d)
	results := make([]*device.TunerStatus, count)

	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		wg.Add(1)
		go func(tuner int) {
			defer wg.Done()
			status, err := client.GetTunerStatus(ctx, tuner)
			if err != nil {
				logging.Debug("Tuner unreachable",
					zap.String("device_id", d.DeviceID),
					zap.Int("tuner", tuner),
					zap.Error(err),
				)
				return
			}
			// A locked tuner gets channel identification details.
			if status.SymbolQualityPercent != 0 {
				if info, err := client.GetTunerCurrentChannel(ctx, tuner); err == nil {
					status.VctNumber = info.VctNumber
					status.VctName = info.VctName
					status.TargetIP = info.TargetIP
				}
			}
			results[tuner] = status
		}(i)
	}
	wg.Wait()

	statuses := make([]device.TunerStatus, 0, count)
	for _, st := range results {
		if st != nil {
			statuses = append(statuses, *st)
		}
	}
	d.TunerStatus = statuses
	if len(statuses) == 0 {
		d.Online = false
	} else {
		d.Online = true
	}
}

// Restart reboots the device over the control protocol. Unlike the
// refresh operations this propagates any failure verbatim: the caller
// asked for it and needs to know it did not happen.
func (s *Service) Restart(ctx context.Context, d *device.Device) error {
	return s.controlFor(d).Restart(ctx)
}

// StartChannelScan begins a channel scan on the device. User command,
// failures propagate.
func (s *Service) StartChannelScan(ctx context.Context, d *device.Device, source string) error {
	return s.http().StartChannelScan(ctx, d, source)
}

// ChannelScanProgress reports the device's current scan progress as a
// percentage, updating its scan state along the way.
func (s *Service) ChannelScanProgress(ctx context.Context, d *device.Device) (int, error) {
	return s.http().LineupStatus(ctx, d)
}

// SortDevices orders devices by id for stable presentation. Discovery
// itself makes no ordering promise.
func SortDevices(devices []*device.Device) {
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].DeviceID < devices[j].DeviceID
	})
}

func (s *Service) controlFor(d *device.Device) *control.Client {
	client := control.NewClient(d.Host)
	if s.ControlPort != 0 {
		client.Port = s.ControlPort
	}
	return client
}

func (s *Service) http() *HTTPClient {
	if s.HTTP == nil {
		s.HTTP = NewHTTPClient()
	}
	return s.HTTP
}

func (s *Service) udp() *Scanner {
	if s.UDP == nil {
		s.UDP = NewScanner()
	}
	return s.UDP
}
