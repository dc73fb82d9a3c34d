package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/tunerkit/hdhr/internal/device"
	"github.com/tunerkit/hdhr/internal/logging"
	"github.com/tunerkit/hdhr/internal/protocol"
)

const (
	// DefaultBroadcastAddr is where discovery requests go when no
	// specific target is configured.
	DefaultBroadcastAddr = "255.255.255.255"

	// DefaultScanTimeout is the length of the reply collection window.
	// Devices answer at different times, so the scanner always waits out
	// the full window instead of returning on the first reply.
	DefaultScanTimeout = 3 * time.Second

	maxDatagramSize = 2048
)

// Scanner performs discovery over the vendor UDP broadcast protocol.
type Scanner struct {
	// Target is the address discovery requests are sent to. Defaults to
	// the local broadcast address; set a unicast address to query one
	// device directly.
	Target string

	// Port is the device discovery port. Overridable for tests.
	Port int

	// Timeout is the reply collection window.
	Timeout time.Duration
}

// NewScanner creates a UDP scanner with default settings.
func NewScanner() *Scanner {
	return &Scanner{
		Target:  DefaultBroadcastAddr,
		Port:    protocol.DiscoverPort,
		Timeout: DefaultScanTimeout,
	}
}

// Discover broadcasts one discovery request and collects replies for the
// full timeout window. Each well-formed reply datagram becomes one Device;
// repeated replies from the same unit are not deduplicated here, that is
// the orchestrator's job.
func (s *Scanner) Discover(ctx context.Context) ([]*device.Device, error) {
	return s.discover(ctx, s.target())
}

// DiscoverHost sends a unicast discovery request to a single device and
// collects its reply. Used to re-query a known device for fresh metadata.
func (s *Scanner) DiscoverHost(ctx context.Context, host string) ([]*device.Device, error) {
	return s.discover(ctx, host)
}

func (s *Scanner) discover(ctx context.Context, target string) ([]*device.Device, error) {
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("failed to open discovery socket: %w", err)
	}
	defer func() { _ = conn.Close() }()

	dest, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(target, strconv.Itoa(s.port())))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve discovery target %q: %w", target, err)
	}

	request := protocol.BuildDiscoverRequest(protocol.DeviceTypeWildcard, protocol.DeviceIDWildcard)
	if _, err := conn.WriteTo(request, dest); err != nil {
		return nil, fmt.Errorf("failed to send discovery request: %w", err)
	}
	logging.LogDatagram(dest.String(), "sent", request)

	// Collect replies until the window closes. The read deadline also
	// honors context cancellation.
	deadline := time.Now().Add(s.timeout())
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set read deadline: %w", err)
	}

	devices := make([]*device.Device, 0)
	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				break
			}
			return devices, fmt.Errorf("discovery socket read failed: %w", err)
		}

		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		logging.LogDatagram(from.String(), "received", datagram)

		d, err := parseDiscoverReply(datagram, from)
		if err != nil {
			// A bad datagram from one responder never aborts the
			// collection window.
			logging.Warn("Discarding discovery datagram",
				zap.String("remote_addr", from.String()),
				zap.Error(err),
			)
			continue
		}
		devices = append(devices, d)
	}

	return devices, ctx.Err()
}

// parseDiscoverReply decodes one reply datagram into a fresh Device.
// Only non-empty decoded values populate fields.
func parseDiscoverReply(datagram []byte, from net.Addr) (*device.Device, error) {
	resp, err := protocol.ParseResponse(datagram)
	if err != nil {
		return nil, err
	}
	if resp.Type != protocol.TypeDiscoverRpy {
		return nil, fmt.Errorf("unexpected packet type %s", protocol.PacketTypeName(resp.Type))
	}

	host := from.String()
	if udpAddr, ok := from.(*net.UDPAddr); ok {
		host = udpAddr.IP.String()
	}

	d := device.New(host)
	d.Method = device.MethodUDP

	if id, ok := protocol.DecodeUint32(resp.Data[protocol.TagDeviceID]); ok && id != 0 {
		d.DeviceID = device.FormatID(id)
	}
	if kind, ok := protocol.DecodeUint32(resp.Data[protocol.TagDeviceType]); ok {
		d.Kind = device.Type(kind)
	}
	if count := decodeTunerCount(resp.Data[protocol.TagTunerCount]); count > 0 {
		d.TunerCount = count
	}
	if v := protocol.DecodeString(resp.Data[protocol.TagBaseURL]); v != "" {
		d.BaseURL = v
	}
	if v := protocol.DecodeString(resp.Data[protocol.TagLineupURL]); v != "" {
		d.LineupURL = v
	}
	if v := protocol.DecodeString(resp.Data[protocol.TagDeviceAuthStr]); v != "" {
		d.DeviceAuth = v
	}

	return d, nil
}

// decodeTunerCount handles both encodings seen on the wire: a single
// byte on modern firmware, a 4-byte integer on some older units.
func decodeTunerCount(value []byte) int {
	switch len(value) {
	case 1:
		return int(value[0])
	case 4:
		if v, ok := protocol.DecodeUint32(value); ok {
			return int(v)
		}
	}
	return 0
}

func (s *Scanner) target() string {
	if s.Target == "" {
		return DefaultBroadcastAddr
	}
	return s.Target
}

func (s *Scanner) port() int {
	if s.Port == 0 {
		return protocol.DiscoverPort
	}
	return s.Port
}

func (s *Scanner) timeout() time.Duration {
	if s.Timeout <= 0 {
		return DefaultScanTimeout
	}
	return s.Timeout
}
