package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/tunerkit/hdhr/internal/device"
	"github.com/tunerkit/hdhr/internal/logging"
	"github.com/tunerkit/hdhr/internal/protocol"
)

const (
	// DefaultTimeout bounds a single getset exchange (dial + write + read).
	DefaultTimeout = 2500 * time.Millisecond

	// maxReplySize caps the reply frame we are willing to read. Channel
	// name tables are the largest replies and stay well under this.
	maxReplySize = 64 * 1024
)

// Well-known control variables.
const (
	varVersion = "/sys/version"
	varModel   = "/sys/model"
	varHWModel = "/sys/hwmodel"
	varRestart = "/sys/restart"
)

// ErrEmptyReply is returned when a reply frame carries no value for a
// get request.
var ErrEmptyReply = errors.New("control: reply carried no value")

// DeviceError is an error message returned by the device itself inside
// a getset reply.
type DeviceError struct {
	Message string
}

func (e *DeviceError) Error() string {
	return "device error: " + e.Message
}

// Variable is the decoded result of a getset exchange.
type Variable struct {
	Name  string
	Value string
}

// ChannelInfo describes the channel a tuner is currently delivering.
// All fields may be empty when the tuner is idle or the virtual channel
// cannot be correlated against the channel-name table.
type ChannelInfo struct {
	VctNumber string
	VctName   string
	TargetIP  string
}

// Client speaks the TCP control protocol to one device. Every call
// opens a fresh connection, performs a single request/reply exchange
// and closes it; the devices misbehave with long-lived control
// connections and query volume is low.
type Client struct {
	// Host is the device IP or hostname.
	Host string

	// Port is the TCP control port.
	Port int

	// Timeout bounds each exchange.
	Timeout time.Duration
}

// NewClient creates a control client for the given device host.
func NewClient(host string) *Client {
	return &Client{
		Host:    host,
		Port:    protocol.ControlPort,
		Timeout: DefaultTimeout,
	}
}

// GetVariable reads the named variable from the device.
func (c *Client) GetVariable(ctx context.Context, name string) (*Variable, error) {
	return c.exchange(ctx, name, protocol.BuildGetRequest(name))
}

// SetVariable writes the named variable on the device.
func (c *Client) SetVariable(ctx context.Context, name, value string) (*Variable, error) {
	return c.exchange(ctx, name, protocol.BuildSetRequest(name, value))
}

// GetVersion reads the firmware version.
func (c *Client) GetVersion(ctx context.Context) (*Variable, error) {
	return c.GetVariable(ctx, varVersion)
}

// GetModel reads the firmware name.
func (c *Client) GetModel(ctx context.Context) (*Variable, error) {
	return c.GetVariable(ctx, varModel)
}

// GetHWModel reads the hardware model number.
func (c *Client) GetHWModel(ctx context.Context) (*Variable, error) {
	return c.GetVariable(ctx, varHWModel)
}

// Restart reboots the device. Unlike queries this propagates every
// failure verbatim: it is a user-initiated one-shot command with no
// tolerance for silent failure.
func (c *Client) Restart(ctx context.Context) error {
	if _, err := c.SetVariable(ctx, varRestart, "self"); err != nil {
		return fmt.Errorf("restart %s: %w", c.Host, err)
	}
	return nil
}

// GetTunerStatus reads and decodes the status of one tuner. The reply
// value is a space-delimited string of tag=value pairs; zero-valued
// signal metrics are dropped during decoding.
func (c *Client) GetTunerStatus(ctx context.Context, tuner int) (*device.TunerStatus, error) {
	v, err := c.GetVariable(ctx, fmt.Sprintf("/tuner%d/status", tuner))
	if err != nil {
		return nil, err
	}

	status := ParseTunerStatus(v.Value)
	status.Resource = resourceFromName(v.Name)
	return status, nil
}

// GetTunerCurrentChannel resolves the channel a tuner is currently
// tuned to. This takes two dependent round-trip stages: first the
// active virtual-channel id, then the channel-name table and the
// tuner's streaming target. No match in the table is not an error; the
// returned info is simply empty.
func (c *Client) GetTunerCurrentChannel(ctx context.Context, tuner int) (*ChannelInfo, error) {
	vchannel, err := c.GetVariable(ctx, fmt.Sprintf("/tuner%d/vchannel", tuner))
	if err != nil {
		return nil, err
	}

	info := &ChannelInfo{}
	id := strings.TrimSpace(vchannel.Value)
	if n, convErr := strconv.Atoi(id); convErr != nil || n == 0 {
		return info, nil
	}

	streaminfo, err := c.GetVariable(ctx, fmt.Sprintf("/tuner%d/streaminfo", tuner))
	if err != nil {
		return nil, err
	}
	target, err := c.GetVariable(ctx, fmt.Sprintf("/tuner%d/target", tuner))
	if err != nil {
		return nil, err
	}

	info.VctNumber, info.VctName = lookupChannelName(streaminfo.Value, id)
	info.TargetIP = targetHost(target.Value)
	return info, nil
}

// exchange dials the control port, sends one request frame, reads one
// reply frame and closes the connection.
func (c *Client) exchange(ctx context.Context, name string, req []byte) (*Variable, error) {
	addr := net.JoinHostPort(c.Host, strconv.Itoa(c.port()))

	dialer := net.Dialer{Timeout: c.timeout()}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("control connect %s: %w", addr, err)
	}
	defer func() { _ = conn.Close() }()

	deadline := time.Now().Add(c.timeout())
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("control deadline: %w", err)
	}

	if _, err := conn.Write(req); err != nil {
		return nil, fmt.Errorf("control send %s: %w", addr, err)
	}

	raw, err := readFrame(conn)
	if err != nil {
		return nil, fmt.Errorf("control recv %s: %w", addr, err)
	}

	logging.LogControlExchange(addr, name, len(req), len(raw))

	resp, err := protocol.ParseResponse(raw)
	if err != nil {
		logging.LogRawBytes("Undecodable control reply", raw)
		return nil, err
	}
	if resp.Type != protocol.TypeGetSetRpy {
		return nil, &protocol.DecodeError{
			Reason: fmt.Sprintf("expected getset reply, got %s", protocol.PacketTypeName(resp.Type)),
		}
	}
	if msg, ok := resp.Data[protocol.TagErrorMessage]; ok {
		return nil, &DeviceError{Message: protocol.DecodeString(msg)}
	}

	v := &Variable{}
	if name, ok := resp.Data[protocol.TagGetSetName]; ok {
		v.Name = protocol.DecodeString(name)
	}
	value, ok := resp.Data[protocol.TagGetSetValue]
	if !ok {
		return nil, ErrEmptyReply
	}
	v.Value = protocol.DecodeString(value)
	return v, nil
}

// readFrame reads exactly one protocol frame: the 4-byte header first
// to learn the payload length, then the payload and trailing CRC.
func readFrame(conn net.Conn) ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(conn, header); err != nil {
		return nil, err
	}

	length := int(header[2])<<8 | int(header[3])
	if length > maxReplySize {
		return nil, fmt.Errorf("reply payload too large: %d bytes", length)
	}

	rest := make([]byte, length+4) // payload + CRC
	if _, err := io.ReadFull(conn, rest); err != nil {
		return nil, err
	}
	return append(header, rest...), nil
}

func (c *Client) port() int {
	if c.Port == 0 {
		return protocol.ControlPort
	}
	return c.Port
}

func (c *Client) timeout() time.Duration {
	if c.Timeout == 0 {
		return DefaultTimeout
	}
	return c.Timeout
}
