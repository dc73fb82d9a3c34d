package protocol

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"strings"
)

// Packet types (from the HDHomeRun wire protocol)
const (
	TypeDiscoverReq uint16 = 0x0002
	TypeDiscoverRpy uint16 = 0x0003
	TypeGetSetReq   uint16 = 0x0004
	TypeGetSetRpy   uint16 = 0x0005
	TypeUpgradeReq  uint16 = 0x0006
	TypeUpgradeRpy  uint16 = 0x0007
)

// TLV tags
const (
	TagDeviceType    uint8 = 0x01
	TagDeviceID      uint8 = 0x02
	TagGetSetName    uint8 = 0x03
	TagGetSetValue   uint8 = 0x04
	TagErrorMessage  uint8 = 0x05
	TagTunerCount    uint8 = 0x10
	TagGetSetLockkey uint8 = 0x15
	TagLineupURL     uint8 = 0x27
	TagStorageURL    uint8 = 0x28
	TagBaseURL       uint8 = 0x2A
	TagDeviceAuthStr uint8 = 0x2B
	TagStorageID     uint8 = 0x2C
)

// Device type values carried in TagDeviceType
const (
	DeviceTypeTuner    uint32 = 0x00000001
	DeviceTypeStorage  uint32 = 0x00000005
	DeviceTypeWildcard uint32 = 0xFFFFFFFF
)

// DeviceIDWildcard matches any device in a discovery request.
const DeviceIDWildcard uint32 = 0xFFFFFFFF

// DiscoverPort is the UDP discovery port. ControlPort is the TCP control
// port. The protocol uses the same number for both.
const (
	DiscoverPort = 65001
	ControlPort  = 65001
)

// frameOverhead is type (2) + length (2) + trailing CRC (4).
const frameOverhead = 8

// All fields are big-endian except the CRC, which the devices append
// little-endian. Ethernet-style CRC32 over type+length+payload.
var crcTable = crc32.MakeTable(crc32.IEEE)

// DecodeError reports a malformed, truncated or CRC-mismatched frame.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "protocol decode error: " + e.Reason
}

func decodeErrorf(format string, args ...any) *DecodeError {
	return &DecodeError{Reason: fmt.Sprintf(format, args...)}
}

// TagValue is one TLV entry of a request payload. Order is preserved on
// the wire; devices are sensitive to it for getset requests.
type TagValue struct {
	Tag   uint8
	Value []byte
}

// Response is a decoded reply frame. Data holds the raw value bytes per
// tag; a tag repeated in the payload keeps the last occurrence. Callers
// must treat a missing tag as absent, not as an error.
type Response struct {
	Type   uint16
	Length uint16
	Data   map[uint8][]byte
	Raw    []byte
}

// BuildRequest frames the given TLV payload for the wire: type and length
// big-endian, payload entries in order, CRC32 appended little-endian.
func BuildRequest(packetType uint16, payload []TagValue) []byte {
	body := make([]byte, 0, 64)
	for _, tv := range payload {
		body = append(body, tv.Tag)
		body = appendVarLength(body, len(tv.Value))
		body = append(body, tv.Value...)
	}

	buf := make([]byte, 4, 4+len(body)+4)
	binary.BigEndian.PutUint16(buf[0:2], packetType)
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(body)))
	buf = append(buf, body...)

	crc := crc32.Checksum(buf, crcTable)
	buf = binary.LittleEndian.AppendUint32(buf, crc)
	return buf
}

// ParseResponse validates and decodes a single reply frame. It fails when
// the packet type is unknown, the declared length exceeds the buffer, or
// the CRC does not match.
func ParseResponse(raw []byte) (*Response, error) {
	if len(raw) < frameOverhead {
		return nil, decodeErrorf("frame too short: %d bytes (minimum %d)", len(raw), frameOverhead)
	}

	packetType := binary.BigEndian.Uint16(raw[0:2])
	if !knownPacketType(packetType) {
		return nil, decodeErrorf("unexpected packet type 0x%04x", packetType)
	}

	length := binary.BigEndian.Uint16(raw[2:4])
	if int(length)+frameOverhead > len(raw) {
		return nil, decodeErrorf("declared length %d exceeds frame size %d", length, len(raw))
	}

	payloadEnd := 4 + int(length)
	wantCRC := binary.LittleEndian.Uint32(raw[payloadEnd : payloadEnd+4])
	gotCRC := crc32.Checksum(raw[:payloadEnd], crcTable)
	if wantCRC != gotCRC {
		return nil, decodeErrorf("CRC mismatch: frame 0x%08x, computed 0x%08x", wantCRC, gotCRC)
	}

	data, err := parseTLVs(raw[4:payloadEnd])
	if err != nil {
		return nil, err
	}

	return &Response{
		Type:   packetType,
		Length: length,
		Data:   data,
		Raw:    raw[:payloadEnd+4],
	}, nil
}

// parseTLVs walks the payload TLV entries into a tag->value map.
func parseTLVs(payload []byte) (map[uint8][]byte, error) {
	data := make(map[uint8][]byte)
	pos := 0
	for pos < len(payload) {
		if pos+2 > len(payload) {
			return nil, decodeErrorf("truncated TLV header at offset %d", pos)
		}
		tag := payload[pos]
		pos++

		length, n, err := readVarLength(payload[pos:])
		if err != nil {
			return nil, err
		}
		pos += n

		if pos+length > len(payload) {
			return nil, decodeErrorf("TLV value for tag 0x%02x overruns payload: need %d, have %d",
				tag, length, len(payload)-pos)
		}
		value := make([]byte, length)
		copy(value, payload[pos:pos+length])
		pos += length

		data[tag] = value
	}
	return data, nil
}

// appendVarLength encodes a TLV length. Lengths up to 127 take one byte;
// longer values use the protocol's two-byte continuation form
// (low 7 bits with 0x80 set, then the remaining bits). This is a fixed
// external contract and must not be altered.
func appendVarLength(buf []byte, length int) []byte {
	if length <= 0x7F {
		return append(buf, byte(length))
	}
	return append(buf, byte(length&0x7F)|0x80, byte(length>>7))
}

// readVarLength decodes a TLV length, returning the length and the number
// of bytes consumed.
func readVarLength(buf []byte) (int, int, error) {
	if len(buf) < 1 {
		return 0, 0, decodeErrorf("truncated TLV length")
	}
	length := int(buf[0])
	if length&0x80 == 0 {
		return length, 1, nil
	}
	if len(buf) < 2 {
		return 0, 0, decodeErrorf("truncated two-byte TLV length")
	}
	return (length & 0x7F) | int(buf[1])<<7, 2, nil
}

func knownPacketType(t uint16) bool {
	switch t {
	case TypeDiscoverReq, TypeDiscoverRpy, TypeGetSetReq, TypeGetSetRpy,
		TypeUpgradeReq, TypeUpgradeRpy:
		return true
	}
	return false
}

// DecodeString interprets a TLV value as UTF-8, trimming the single
// trailing NUL the devices append to string values.
func DecodeString(value []byte) string {
	return strings.TrimSuffix(string(value), "\x00")
}

// EncodeString produces the wire form of a string value (NUL terminated).
func EncodeString(s string) []byte {
	return append([]byte(s), 0)
}

// EncodeUint32 produces the wire form of a 4-byte value (big-endian).
func EncodeUint32(v uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, v)
}

// DecodeUint32 reads a 4-byte big-endian TLV value. ok is false when the
// value is not exactly four bytes.
func DecodeUint32(value []byte) (v uint32, ok bool) {
	if len(value) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(value), true
}

// BuildDiscoverRequest builds the broadcast discovery probe: wildcard-type
// tuner plus wildcard device ID.
func BuildDiscoverRequest(deviceType, deviceID uint32) []byte {
	return BuildRequest(TypeDiscoverReq, []TagValue{
		{Tag: TagDeviceType, Value: EncodeUint32(deviceType)},
		{Tag: TagDeviceID, Value: EncodeUint32(deviceID)},
	})
}

// BuildGetRequest builds a getset request reading the named variable.
func BuildGetRequest(name string) []byte {
	return BuildRequest(TypeGetSetReq, []TagValue{
		{Tag: TagGetSetName, Value: EncodeString(name)},
	})
}

// BuildSetRequest builds a getset request writing the named variable.
func BuildSetRequest(name, value string) []byte {
	return BuildRequest(TypeGetSetReq, []TagValue{
		{Tag: TagGetSetName, Value: EncodeString(name)},
		{Tag: TagGetSetValue, Value: EncodeString(value)},
	})
}

// String returns a debug representation of the response.
func (r *Response) String() string {
	return fmt.Sprintf("Response{type=%s, len=%d, tags=%d}",
		PacketTypeName(r.Type), r.Length, len(r.Data))
}

// PacketTypeName returns a human-readable name for a packet type.
func PacketTypeName(t uint16) string {
	switch t {
	case TypeDiscoverReq:
		return "DiscoverReq"
	case TypeDiscoverRpy:
		return "DiscoverRpy"
	case TypeGetSetReq:
		return "GetSetReq"
	case TypeGetSetRpy:
		return "GetSetRpy"
	case TypeUpgradeReq:
		return "UpgradeReq"
	case TypeUpgradeRpy:
		return "UpgradeRpy"
	default:
		return fmt.Sprintf("Unknown(0x%04x)", t)
	}
}
