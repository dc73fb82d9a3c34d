package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"testing"
)

func TestBuildRequestParseResponseRoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		packetType uint16
		payload    []TagValue
	}{
		{
			name:       "discovery probe",
			packetType: TypeDiscoverReq,
			payload: []TagValue{
				{Tag: TagDeviceType, Value: EncodeUint32(DeviceTypeTuner)},
				{Tag: TagDeviceID, Value: EncodeUint32(DeviceIDWildcard)},
			},
		},
		{
			name:       "getset with name and value",
			packetType: TypeGetSetReq,
			payload: []TagValue{
				{Tag: TagGetSetName, Value: EncodeString("/tuner0/status")},
				{Tag: TagGetSetValue, Value: EncodeString("none")},
			},
		},
		{
			name:       "empty payload",
			packetType: TypeDiscoverRpy,
			payload:    nil,
		},
		{
			name:       "value longer than 127 bytes uses two-byte length",
			packetType: TypeGetSetRpy,
			payload: []TagValue{
				{Tag: TagGetSetValue, Value: bytes.Repeat([]byte{0xAB}, 300)},
			},
		},
		{
			name:       "value at the one-byte length boundary",
			packetType: TypeGetSetRpy,
			payload: []TagValue{
				{Tag: TagGetSetValue, Value: bytes.Repeat([]byte{0x01}, 127)},
			},
		},
		{
			name:       "value just above the one-byte length boundary",
			packetType: TypeGetSetRpy,
			payload: []TagValue{
				{Tag: TagGetSetValue, Value: bytes.Repeat([]byte{0x02}, 128)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := BuildRequest(tt.packetType, tt.payload)

			resp, err := ParseResponse(raw)
			if err != nil {
				t.Fatalf("ParseResponse() error = %v", err)
			}
			if resp.Type != tt.packetType {
				t.Errorf("type = 0x%04x, want 0x%04x", resp.Type, tt.packetType)
			}
			if len(resp.Data) != len(tt.payload) {
				t.Errorf("decoded %d tags, want %d", len(resp.Data), len(tt.payload))
			}
			for _, tv := range tt.payload {
				got, ok := resp.Data[tv.Tag]
				if !ok {
					t.Errorf("tag 0x%02x missing from decoded data", tv.Tag)
					continue
				}
				if !bytes.Equal(got, tv.Value) {
					t.Errorf("tag 0x%02x value = %x, want %x", tv.Tag, got, tv.Value)
				}
			}
		})
	}
}

func TestParseResponseErrors(t *testing.T) {
	valid := BuildDiscoverRequest(DeviceTypeTuner, DeviceIDWildcard)

	tests := []struct {
		name string
		raw  []byte
	}{
		{
			name: "too short",
			raw:  valid[:7],
		},
		{
			name: "unknown packet type",
			raw: func() []byte {
				raw := append([]byte(nil), valid...)
				binary.BigEndian.PutUint16(raw[0:2], 0x00FF)
				return raw
			}(),
		},
		{
			name: "declared length exceeds buffer",
			raw: func() []byte {
				raw := append([]byte(nil), valid...)
				binary.BigEndian.PutUint16(raw[2:4], uint16(len(raw)))
				return raw
			}(),
		},
		{
			name: "CRC mismatch",
			raw: func() []byte {
				raw := append([]byte(nil), valid...)
				raw[len(raw)-1] ^= 0xFF
				return raw
			}(),
		},
		{
			name: "truncated TLV inside payload",
			raw: func() []byte {
				// Payload declares a 4-byte value but supplies only one.
				body := []byte{TagDeviceID, 0x04, 0x12}
				raw := make([]byte, 4, 4+len(body)+4)
				binary.BigEndian.PutUint16(raw[0:2], TypeDiscoverRpy)
				binary.BigEndian.PutUint16(raw[2:4], uint16(len(body)))
				raw = append(raw, body...)
				return binary.LittleEndian.AppendUint32(raw, crc32.ChecksumIEEE(raw))
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResponse(tt.raw)
			if err == nil {
				t.Fatal("ParseResponse() error = nil, want DecodeError")
			}
			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Errorf("error type = %T, want *DecodeError", err)
			}
		})
	}
}

func TestVarLengthEncoding(t *testing.T) {
	tests := []struct {
		length int
		want   []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7F}},
		{128, []byte{0x80, 0x01}},
		{300, []byte{0xAC, 0x02}},
	}

	for _, tt := range tests {
		got := appendVarLength(nil, tt.length)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("appendVarLength(%d) = %x, want %x", tt.length, got, tt.want)
		}

		decoded, n, err := readVarLength(tt.want)
		if err != nil {
			t.Errorf("readVarLength(%x) error = %v", tt.want, err)
			continue
		}
		if decoded != tt.length || n != len(tt.want) {
			t.Errorf("readVarLength(%x) = (%d, %d), want (%d, %d)",
				tt.want, decoded, n, tt.length, len(tt.want))
		}
	}
}

func TestDecodeString(t *testing.T) {
	tests := []struct {
		name  string
		value []byte
		want  string
	}{
		{"trailing NUL trimmed", []byte("20230323\x00"), "20230323"},
		{"no NUL", []byte("HDHR5-4US"), "HDHR5-4US"},
		{"only one NUL trimmed", []byte("x\x00\x00"), "x\x00"},
		{"empty", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeString(tt.value); got != tt.want {
				t.Errorf("DecodeString(%q) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestBuildSetRequestOrdering(t *testing.T) {
	raw := BuildSetRequest("/sys/restart", "self")

	resp, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if resp.Type != TypeGetSetReq {
		t.Errorf("type = 0x%04x, want 0x%04x", resp.Type, TypeGetSetReq)
	}
	if got := DecodeString(resp.Data[TagGetSetName]); got != "/sys/restart" {
		t.Errorf("name = %q, want %q", got, "/sys/restart")
	}
	if got := DecodeString(resp.Data[TagGetSetValue]); got != "self" {
		t.Errorf("value = %q, want %q", got, "self")
	}

	// The name tag must precede the value tag on the wire.
	nameIdx := bytes.Index(raw, []byte{TagGetSetName})
	valueIdx := bytes.Index(raw, []byte{TagGetSetValue})
	if nameIdx < 0 || valueIdx < 0 || nameIdx > valueIdx {
		t.Errorf("tag ordering wrong: name at %d, value at %d", nameIdx, valueIdx)
	}
}

func TestDecodeUint32(t *testing.T) {
	if v, ok := DecodeUint32([]byte{0x00, 0x00, 0x12, 0x34}); !ok || v != 0x1234 {
		t.Errorf("DecodeUint32 = (%d, %v), want (0x1234, true)", v, ok)
	}
	if _, ok := DecodeUint32([]byte{0x01}); ok {
		t.Error("DecodeUint32 accepted a short value")
	}
}

func BenchmarkParseResponse(b *testing.B) {
	raw := BuildRequest(TypeDiscoverRpy, []TagValue{
		{Tag: TagDeviceType, Value: EncodeUint32(DeviceTypeTuner)},
		{Tag: TagDeviceID, Value: EncodeUint32(0x10501234)},
		{Tag: TagTunerCount, Value: []byte{2}},
		{Tag: TagBaseURL, Value: EncodeString("http://192.168.1.20:80")},
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ParseResponse(raw); err != nil {
			b.Fatal(err)
		}
	}
}
