//go:build ignore

// Decode-packet pretty-prints a captured control-protocol frame.
//
// Feed it the hex dump of a packet (whitespace ignored), either as an
// argument or on stdin:
//
//	go run tools/decode-packet.go 00030014010400000001020410...
//	tcpdump -x udp port 65001 | grep -o '[0-9a-f ]*' | go run tools/decode-packet.go
package main

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/tunerkit/hdhr/internal/protocol"
)

func main() {
	input, err := readInput()
	if err != nil {
		fmt.Printf("Error reading input: %v\n", err)
		os.Exit(1)
	}

	raw, err := hex.DecodeString(input)
	if err != nil {
		fmt.Printf("Error: input is not valid hex: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("=== Control Packet Decoder ===\n")
	fmt.Printf("Frame: %d bytes\n\n", len(raw))

	resp, err := protocol.ParseResponse(raw)
	if err != nil {
		fmt.Printf("Decode failed: %v\n", err)
		dumpRawHeader(raw)
		os.Exit(1)
	}

	fmt.Printf("Type:    0x%04x (%s)\n", resp.Type, protocol.PacketTypeName(resp.Type))
	fmt.Printf("Length:  %d\n", resp.Length)
	fmt.Printf("Tags:    %d\n\n", len(resp.Data))

	for tag, value := range resp.Data {
		fmt.Printf("  tag 0x%02x (%s)\n", tag, tagName(tag))
		fmt.Printf("    hex:   %s\n", hex.EncodeToString(value))
		if v, ok := protocol.DecodeUint32(value); ok {
			fmt.Printf("    u32:   0x%08x (%d)\n", v, v)
		}
		if s := printable(value); s != "" {
			fmt.Printf("    ascii: %q\n", s)
		}
		fmt.Println()
	}
}

func readInput() (string, error) {
	var input string
	if len(os.Args) > 1 {
		input = strings.Join(os.Args[1:], "")
	} else {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", err
		}
		input = string(data)
	}
	// Strip whitespace so tcpdump-style dumps paste straight in
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, input), nil
}

func dumpRawHeader(raw []byte) {
	if len(raw) < 4 {
		return
	}
	fmt.Printf("\nRaw header:\n")
	fmt.Printf("  type:   0x%04x\n", binary.BigEndian.Uint16(raw[0:2]))
	fmt.Printf("  length: %d\n", binary.BigEndian.Uint16(raw[2:4]))
}

func printable(value []byte) string {
	// getset values are NUL-terminated strings; strip the terminator
	s := protocol.DecodeString(value)
	for _, r := range s {
		if r < 0x20 || r > 0x7e {
			return ""
		}
	}
	return s
}

func tagName(tag uint8) string {
	switch tag {
	case protocol.TagDeviceType:
		return "device type"
	case protocol.TagDeviceID:
		return "device id"
	case protocol.TagGetSetName:
		return "getset name"
	case protocol.TagGetSetValue:
		return "getset value"
	case protocol.TagErrorMessage:
		return "error message"
	case protocol.TagTunerCount:
		return "tuner count"
	case protocol.TagGetSetLockkey:
		return "getset lockkey"
	case protocol.TagLineupURL:
		return "lineup url"
	case protocol.TagStorageURL:
		return "storage url"
	case protocol.TagBaseURL:
		return "base url"
	case protocol.TagDeviceAuthStr:
		return "device auth"
	case protocol.TagStorageID:
		return "storage id"
	}
	return "unknown"
}
