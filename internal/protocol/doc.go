// Package protocol implements the HDHomeRun binary wire protocol.
//
// This package handles construction, validation, and parsing of the
// TLV-framed packets used for UDP device discovery and for the TCP
// control (getset) protocol.
//
// # Frame Format
//
// Every packet has this structure:
//   - Packet type: 2 bytes (big-endian)
//   - Payload length: 2 bytes (big-endian)
//   - Payload: sequence of TLV entries
//   - CRC32: 4 bytes (little-endian, Ethernet-style, over type+length+payload)
//
// Each TLV entry is a 1-byte tag, a variable-length length field
// (one byte up to 127, two bytes above that), and the value bytes.
// String values are NUL terminated on the wire.
//
// # Usage Example
//
//	req := protocol.BuildGetRequest("/sys/version")
//	// ... send req, read reply into buf ...
//	resp, err := protocol.ParseResponse(buf)
//	if err != nil {
//	    return err
//	}
//	if value, ok := resp.Data[protocol.TagGetSetValue]; ok {
//	    fmt.Println(protocol.DecodeString(value))
//	}
//
// Missing tags in a reply are not an error; callers must treat them as
// absent data.
package protocol
