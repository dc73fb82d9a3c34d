package control

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/tunerkit/hdhr/internal/device"
)

// ParseTunerStatus decodes the control protocol's tuner status string,
// a space-delimited sequence of tag=value pairs, e.g.
//
//	ch=auto:605000000 lock=8vsb ss=83 snq=90 seq=100 bps=10807040 pps=1154
//
// Only numeric values are mapped, and a zero value is dropped rather
// than recorded: a zero signal metric carries no information.
func ParseTunerStatus(raw string) *device.TunerStatus {
	status := &device.TunerStatus{}

	for _, pair := range strings.Fields(raw) {
		tag, value, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil || n == 0 {
			continue
		}

		switch tag {
		case "ss":
			status.SignalStrengthPercent = n
		case "snq":
			status.SignalQualityPercent = n
		case "seq":
			status.SymbolQualityPercent = n
		}
	}

	return status
}

// lookupChannelName correlates a virtual-channel id against the
// channel-name table, whose lines have the form "<id>: <number> <name>".
// Returns empty strings when no line matches.
func lookupChannelName(table, id string) (number, name string) {
	prefix := id + ": "
	for _, line := range strings.Split(table, "\n") {
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		rest := strings.TrimPrefix(line, prefix)
		number, name, _ = strings.Cut(rest, " ")
		return number, name
	}
	return "", ""
}

// targetHost extracts the host from a tuner's streaming target URL.
// The value "none" means nothing is subscribed.
func targetHost(target string) string {
	if target == "" || target == "none" {
		return ""
	}
	u, err := url.Parse(target)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// resourceFromName derives the tuner resource name ("tuner0") from a
// getset reply name like "/tuner0/status".
func resourceFromName(name string) string {
	parts := strings.Split(strings.TrimPrefix(name, "/"), "/")
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}
