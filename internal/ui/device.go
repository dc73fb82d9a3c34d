package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tunerkit/hdhr/internal/device"
)

// RenderDeviceList renders one card per discovered device. Nicknames, when
// present, are shown alongside the device id.
func RenderDeviceList(devices []*device.Device, nicknames map[string]string) string {
	if len(devices) == 0 {
		return TroubleshootingItemStyle.Render("  No devices found.")
	}

	width := GetTerminalWidth()

	var cards []string
	for _, d := range devices {
		cards = append(cards, renderDeviceCard(d, nicknames[d.DeviceID], width))
	}
	return strings.Join(cards, "\n")
}

func renderDeviceCard(d *device.Device, nickname string, width int) string {
	name := d.FriendlyName
	if name == "" {
		name = d.Kind.String()
	}
	if nickname != "" {
		name = fmt.Sprintf("%s (%s)", nickname, name)
	}

	title := DetailValueStyle.Bold(true).Render(name)
	online := OnlineStyle.Render(OnlineMarker + " online")
	if !d.Online {
		online = OfflineStyle.Render(OfflineMarker + " offline")
	}
	titleLine := lipgloss.JoinHorizontal(lipgloss.Top, title, "  ", online)

	var lines []string
	lines = append(lines, titleLine)
	lines = append(lines, renderDetail("Device ID", d.DeviceID))
	lines = append(lines, renderDetail("Address", d.Host))
	if d.HWModel != "" {
		lines = append(lines, renderDetail("Model", d.HWModel))
	}
	if d.TunerCount > 0 {
		lines = append(lines, renderDetail("Tuners", fmt.Sprintf("%d", d.TunerCount)))
	}
	if d.BaseURL != "" {
		lines = append(lines, renderDetail("Base URL", d.BaseURL))
	}
	lines = append(lines, renderDetail("Found via", d.Method.String()))

	content := strings.Join(lines, "\n")
	return DeviceBoxStyle(width).Render(content)
}

// RenderDeviceDetails renders the full metadata of a single device, as
// shown by the info command.
func RenderDeviceDetails(d *device.Device) string {
	var lines []string

	add := func(key, value string) {
		if value != "" {
			lines = append(lines, renderDetail(key, value))
		}
	}

	add("Device ID", d.DeviceID)
	add("Address", d.Host)
	add("Type", d.Kind.String())
	add("Name", d.FriendlyName)
	add("Model", d.HWModel)
	add("Firmware", d.Model)
	add("Version", d.InstalledVersion)
	if d.LatestVersion != "" && d.LatestVersion != d.InstalledVersion {
		add("Upgrade", d.LatestVersion)
	}
	if d.TunerCount > 0 {
		add("Tuners", fmt.Sprintf("%d", d.TunerCount))
	}
	add("Base URL", d.BaseURL)
	add("Lineup URL", d.LineupURL)
	add("Device Auth", d.DeviceAuth)
	if d.Legacy {
		add("Legacy", "yes")
	}

	status := OnlineStyle.Render(OnlineMarker + " online")
	if !d.Online {
		status = OfflineStyle.Render(OfflineMarker + " offline")
	}
	lines = append(lines, DetailKeyStyle.Render("  Status:")+" "+status)

	return strings.Join(lines, "\n")
}

// RenderTunerStatus renders one line per tuner with signal readings and,
// when the tuner is locked, the channel it is tuned to.
func RenderTunerStatus(d *device.Device) string {
	if len(d.TunerStatus) == 0 {
		return TroubleshootingItemStyle.Render("  No tuner status available.")
	}

	var lines []string
	for _, ts := range d.TunerStatus {
		lines = append(lines, renderTunerLine(&ts))
	}
	return strings.Join(lines, "\n")
}

func renderTunerLine(ts *device.TunerStatus) string {
	name := DetailValueStyle.Bold(true).Render(ts.Resource)

	if ts.SymbolQualityPercent == 0 && ts.SignalStrengthPercent == 0 {
		return fmt.Sprintf("  %s  %s", name, TroubleshootingItemStyle.Render("idle"))
	}

	signal := fmt.Sprintf("ss=%d%% snq=%d%% seq=%d%%",
		ts.SignalStrengthPercent, ts.SignalQualityPercent, ts.SymbolQualityPercent)
	styled := SignalGoodStyle.Render(signal)
	if ts.SymbolQualityPercent < 75 {
		styled = SignalWeakStyle.Render(signal)
	}

	line := fmt.Sprintf("  %s  %s", name, styled)
	if ts.Frequency > 0 {
		line += "  " + TroubleshootingItemStyle.Render(fmt.Sprintf("%d MHz", ts.Frequency/1000000))
	}
	if ts.VctNumber != "" {
		channel := ts.VctNumber
		if ts.VctName != "" {
			channel += " " + ts.VctName
		}
		line += "  " + DetailValueStyle.Render(channel)
	}
	if ts.TargetIP != "" {
		line += "  " + TroubleshootingItemStyle.Render("→ "+ts.TargetIP)
	}
	return line
}

// RenderLineup renders the channel lineup as a table. Favorite channels
// are marked with a star.
func RenderLineup(d *device.Device, isFavorite func(guideNumber string) bool) string {
	if len(d.Channels) == 0 {
		return TroubleshootingItemStyle.Render("  No channels in lineup. Run a channel scan first.")
	}

	var lines []string
	for _, ch := range d.Channels {
		marker := " "
		if isFavorite != nil && isFavorite(ch.GuideNumber) {
			marker = FavoriteStyle.Render("★")
		}
		number := DetailValueStyle.Bold(true).Width(8).Render(ch.GuideNumber)
		name := DetailValueStyle.Render(ch.GuideName)
		line := fmt.Sprintf("  %s %s %s", marker, number, name)
		if ch.HD != 0 {
			line += "  " + SignalGoodStyle.Render("HD")
		}
		if ch.DRM != 0 {
			line += "  " + SignalWeakStyle.Render("DRM")
		}
		lines = append(lines, line)
	}
	lines = append(lines, "")
	lines = append(lines, TroubleshootingItemStyle.Render(
		fmt.Sprintf("  %d channels", len(d.Channels))))
	return strings.Join(lines, "\n")
}

func renderDetail(key, value string) string {
	return DetailKeyStyle.Render("  "+key+":") + " " + DetailValueStyle.Render(value)
}
