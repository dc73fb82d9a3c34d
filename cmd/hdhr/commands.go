package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tunerkit/hdhr/internal/config"
	"github.com/tunerkit/hdhr/internal/control"
	"github.com/tunerkit/hdhr/internal/device"
	"github.com/tunerkit/hdhr/internal/discovery"
	"github.com/tunerkit/hdhr/internal/tui"
	"github.com/tunerkit/hdhr/internal/ui"
)

// Command flags
var (
	deviceAddr    string
	discoverMode  string
	outputFormat  string
	scanTimeout   int
	broadcastAddr string
	interactive   bool
	favoritesOnly bool
	skipConfirm   bool
	scanSource    string
	scanWait      bool
)

func init() {
	// Common flags for device commands (persistent on root)
	rootCmd.PersistentFlags().StringVar(&deviceAddr, "device", "", "Device ID, IP address, or nickname (skips selection)")
	rootCmd.PersistentFlags().StringVar(&discoverMode, "mode", "", "Discovery mode (auto, http, udp)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "detailed", "Output format (detailed, json)")

	// Add subcommands directly to root
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(lineupCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(channelscanCmd)
	rootCmd.AddCommand(nicknameCmd)
	rootCmd.AddCommand(favoriteCmd)
	rootCmd.AddCommand(configCmd)
}

// scanCmd discovers devices on the network
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the network for HDHomeRun devices",
	Long: `Scan for HDHomeRun devices.

By default both transports run: a UDP broadcast probe on the local
network and a lookup against the vendor HTTP directory service.
Results from the two are merged by device id.`,
	Example: `  # Scan with defaults
  hdhr scan

  # Interactive scanner with live tuner status
  hdhr scan --interactive

  # Broadcast-only scan with a longer collection window
  hdhr scan --mode udp --timeout 10

  # Probe a single subnet's broadcast address
  hdhr scan --broadcast 192.168.1.255`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().IntVar(&scanTimeout, "timeout", 0, "UDP collection window in seconds")
	scanCmd.Flags().StringVar(&broadcastAddr, "broadcast", "", "Broadcast or unicast target address")
	scanCmd.Flags().BoolVar(&interactive, "interactive", false, "Launch the interactive scanner")
}

func runScan(cmd *cobra.Command, args []string) error {
	reg := loadRegistry()
	svc, err := newService(reg)
	if err != nil {
		return err
	}

	if interactive {
		return tui.Run(svc)
	}

	fmt.Println("Scanning for HDHomeRun devices...")
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	devices, err := svc.Discover(ctx)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	discovery.SortDevices(devices)

	rememberDevices(reg, devices)

	if outputFormat == "json" {
		return printJSON(devices)
	}

	if len(devices) == 0 {
		fmt.Println("No devices found.")
		fmt.Println("\nTroubleshooting:")
		fmt.Println("  - Ensure the device is powered on and connected to this network")
		fmt.Println("  - Some networks block UDP broadcast; try --mode http")
		fmt.Println("  - Try increasing --timeout for slower networks")
		fmt.Println("  - Use --device flag to specify an IP manually")
		return nil
	}

	fmt.Println(ui.RenderDeviceList(devices, nicknames(reg, devices)))
	fmt.Println()
	fmt.Println("Use 'hdhr info --device <id>' to view device details")
	fmt.Println("Use 'hdhr scan --interactive' for the live scanner")

	return nil
}

// infoCmd displays full device metadata
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show device details",
	Long: `Display everything known about one device.

The device is refreshed first: HTTP-discovered devices are queried over
their JSON endpoints, UDP-discovered and legacy devices over the
control protocol.`,
	Example: `  # Show details with auto-selection
  hdhr info

  # Show details for a specific device
  hdhr info --device 1038A4C7
  hdhr info --device 192.168.1.50

  # JSON output for scripting
  hdhr info --device 1038A4C7 --format json`,
	RunE: runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	reg := loadRegistry()
	svc, err := newService(reg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	d, err := resolveDevice(ctx, svc, reg)
	if err != nil {
		return err
	}

	svc.GatherDetails(ctx, d)
	rememberDevices(reg, []*device.Device{d})

	if outputFormat == "json" {
		return printJSON(d)
	}

	fmt.Println(ui.RenderCommandHeader("Device Details", "hdhr info "+d.DeviceID,
		ui.Param{Key: "Device", Value: d.Host}))
	fmt.Println()
	fmt.Println(ui.RenderDeviceDetails(d))
	return nil
}

// statusCmd displays live tuner status
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tuner status",
	Long: `Display live status for every tuner on a device: signal strength,
signal quality, symbol quality, and the channel a locked tuner is
streaming to.`,
	Example: `  # Status with auto-selection
  hdhr status

  # Status for a specific device
  hdhr status --device 1038A4C7`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	reg := loadRegistry()
	svc, err := newService(reg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	d, err := resolveDevice(ctx, svc, reg)
	if err != nil {
		return err
	}

	svc.RefreshTunerStatus(ctx, d)

	if outputFormat == "json" {
		return printJSON(d.TunerStatus)
	}

	fmt.Println(ui.RenderCommandHeader("Tuner Status", "hdhr status "+d.DeviceID,
		ui.Param{Key: "Device", Value: d.Host}))
	fmt.Println()
	fmt.Println(ui.RenderTunerStatus(d))
	if !d.Online {
		fmt.Println()
		fmt.Println(ui.RenderFailure("Device unreachable", nil, []string{
			"Check that the device is powered on",
			"Verify the address with 'hdhr scan'",
		}))
	}
	return nil
}

// lineupCmd displays the channel lineup
var lineupCmd = &cobra.Command{
	Use:   "lineup",
	Short: "Show the channel lineup",
	Long: `Display the channel lineup of a device.

Only channels found by the device's last channel scan are listed.
Favorites saved with 'hdhr favorite' are marked with a star.`,
	Example: `  # Lineup with auto-selection
  hdhr lineup

  # Only favorite channels
  hdhr lineup --favorites

  # JSON output for scripting
  hdhr lineup --device 1038A4C7 --format json`,
	RunE: runLineup,
}

func init() {
	lineupCmd.Flags().BoolVar(&favoritesOnly, "favorites", false, "Only show favorite channels")
}

func runLineup(cmd *cobra.Command, args []string) error {
	reg := loadRegistry()
	svc, err := newService(reg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	d, err := resolveDevice(ctx, svc, reg)
	if err != nil {
		return err
	}

	if err := svc.HTTP.Lineup(ctx, d); err != nil {
		return fmt.Errorf("failed to fetch lineup: %w", err)
	}

	if favoritesOnly {
		var kept []device.Channel
		for _, ch := range d.Channels {
			if reg.IsFavoriteChannel(d.DeviceID, ch.GuideNumber) {
				kept = append(kept, ch)
			}
		}
		d.Channels = kept
	}

	if outputFormat == "json" {
		return printJSON(d.Channels)
	}

	fmt.Println(ui.RenderCommandHeader("Channel Lineup", "hdhr lineup "+d.DeviceID,
		ui.Param{Key: "Device", Value: d.Host}))
	fmt.Println()
	fmt.Println(ui.RenderLineup(d, func(guideNumber string) bool {
		return reg.IsFavoriteChannel(d.DeviceID, guideNumber)
	}))
	return nil
}

// getCmd reads a control variable
var getCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Read a control variable",
	Long: `Read a named variable over the TCP control protocol.

Variable names follow the vendor convention, e.g. /sys/version,
/sys/model, /tuner0/status, /tuner0/vchannel.`,
	Example: `  # Read the firmware version
  hdhr get /sys/version --device 1038A4C7

  # Read tuner 0's raw status string
  hdhr get /tuner0/status --device 192.168.1.50`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	reg := loadRegistry()
	svc, err := newService(reg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	d, err := resolveDevice(ctx, svc, reg)
	if err != nil {
		return err
	}

	v, err := control.NewClient(d.Host).GetVariable(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Println(v.Value)
	return nil
}

// setCmd writes a control variable
var setCmd = &cobra.Command{
	Use:   "set <name> <value>",
	Short: "Write a control variable",
	Long: `Write a named variable over the TCP control protocol and print the
value the device reports back.`,
	Example: `  # Tune tuner 0 to virtual channel 7.2
  hdhr set /tuner0/vchannel 7.2 --device 1038A4C7

  # Release tuner 0
  hdhr set /tuner0/channel none --device 1038A4C7`,
	Args: cobra.ExactArgs(2),
	RunE: runSet,
}

func runSet(cmd *cobra.Command, args []string) error {
	reg := loadRegistry()
	svc, err := newService(reg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	d, err := resolveDevice(ctx, svc, reg)
	if err != nil {
		return err
	}

	v, err := control.NewClient(d.Host).SetVariable(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Println(v.Value)
	return nil
}

// restartCmd reboots a device
var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart a device",
	Long: `Reboot a device over the control protocol.

Active streams are dropped and the device is unreachable for roughly
30 seconds while it comes back up.`,
	Example: `  # Restart with confirmation prompt
  hdhr restart --device 1038A4C7

  # Restart without prompting (for scripts)
  hdhr restart --device 1038A4C7 --yes`,
	RunE: runRestart,
}

func init() {
	restartCmd.Flags().BoolVar(&skipConfirm, "yes", false, "Skip the confirmation prompt")
}

func runRestart(cmd *cobra.Command, args []string) error {
	reg := loadRegistry()
	svc, err := newService(reg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	d, err := resolveDevice(ctx, svc, reg)
	if err != nil {
		return err
	}

	if !skipConfirm && !ui.ConfirmRestart(d.DeviceID) {
		return nil
	}

	if err := svc.Restart(ctx, d); err != nil {
		fmt.Println(ui.RenderFailure("Device restart", err, []string{
			"Verify the device address with 'hdhr scan'",
			"Legacy devices may need a power cycle instead",
		}))
		return err
	}

	fmt.Println(ui.RenderSuccess("Device restart requested",
		ui.Param{Key: "Device", Value: d.DeviceID},
		ui.Param{Key: "Address", Value: d.Host},
	))
	return nil
}

// channelscanCmd starts a channel scan
var channelscanCmd = &cobra.Command{
	Use:   "channelscan",
	Short: "Start a channel scan",
	Long: `Start a channel scan on a device and optionally wait for it to
finish.

Scanning sweeps the full frequency range and rebuilds the channel
lineup. A scan takes several minutes and occupies a tuner while it
runs.`,
	Example: `  # Start a scan and return immediately
  hdhr channelscan --device 1038A4C7

  # Scan a specific source and wait for completion
  hdhr channelscan --device 1038A4C7 --source Cable --wait`,
	RunE: runChannelScan,
}

func init() {
	channelscanCmd.Flags().StringVar(&scanSource, "source", "Antenna", "Signal source to scan")
	channelscanCmd.Flags().BoolVar(&scanWait, "wait", false, "Poll until the scan completes")
}

func runChannelScan(cmd *cobra.Command, args []string) error {
	reg := loadRegistry()
	svc, err := newService(reg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	d, err := resolveDevice(ctx, svc, reg)
	if err != nil {
		return err
	}

	if err := svc.StartChannelScan(ctx, d, scanSource); err != nil {
		return fmt.Errorf("failed to start channel scan: %w", err)
	}

	if !scanWait {
		fmt.Printf("Channel scan started on %s (source: %s).\n", d.DeviceID, scanSource)
		fmt.Println("Use 'hdhr channelscan --wait' to watch progress, or check back with 'hdhr lineup'.")
		return nil
	}

	fmt.Printf("Scanning %s on %s...\n\n", scanSource, d.DeviceID)

	bar := ui.NewScanProgress(scanSource)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}

		progress, err := svc.ChannelScanProgress(ctx, d)
		if err != nil {
			fmt.Println()
			return fmt.Errorf("failed to poll scan progress: %w", err)
		}

		bar.Update(progress, d.ScanFound)
		fmt.Printf("\r%s", bar.Render())

		if !d.ScanInProgress {
			break
		}
	}
	fmt.Println()
	fmt.Println()
	fmt.Printf("Scan complete: %d programs found.\n", d.ScanFound)
	return nil
}

// nicknameCmd assigns a local nickname to a device
var nicknameCmd = &cobra.Command{
	Use:   "nickname <name>",
	Short: "Set a local nickname for a device",
	Long: `Assign a nickname to a device.

Nicknames are stored in the local registry, shown in scan output, and
accepted by the --device flag. They never touch the device itself.`,
	Example: `  # Name the living-room tuner
  hdhr nickname livingroom --device 1038A4C7

  # Then address it by name
  hdhr status --device livingroom`,
	Args: cobra.ExactArgs(1),
	RunE: runNickname,
}

func runNickname(cmd *cobra.Command, args []string) error {
	reg := loadRegistry()
	svc, err := newService(reg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	d, err := resolveDevice(ctx, svc, reg)
	if err != nil {
		return err
	}

	reg.SetDeviceNickname(d.DeviceID, args[0])
	if err := reg.Save(); err != nil {
		return fmt.Errorf("failed to save registry: %w", err)
	}
	fmt.Printf("Device %s is now %q.\n", d.DeviceID, args[0])
	return nil
}

// favoriteCmd toggles a favorite channel
var favoriteCmd = &cobra.Command{
	Use:   "favorite <guide-number>",
	Short: "Toggle a favorite channel",
	Long: `Toggle a channel's favorite flag for a device.

Favorites are stored in the local registry and marked with a star in
'hdhr lineup'. Use 'hdhr lineup --favorites' to list only favorites.`,
	Example: `  # Star channel 7.2
  hdhr favorite 7.2 --device 1038A4C7

  # Run again to unstar it
  hdhr favorite 7.2 --device 1038A4C7`,
	Args: cobra.ExactArgs(1),
	RunE: runFavorite,
}

func runFavorite(cmd *cobra.Command, args []string) error {
	reg := loadRegistry()
	svc, err := newService(reg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	d, err := resolveDevice(ctx, svc, reg)
	if err != nil {
		return err
	}

	added := reg.ToggleFavoriteChannel(d.DeviceID, args[0])
	if err := reg.Save(); err != nil {
		return fmt.Errorf("failed to save registry: %w", err)
	}
	if added {
		fmt.Printf("Channel %s added to favorites on %s.\n", args[0], d.DeviceID)
	} else {
		fmt.Printf("Channel %s removed from favorites on %s.\n", args[0], d.DeviceID)
	}
	return nil
}

// configCmd groups registry management subcommands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the local registry",
	Long: `Manage the local registry file.

The registry stores device nicknames, favorite channels, and tool
preferences. Device state is never stored; it is rediscovered from the
network on every run.`,
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a registry file with example entries",
	Example: `  # Write an annotated starter registry
  hdhr config init`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.GetConfigPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("registry already exists at %s", path)
		}
		if err := config.CreateDefaultConfig(); err != nil {
			return fmt.Errorf("failed to create registry: %w", err)
		}
		fmt.Printf("Created %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the registry as stored on disk",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Fresh read so edits made outside this process show up.
		reg, err := config.ReloadRegistry()
		if err != nil {
			return fmt.Errorf("failed to load registry: %w", err)
		}
		data, err := yaml.Marshal(reg)
		if err != nil {
			return fmt.Errorf("failed to render registry: %w", err)
		}
		fmt.Print(string(data))
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the registry file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.GetConfigPath()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

// --- Helpers ---

// loadRegistry loads the local device registry. A broken or missing
// registry never blocks a command; it degrades to defaults.
func loadRegistry() *config.Registry {
	reg, err := config.LoadRegistry()
	if err != nil {
		fmt.Printf("Warning: could not load registry: %v\n", err)
		return config.NewRegistry()
	}
	return reg
}

// newService builds the discovery service from registry preferences,
// with command-line flags taking precedence.
func newService(reg *config.Registry) (*discovery.Service, error) {
	svc := discovery.NewService()

	modeStr := discoverMode
	if modeStr == "" {
		modeStr = reg.Preferences.DiscoverMode
	}
	mode, err := discovery.ParseMode(modeStr)
	if err != nil {
		return nil, err
	}
	svc.Mode = mode

	if scanTimeout > 0 {
		svc.UDP.Timeout = time.Duration(scanTimeout) * time.Second
	} else if reg.Preferences.ScanTimeout > 0 {
		svc.UDP.Timeout = time.Duration(reg.Preferences.ScanTimeout) * time.Second
	}
	if broadcastAddr != "" {
		svc.UDP.Target = broadcastAddr
	} else if reg.Preferences.BroadcastAddress != "" {
		svc.UDP.Target = reg.Preferences.BroadcastAddress
	}
	if reg.Preferences.DirectoryURL != "" {
		svc.HTTP.DirectoryURL = reg.Preferences.DirectoryURL
	}

	return svc, nil
}

var deviceIDPattern = regexp.MustCompile(`^[0-9A-Fa-f]{8}$`)

// resolveDevice turns the --device flag into a live device record. With
// no flag it discovers the network and requires exactly one device; a
// device id or nickname selects from discovery results; anything else
// is treated as a host address and probed directly.
func resolveDevice(ctx context.Context, svc *discovery.Service, reg *config.Registry) (*device.Device, error) {
	if deviceAddr != "" && !deviceIDPattern.MatchString(deviceAddr) && !isNickname(reg, deviceAddr) {
		return probeHost(ctx, svc, deviceAddr)
	}

	devices, err := svc.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovery failed: %w", err)
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("no devices found. Use --device to specify an IP manually")
	}

	if deviceAddr == "" {
		if len(devices) > 1 {
			fmt.Printf("Found %d devices:\n", len(devices))
			for i, d := range devices {
				fmt.Printf("%d. %s (%s)\n", i+1, d.DeviceID, d.Host)
			}
			return nil, fmt.Errorf("multiple devices found. Use --device to specify which one")
		}
		return devices[0], nil
	}

	for _, d := range devices {
		if strings.EqualFold(d.DeviceID, deviceAddr) {
			return d, nil
		}
		if entry := reg.GetDevice(d.DeviceID); entry != nil && entry.Nickname == deviceAddr {
			return d, nil
		}
	}
	return nil, fmt.Errorf("device %q not found on the network", deviceAddr)
}

// probeHost contacts a known address directly, HTTP first with a
// unicast control-protocol fallback.
func probeHost(ctx context.Context, svc *discovery.Service, host string) (*device.Device, error) {
	d := device.New(host)
	if err := svc.HTTP.Rediscover(ctx, d); err == nil {
		d.Method = device.MethodHTTP
		return d, nil
	}

	devices, err := svc.UDP.DiscoverHost(ctx, host)
	if err == nil && len(devices) > 0 {
		return devices[0], nil
	}
	return nil, fmt.Errorf("no device answered at %s", host)
}

// isNickname reports whether name matches a registry nickname.
func isNickname(reg *config.Registry, name string) bool {
	for _, entry := range reg.Devices {
		if entry.Nickname == name {
			return true
		}
	}
	return false
}

// rememberDevices records last-seen state in the local registry.
// Persistence failures are not worth failing a command over.
func rememberDevices(reg *config.Registry, devices []*device.Device) {
	for _, d := range devices {
		if d.DeviceID != "" {
			reg.UpdateDeviceLastSeen(d.DeviceID, d.Host)
		}
	}
	if err := reg.Save(); err != nil {
		fmt.Printf("Warning: could not save registry: %v\n", err)
	}
}

// nicknames returns the nickname map for the given devices.
func nicknames(reg *config.Registry, devices []*device.Device) map[string]string {
	out := make(map[string]string, len(devices))
	for _, d := range devices {
		if entry := reg.GetDevice(d.DeviceID); entry != nil && entry.Nickname != "" {
			out[d.DeviceID] = entry.Nickname
		}
	}
	return out
}

// printJSON writes v as indented JSON for scripting.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
