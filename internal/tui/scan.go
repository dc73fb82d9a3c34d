package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tunerkit/hdhr/internal/device"
	"github.com/tunerkit/hdhr/internal/discovery"
)

// Messages for async operations
type scanStartMsg struct{}
type scanCompleteMsg struct {
	devices []*device.Device
	err     error
}
type statusRefreshedMsg struct {
	target *device.Device
}

// scanKeyMap defines key bindings for the scan screen
type scanKeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Refresh key.Binding
	Rescan  key.Binding
	Quit    key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k scanKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Refresh, k.Rescan, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k scanKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Refresh, k.Rescan, k.Quit},
	}
}

// scanningKeyMap defines key bindings while the collection window is open
type scanningKeyMap struct {
	Quit key.Binding
}

func (s scanningKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{s.Quit}
}

func (s scanningKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{s.Quit}}
}

// deviceItem wraps a Device for use with bubbles/list
type deviceItem struct {
	device *device.Device
}

// Implement list.Item interface
func (d deviceItem) FilterValue() string {
	return d.device.DeviceID + " " + d.device.Host + " " + d.device.FriendlyName
}

// Title returns the device name for list display
func (d deviceItem) Title() string {
	if d.device.FriendlyName != "" {
		return d.device.FriendlyName
	}
	return "HDHomeRun " + d.device.DeviceID
}

// Description returns device details for list display
func (d deviceItem) Description() string {
	return fmt.Sprintf("%s • %d tuners • via %s", d.device.Host, d.device.TunerCount, d.device.Method)
}

// deviceDelegate is a custom list delegate for rendering device cards
type deviceDelegate struct {
	width int
}

func (d deviceDelegate) Height() int { return 9 } // Card height including borders

func (d deviceDelegate) Spacing() int { return 1 } // Spacing between cards

func (d deviceDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d deviceDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	card, ok := item.(deviceItem)
	if !ok {
		return
	}

	dev := card.device
	selected := index == m.Index()

	name := dev.FriendlyName
	if name == "" {
		name = "HDHomeRun " + dev.DeviceID
	}

	var content strings.Builder
	if selected {
		content.WriteString(SelectedMenuItemStyle.Render("→ " + name))
	} else {
		content.WriteString("  " + name)
	}
	content.WriteString("\n\n")

	content.WriteString(fmt.Sprintf("  Device ID: %s\n", dev.DeviceID))
	content.WriteString(fmt.Sprintf("  Host:      %s\n", dev.Host))
	model := dev.HWModel
	if model == "" {
		model = dev.Model
	}
	if model != "" {
		content.WriteString(fmt.Sprintf("  Model:     %s\n", model))
	} else {
		content.WriteString(fmt.Sprintf("  Firmware:  %s\n", dev.InstalledVersion))
	}
	content.WriteString(fmt.Sprintf("  Tuners:    %s\n", renderTuners(dev)))
	content.WriteString(fmt.Sprintf("  Status:    %s", renderOnline(dev)))

	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(BorderColor).
		Padding(1, 2).
		MarginLeft(2)

	cardWidth := d.width - 6
	if cardWidth < MinTerminalWidth-6 {
		cardWidth = MinTerminalWidth - 6
	}
	if cardWidth > MaxContentWidth-6 {
		cardWidth = MaxContentWidth - 6
	}
	cardStyle = cardStyle.Width(cardWidth)

	if selected {
		cardStyle = cardStyle.BorderForeground(HighlightColor)
	}

	fmt.Fprint(w, cardStyle.Render(content.String()))
}

// renderTuners summarizes tuner usage, with signal metrics once a status
// refresh has run.
func renderTuners(dev *device.Device) string {
	if len(dev.TunerStatus) == 0 {
		return fmt.Sprintf("%d (press enter for status)", dev.TunerCount)
	}
	parts := make([]string, 0, len(dev.TunerStatus))
	for _, st := range dev.TunerStatus {
		if st.VctNumber != "" {
			parts = append(parts, SignalStyle.Render(fmt.Sprintf("%s %s (ss %d%%)", st.Resource, st.VctNumber, st.SignalStrengthPercent)))
		} else {
			parts = append(parts, st.Resource+" idle")
		}
	}
	return strings.Join(parts, ", ")
}

func renderOnline(dev *device.Device) string {
	if !dev.Online {
		return OfflineStyle.Render("Offline")
	}
	return SignalStyle.Render("Online")
}

// ScanModel represents the device scan screen state
type ScanModel struct {
	// Discovery state
	Service    *discovery.Service
	Scanning   bool
	DeviceList list.Model
	Err        error

	// UI state
	Width         int
	Height        int
	Spinner       spinner.Model
	ScanStartTime time.Time
	Help          help.Model
	Keys          scanKeyMap
	ScanningKeys  scanningKeyMap
}

// NewScanModel creates a new scan screen model backed by the given
// discovery service.
func NewScanModel(svc *discovery.Service) ScanModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	delegate := deviceDelegate{width: MinTerminalWidth}
	deviceList := list.New([]list.Item{}, delegate, 0, 0)
	deviceList.Title = "Discovered Devices"
	deviceList.SetShowStatusBar(false)
	deviceList.SetFilteringEnabled(true)
	deviceList.Styles.Title = TitleStyle

	keys := scanKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "move down"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "tuner status"),
		),
		Rescan: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "rescan"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc"),
			key.WithHelp("q", "quit"),
		),
	}

	return ScanModel{
		Service:      svc,
		DeviceList:   deviceList,
		Spinner:      s,
		Help:         help.New(),
		Keys:         keys,
		ScanningKeys: scanningKeyMap{Quit: keys.Quit},
	}
}

// Init initializes the scan model
func (m ScanModel) Init() tea.Cmd {
	return tea.Batch(
		func() tea.Msg { return scanStartMsg{} },
		m.scanCmd(),
		m.Spinner.Tick,
	)
}

// Update handles messages and updates the model
func (m ScanModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "enter":
			if m.Scanning {
				return m, nil
			}
			if selected, ok := m.DeviceList.SelectedItem().(deviceItem); ok {
				return m, m.refreshStatusCmd(selected.device)
			}

		case "r":
			if m.Scanning {
				return m, nil
			}
			m.DeviceList.SetItems([]list.Item{})
			m.Err = nil
			return m, tea.Batch(
				func() tea.Msg { return scanStartMsg{} },
				m.scanCmd(),
				m.Spinner.Tick,
			)
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.DeviceList.SetWidth(msg.Width - 4)
		m.DeviceList.SetHeight(msg.Height - 10) // Leave room for header/footer

	case scanStartMsg:
		m.Scanning = true
		m.ScanStartTime = time.Now()

	case scanCompleteMsg:
		m.Scanning = false
		m.Err = msg.err
		items := make([]list.Item, len(msg.devices))
		for i, dev := range msg.devices {
			items[i] = deviceItem{device: dev}
		}
		m.DeviceList.SetItems(items)

	case statusRefreshedMsg:
		// Device records are shared pointers; re-setting the items makes
		// the list re-render the refreshed card.
		m.DeviceList.SetItems(m.DeviceList.Items())

	case spinner.TickMsg:
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	if !m.Scanning {
		m.DeviceList, cmd = m.DeviceList.Update(msg)
	}
	return m, cmd
}

// View renders the scan screen
func (m ScanModel) View() string {
	width := m.Width
	if width == 0 {
		width = MinTerminalWidth
	}

	var content string
	if m.Scanning {
		content = m.renderScanning(width)
	} else {
		content = m.renderResults()
	}

	var helpText string
	if m.Scanning {
		helpText = m.Help.View(m.ScanningKeys)
	} else {
		helpText = m.Help.View(m.Keys)
	}

	return RenderApplicationContainer(content, helpText, m.Width, m.Height)
}

// renderScanning renders the collection-window progress display
func (m ScanModel) renderScanning(width int) string {
	elapsed := int(time.Since(m.ScanStartTime).Seconds())

	title := fmt.Sprintf("%s SEARCHING FOR DEVICES", m.Spinner.View())
	subtitle := "Broadcasting on port 65001 and querying the directory service..."
	elapsedText := fmt.Sprintf("Elapsed: %ds", elapsed)

	content := lipgloss.JoinVertical(lipgloss.Center,
		"",
		TitleStyle.Render(title),
		"",
		SubtitleStyle.Render(subtitle),
		"",
		SubtitleStyle.Render(elapsedText),
		"",
	)

	return lipgloss.Place(width, 0, lipgloss.Center, lipgloss.Top, content)
}

// renderResults renders the device list or a "nothing found" message
func (m ScanModel) renderResults() string {
	var b strings.Builder

	b.WriteString("\n")

	if m.Err != nil {
		b.WriteString(RenderError(fmt.Sprintf("Scan failed: %v", m.Err)))
		b.WriteString("\n\n")
		b.WriteString("  Troubleshooting:\n")
		b.WriteString("    • Ensure the device is powered on and on this network segment\n")
		b.WriteString("    • Broadcast discovery needs UDP port 65001 open\n")
		b.WriteString("    • Directory discovery needs internet access\n")
	} else if len(m.DeviceList.Items()) == 0 {
		warningStyle := lipgloss.NewStyle().Foreground(WarningColor).Bold(true)
		b.WriteString("  ")
		b.WriteString(warningStyle.Render("⚠ No HDHomeRun devices found"))
		b.WriteString("\n\n")
		b.WriteString("  Troubleshooting:\n")
		b.WriteString("    • Ensure the device is powered on and on this network segment\n")
		b.WriteString("    • Broadcast discovery needs UDP port 65001 open\n")
		b.WriteString("    • Use 'r' to rescan\n")
	} else {
		b.WriteString(m.DeviceList.View())
	}

	return b.String()
}

// scanCmd runs a discovery pass off the UI loop.
func (m ScanModel) scanCmd() tea.Cmd {
	svc := m.Service
	return func() tea.Msg {
		devices, err := svc.Discover(context.Background())
		discovery.SortDevices(devices)
		return scanCompleteMsg{devices: devices, err: err}
	}
}

// refreshStatusCmd refreshes one device's tuner status off the UI loop.
func (m ScanModel) refreshStatusCmd(d *device.Device) tea.Cmd {
	svc := m.Service
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		svc.RefreshTunerStatus(ctx, d)
		return statusRefreshedMsg{target: d}
	}
}

// Run starts the interactive scan dashboard.
func Run(svc *discovery.Service) error {
	program := tea.NewProgram(NewScanModel(svc), tea.WithAltScreen())
	_, err := program.Run()
	return err
}
