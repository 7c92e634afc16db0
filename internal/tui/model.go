package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ruuvitool/internal/ble"
	"ruuvitool/internal/commands"
	"ruuvitool/internal/history"
	"ruuvitool/internal/protocol"
	"ruuvitool/internal/store"
)

// View represents different screens in the TUI.
type View int

const (
	ViewMain View = iota
	ViewFetch
	ViewCaps
	ViewArchive
	ViewArchiveDetail
	ViewHelp
)

// MenuItem represents a menu option.
type MenuItem struct {
	Title       string
	Description string
	View        View
}

// Model is the main Bubbletea model for the TUI.
type Model struct {
	// State
	view          View
	cursor        int
	cursorHistory map[View]int // Remember cursor position per view
	menuItems     []MenuItem
	width         int
	height        int

	// Target device, empty means scan for any Ruuvi sensor
	mac string

	// Fetch state
	fetching      bool
	fetchEvents   chan tea.Msg
	fetchProgress ProgressState
	fetchResult   *history.Result
	fetchMAC      string
	fetchHash     string
	fetchErr      error

	// Capability state
	capsLoading bool
	caps        *protocol.DeviceCapabilities
	devInfo     *protocol.DeviceInfo
	capsErr     error

	// Archive state
	captures     map[string]store.IndexEntry
	hashes       []string // newest first
	selectedHash string
	selectedMeta *store.Metadata
	archiveErr   error

	// Components
	keys    KeyMap
	help    help.Model
	spinner spinner.Model
	styles  Styles
}

// --- Custom messages for async operations ---

// fetchProgressMsg reports chunk transfer progress during a retrieval.
type fetchProgressMsg struct {
	p history.Progress
}

// fetchDoneMsg signals a retrieval finished, successfully or not.
type fetchDoneMsg struct {
	res  *history.Result
	mac  string
	hash string
	err  error
}

// capsMsg delivers capability and device info from async query.
type capsMsg struct {
	caps protocol.DeviceCapabilities
	info protocol.DeviceInfo
	err  error
}

// NewModel creates a new TUI model.
func NewModel(mac string) Model {
	h := help.New()
	h.ShowAll = false // Use ShortHelp for horizontal layout

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))

	m := Model{
		view:          ViewMain,
		mac:           mac,
		cursorHistory: make(map[View]int),
		keys:          DefaultKeyMap(),
		help:          h,
		spinner:       s,
		styles:        DefaultStyles(),
		fetchProgress: NewProgressState(),
	}

	m.menuItems = []MenuItem{
		{
			Title:       "Fetch history",
			Description: "Download stored measurements from the sensor",
			View:        ViewFetch,
		},
		{
			Title:       "Capabilities",
			Description: "Query what the sensor supports",
			View:        ViewCaps,
		},
		{
			Title:       "Archive",
			Description: "Browse saved captures",
			View:        ViewArchive,
		},
		{
			Title:       "Help",
			Description: "Keybindings and usage",
			View:        ViewHelp,
		},
	}

	return m
}

func (m *Model) loadCaptures() {
	m.archiveErr = nil
	s, err := store.OpenDefault()
	if err != nil {
		m.archiveErr = err
		return
	}
	captures, err := s.ListWithHashes()
	if err != nil {
		m.archiveErr = err
		return
	}
	m.captures = captures

	hashes := make([]string, 0, len(captures))
	for h := range captures {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool {
		return captures[hashes[i]].CreatedAt.After(captures[hashes[j]].CreatedAt)
	})
	m.hashes = hashes
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case spinner.TickMsg:
		if m.fetching || m.capsLoading {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case fetchProgressMsg:
		m.fetchProgress.Set(msg.p)
		return m, waitForFetchEvent(m.fetchEvents)

	case fetchDoneMsg:
		m.fetching = false
		m.fetchProgress.Complete()
		m.fetchResult = msg.res
		m.fetchMAC = msg.mac
		m.fetchHash = msg.hash
		m.fetchErr = msg.err
		if msg.err != nil {
			m.fetchProgress.Cancel()
		}
		return m, nil

	case capsMsg:
		m.capsLoading = false
		m.capsErr = msg.err
		if msg.err == nil {
			caps := msg.caps
			info := msg.info
			m.caps = &caps
			m.devInfo = &info
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Back):
		return m.goBack()

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.cursor < m.maxCursor() {
			m.cursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.Select):
		return m.handleSelect()
	}

	return m, nil
}

func (m Model) maxCursor() int {
	switch m.view {
	case ViewMain:
		return len(m.menuItems) - 1
	case ViewArchive:
		return len(m.hashes) - 1
	default:
		return 0
	}
}

func (m Model) goBack() (tea.Model, tea.Cmd) {
	switch m.view {
	case ViewMain:
		return m, nil
	case ViewArchiveDetail:
		m.view = ViewArchive
		m.cursor = m.cursorHistory[ViewArchive]
		return m, nil
	default:
		m.cursorHistory[m.view] = m.cursor
		m.view = ViewMain
		m.cursor = m.cursorHistory[ViewMain]
		return m, nil
	}
}

func (m Model) handleSelect() (tea.Model, tea.Cmd) {
	switch m.view {
	case ViewMain:
		m.cursorHistory[ViewMain] = m.cursor
		item := m.menuItems[m.cursor]
		m.view = item.View
		m.cursor = 0

		switch item.View {
		case ViewFetch:
			return m.startFetch()
		case ViewCaps:
			if m.capsLoading {
				return m, nil
			}
			m.capsLoading = true
			m.caps = nil
			m.devInfo = nil
			m.capsErr = nil
			return m, tea.Batch(queryCapsCmd(m.mac), m.spinner.Tick)
		case ViewArchive:
			m.loadCaptures()
		}
		return m, nil

	case ViewArchive:
		if len(m.hashes) == 0 {
			return m, nil
		}
		m.cursorHistory[ViewArchive] = m.cursor
		m.selectedHash = m.hashes[m.cursor]
		m.selectedMeta = nil
		if s, err := store.OpenDefault(); err == nil {
			m.selectedMeta, _ = s.GetMetadata(m.selectedHash)
		}
		m.view = ViewArchiveDetail
		return m, nil
	}

	return m, nil
}

func (m Model) startFetch() (tea.Model, tea.Cmd) {
	if m.fetching {
		return m, nil
	}

	m.fetching = true
	m.fetchResult = nil
	m.fetchErr = nil
	m.fetchHash = ""
	m.fetchProgress.Start()

	// Buffered so the BLE goroutine never blocks on a slow redraw.
	ch := make(chan tea.Msg, 16)
	m.fetchEvents = ch
	go runFetch(m.mac, 24, ch)

	return m, tea.Batch(waitForFetchEvent(ch), m.spinner.Tick)
}

// --- Async commands for BLE operations ---

// waitForFetchEvent delivers the next event from a running retrieval.
// Re-armed after every progress message.
func waitForFetchEvent(ch chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

// runFetch performs a full retrieval against the sensor, streaming
// progress into ch and finishing with a fetchDoneMsg.
func runFetch(mac string, hours uint32, ch chan<- tea.Msg) {
	device, err := ble.Dial(mac)
	if err != nil {
		ch <- fetchDoneMsg{err: err}
		return
	}
	defer device.Disconnect()

	transport, err := ble.Discover(device)
	if err != nil {
		ch <- fetchDoneMsg{err: err}
		return
	}

	session := commands.NewSession(transport)
	defer session.Close()

	retriever := history.NewRetriever(session)
	retriever.OnProgress(func(p history.Progress) {
		// Drop updates rather than stall the transfer.
		select {
		case ch <- fetchProgressMsg{p: p}:
		default:
		}
	})

	res, err := retriever.Retrieve(context.Background(), hours)
	if err != nil {
		ch <- fetchDoneMsg{err: err}
		return
	}

	hash, _, err := commands.SaveCapture(res, transport.MAC())
	if err != nil {
		// The data made it, archiving it didn't. Still a success.
		hash = ""
	}

	ch <- fetchDoneMsg{res: res, mac: transport.MAC(), hash: hash}
}

// queryCapsCmd connects and queries capabilities and device info.
func queryCapsCmd(mac string) tea.Cmd {
	return func() tea.Msg {
		device, err := ble.Dial(mac)
		if err != nil {
			return capsMsg{err: err}
		}
		defer device.Disconnect()

		transport, err := ble.Discover(device)
		if err != nil {
			return capsMsg{err: err}
		}

		session := commands.NewSession(transport)
		defer session.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		caps, err := session.QueryCapabilities(ctx)
		if err != nil {
			return capsMsg{err: err}
		}

		// Device info is nice to have, not load-bearing.
		info, _ := session.QueryDeviceInfo(ctx)

		return capsMsg{caps: caps, info: info}
	}
}

// --- Views ---

// View renders the current screen.
func (m Model) View() string {
	var body string
	switch m.view {
	case ViewMain:
		body = m.viewMain()
	case ViewFetch:
		body = m.viewFetch()
	case ViewCaps:
		body = m.viewCaps()
	case ViewArchive:
		body = m.viewArchive()
	case ViewArchiveDetail:
		body = m.viewArchiveDetail()
	case ViewHelp:
		body = m.viewHelp()
	}

	title := m.styles.Title.Render("Ruuvi History")
	target := "any Ruuvi sensor"
	if m.mac != "" {
		target = m.mac
	}
	subtitle := m.styles.Subtitle.Render("target: " + target)
	helpView := m.styles.Help.Render(m.help.View(m.keys))

	return m.styles.App.Render(title + "\n" + subtitle + "\n\n" + body + "\n" + helpView)
}

func (m Model) viewMain() string {
	var b strings.Builder
	for i, item := range m.menuItems {
		cursor := "  "
		style := m.styles.MenuItem
		if i == m.cursor {
			cursor = "> "
			style = m.styles.MenuItemSelected
		}
		b.WriteString(cursor + style.Render(item.Title) + "\n")
		b.WriteString("    " + m.styles.Muted.Render(item.Description) + "\n")
	}
	return b.String()
}

func (m Model) viewFetch() string {
	var b strings.Builder

	if m.fetching {
		if m.fetchProgress.received == 0 {
			b.WriteString(m.spinner.View() + " Connecting...\n\n")
		}
		b.WriteString(m.fetchProgress.View() + "\n")
		return b.String()
	}

	if m.fetchErr != nil {
		b.WriteString(m.styles.Error.Render("Fetch failed: "+m.fetchErr.Error()) + "\n")
		return b.String()
	}

	if m.fetchResult == nil {
		b.WriteString(m.styles.Muted.Render("No fetch yet.") + "\n")
		return b.String()
	}

	res := m.fetchResult
	b.WriteString(m.styles.Success.Render(fmt.Sprintf("Retrieved %d records from %s", len(res.Records), m.fetchMAC)) + "\n\n")
	b.WriteString(m.row("Record size", fmt.Sprintf("%d bytes", res.RecordSize)))
	if len(res.Records) > 0 {
		first := res.Records[0]
		last := res.Records[len(res.Records)-1]
		b.WriteString(m.row("First", first.Timestamp.Format(time.RFC3339)))
		b.WriteString(m.row("Last", last.Timestamp.Format(time.RFC3339)))
		b.WriteString(m.row("Latest temp", fmt.Sprintf("%.2f °C", last.TemperatureC)))
		b.WriteString(m.row("Latest humidity", fmt.Sprintf("%.2f %%", last.HumidityPct)))
		b.WriteString(m.row("Latest pressure", fmt.Sprintf("%.2f hPa", last.PressureHPa)))
	}
	if res.Skipped > 0 {
		b.WriteString(m.styles.Warning.Render(fmt.Sprintf("Skipped %d corrupt records", res.Skipped)) + "\n")
	}
	if m.fetchHash != "" {
		b.WriteString(m.row("Saved as", store.ShortHash(m.fetchHash)))
	}
	return b.String()
}

func (m Model) viewCaps() string {
	var b strings.Builder

	if m.capsLoading {
		b.WriteString(m.spinner.View() + " Querying sensor...\n")
		return b.String()
	}

	if m.capsErr != nil {
		b.WriteString(m.styles.Error.Render("Query failed: "+m.capsErr.Error()) + "\n")
		return b.String()
	}

	if m.caps == nil {
		b.WriteString(m.styles.Muted.Render("No data.") + "\n")
		return b.String()
	}

	caps := m.caps
	supported := "no"
	if caps.SupportsHistorical {
		supported = "yes"
	}
	b.WriteString(m.row("Historical data", supported))
	b.WriteString(m.row("Max records", fmt.Sprintf("%d", caps.MaxRecords)))
	b.WriteString(m.row("Interval", fmt.Sprintf("%d s", caps.DataIntervalSeconds)))
	if caps.FirmwareVersion != "" {
		b.WriteString(m.row("Firmware", caps.FirmwareVersion))
	}
	if caps.HardwareVersion != "" {
		b.WriteString(m.row("Hardware", caps.HardwareVersion))
	}
	if m.devInfo != nil && m.devInfo.MAC != "" {
		b.WriteString(m.row("MAC", m.devInfo.MAC))
	}
	return b.String()
}

func (m Model) viewArchive() string {
	var b strings.Builder

	if m.archiveErr != nil {
		b.WriteString(m.styles.Error.Render("Store error: "+m.archiveErr.Error()) + "\n")
		return b.String()
	}

	if len(m.hashes) == 0 {
		b.WriteString(m.styles.Muted.Render("No saved captures.") + "\n")
		return b.String()
	}

	for i, hash := range m.hashes {
		entry := m.captures[hash]
		cursor := "  "
		style := m.styles.MenuItem
		if i == m.cursor {
			cursor = "> "
			style = m.styles.MenuItemSelected
		}
		line := fmt.Sprintf("%s  %s  %d records  %s",
			store.ShortHash(hash),
			entry.DeviceMAC,
			entry.RecordCount,
			entry.CreatedAt.Format("2006-01-02 15:04"))
		b.WriteString(cursor + style.Render(line) + "\n")
	}
	return b.String()
}

func (m Model) viewArchiveDetail() string {
	var b strings.Builder

	if m.selectedMeta == nil {
		b.WriteString(m.styles.Muted.Render("Metadata unavailable for "+store.ShortHash(m.selectedHash)) + "\n")
		return b.String()
	}

	meta := m.selectedMeta
	b.WriteString(m.styles.Highlight.Render(store.ShortHash(meta.ContentHash)) + "\n\n")
	b.WriteString(m.row("Device", meta.DeviceMAC))
	b.WriteString(m.row("Records", fmt.Sprintf("%d × %d bytes", meta.RecordCount, meta.RecordSize)))
	b.WriteString(m.row("Size", fmt.Sprintf("%d bytes", meta.Size)))
	if !meta.FirstTime.IsZero() {
		b.WriteString(m.row("First", meta.FirstTime.Format(time.RFC3339)))
		b.WriteString(m.row("Last", meta.LastTime.Format(time.RFC3339)))
	}
	if meta.IntervalSeconds > 0 {
		b.WriteString(m.row("Interval", fmt.Sprintf("%d s", meta.IntervalSeconds)))
	}
	if meta.FirmwareVersion != "" {
		b.WriteString(m.row("Firmware", meta.FirmwareVersion))
	}
	if meta.SkippedRecords > 0 {
		b.WriteString(m.styles.Warning.Render(fmt.Sprintf("Skipped %d corrupt records", meta.SkippedRecords)) + "\n")
	}
	b.WriteString(m.row("Captured", meta.CreatedAt.Format(time.RFC3339)))
	return b.String()
}

func (m Model) viewHelp() string {
	var b strings.Builder
	b.WriteString("Fetch history downloads the sensor's stored measurements over BLE\n")
	b.WriteString("and archives them locally. Captures are deduplicated by content.\n\n")
	b.WriteString(m.row("↑/k ↓/j", "move"))
	b.WriteString(m.row("enter", "select"))
	b.WriteString(m.row("esc", "back"))
	b.WriteString(m.row("q", "quit"))
	return b.String()
}

func (m Model) row(label, value string) string {
	return m.styles.Label.Render(label) + " " + m.styles.Value.Render(value) + "\n"
}
