package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"ruuvitool/internal/ble"
	"ruuvitool/internal/commands"
	"ruuvitool/internal/config"
	"ruuvitool/internal/store"
	"ruuvitool/internal/tui"
)

// CLI is the root command structure for ruuvitool.
type CLI struct {
	Verbose bool   `short:"v" help:"Enable verbose debug output"`
	Mac     string `help:"Device MAC address (skips name-based scan)"`

	// Default command - TUI
	Tui TuiCmd `cmd:"" default:"withargs" help:"Launch interactive TUI (default)"`

	History HistoryCmd `cmd:"" help:"Historical data operations"`
	Device  DeviceCmd  `cmd:"" help:"Device info and control"`
	Store   StoreCmd   `cmd:"" help:"Capture archive"`
	Debug   DebugCmd   `cmd:"" help:"Debug and development tools"`
}

// --- TUI Command ---

type TuiCmd struct{}

func (c *TuiCmd) Run(globals *CLI) error {
	config.Verbose = globals.Verbose
	return tui.Run(globals.Mac)
}

// --- History Commands ---

type HistoryCmd struct {
	Fetch HistoryFetchCmd `cmd:"" help:"Pull device-resident history"`
}

type HistoryFetchCmd struct {
	Hours  uint32 `default:"24" help:"How far back to request"`
	Output string `short:"o" help:"Write decoded records to a CSV file"`
	NoSave bool   `help:"Skip archiving the raw capture"`
}

func (c *HistoryFetchCmd) Run(globals *CLI) error {
	config.Verbose = globals.Verbose
	device := ble.Connect(globals.Mac)
	defer device.Disconnect()
	commands.Fetch(device, c.Hours, c.Output, !c.NoSave)
	return nil
}

// --- Device Commands ---

type DeviceCmd struct {
	Caps    DeviceCapsCmd    `cmd:"" help:"Query device capabilities"`
	Info    DeviceInfoCmd    `cmd:"" help:"Query device identity"`
	SetTime DeviceSetTimeCmd `cmd:"" name:"set-time" help:"Set the device clock to host time"`
}

type DeviceCapsCmd struct{}

func (c *DeviceCapsCmd) Run(globals *CLI) error {
	config.Verbose = globals.Verbose
	device := ble.Connect(globals.Mac)
	defer device.Disconnect()
	commands.Capabilities(device)
	return nil
}

type DeviceInfoCmd struct{}

func (c *DeviceInfoCmd) Run(globals *CLI) error {
	config.Verbose = globals.Verbose
	device := ble.Connect(globals.Mac)
	defer device.Disconnect()
	commands.Info(device)
	return nil
}

type DeviceSetTimeCmd struct{}

func (c *DeviceSetTimeCmd) Run(globals *CLI) error {
	config.Verbose = globals.Verbose
	device := ble.Connect(globals.Mac)
	defer device.Disconnect()
	commands.SetTime(device)
	return nil
}

// --- Store Commands ---

type StoreCmd struct {
	List   StoreListCmd   `cmd:"" help:"List archived captures"`
	Show   StoreShowCmd   `cmd:"" help:"Show metadata for a capture"`
	Import StoreImportCmd `cmd:"" help:"Import a raw capture file"`
	Export StoreExportCmd `cmd:"" help:"Export a capture's raw buffer to a file"`
}

type StoreListCmd struct{}

func (c *StoreListCmd) Run(globals *CLI) error {
	config.Verbose = globals.Verbose

	s, err := store.OpenDefault()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	captures, err := s.ListWithHashes()
	if err != nil {
		return fmt.Errorf("failed to list captures: %w", err)
	}

	if len(captures) == 0 {
		fmt.Println("No captures in store.")
		fmt.Println("Fetch history with: ruuvitool history fetch")
		return nil
	}

	fmt.Printf("Found %d capture(s):\n\n", len(captures))
	for hash, entry := range captures {
		fmt.Printf("  %s  %-17s  %6d records  %s .. %s\n",
			store.ShortHash(hash),
			entry.DeviceMAC,
			entry.RecordCount,
			entry.FirstTime.Format("2006-01-02 15:04"),
			entry.LastTime.Format("2006-01-02 15:04"))
	}

	return nil
}

type StoreShowCmd struct {
	Ref string `arg:"" help:"Capture hash (full or short)"`
}

func (c *StoreShowCmd) Run(globals *CLI) error {
	config.Verbose = globals.Verbose

	s, err := store.OpenDefault()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	hash, err := s.Resolve(c.Ref)
	if err != nil {
		return err
	}

	meta, err := s.GetMetadata(hash)
	if err != nil {
		return fmt.Errorf("failed to get metadata: %w", err)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))

	return nil
}

type StoreImportCmd struct {
	File       string `arg:"" help:"Raw capture file to import"`
	Mac        string `required:"" help:"Device MAC the capture came from"`
	BaseTs     int64  `name:"base-ts" required:"" help:"Base timestamp (unix seconds) of the capture"`
	RecordSize int    `name:"record-size" default:"24" help:"Record size in bytes (16 or 24)"`
}

func (c *StoreImportCmd) Run(globals *CLI) error {
	config.Verbose = globals.Verbose

	data, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	s, err := store.OpenDefault()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	info := store.CaptureInfo{
		DeviceMAC:  c.Mac,
		RecordSize: c.RecordSize,
		BaseTime:   time.Unix(c.BaseTs, 0).UTC(),
	}
	source := store.Source{
		Timestamp: time.Now(),
		Method:    "import",
		Filename:  c.File,
	}

	hash, isNew, err := s.Import(data, info, source)
	if err != nil {
		return fmt.Errorf("failed to import: %w", err)
	}

	if isNew {
		fmt.Printf("Imported new capture: %s\n", store.ShortHash(hash))
	} else {
		fmt.Printf("Capture already exists: %s (added source)\n", store.ShortHash(hash))
	}

	meta, _ := s.GetMetadata(hash)
	if meta != nil {
		fmt.Printf("  Device:  %s\n", meta.DeviceMAC)
		fmt.Printf("  Records: %d\n", meta.RecordCount)
	}

	return nil
}

type StoreExportCmd struct {
	Ref    string `arg:"" help:"Capture hash (full or short)"`
	Output string `arg:"" help:"Output file path"`
}

func (c *StoreExportCmd) Run(globals *CLI) error {
	config.Verbose = globals.Verbose

	s, err := store.OpenDefault()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	hash, err := s.Resolve(c.Ref)
	if err != nil {
		return err
	}

	if err := s.Export(hash, c.Output); err != nil {
		return fmt.Errorf("failed to export: %w", err)
	}

	fmt.Printf("Exported to: %s\n", c.Output)
	return nil
}

// --- Debug Commands ---

type DebugCmd struct {
	Explore DebugExploreCmd `cmd:"" help:"List all BLE services and characteristics"`
	Records DebugRecordsCmd `cmd:"" help:"Decode a raw capture file offline"`
}

type DebugExploreCmd struct{}

func (c *DebugExploreCmd) Run(globals *CLI) error {
	config.Verbose = globals.Verbose
	device := ble.Connect(globals.Mac)
	defer device.Disconnect()
	commands.Explore(device)
	return nil
}

type DebugRecordsCmd struct {
	File       string `arg:"" help:"Raw capture file"`
	BaseTs     int64  `name:"base-ts" default:"0" help:"Base timestamp (unix seconds)"`
	RecordSize int    `name:"record-size" default:"0" help:"Record size in bytes (0 = guess)"`
}

func (c *DebugRecordsCmd) Run(globals *CLI) error {
	config.Verbose = globals.Verbose
	commands.DecodeFile(c.File, c.BaseTs, c.RecordSize)
	return nil
}
