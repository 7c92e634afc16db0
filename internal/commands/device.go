package commands

import (
	"context"
	"fmt"
	"log"
	"time"

	"ruuvitool/internal/ble"

	"tinygo.org/x/bluetooth"
)

// Capabilities queries and prints the device's feature set.
func Capabilities(device bluetooth.Device) {
	transport := ble.Setup(device)
	session := NewSession(transport)
	defer session.Close()

	caps, err := session.QueryCapabilities(context.Background())
	if err != nil {
		log.Fatal("Capability query failed: ", err)
	}

	fmt.Printf("Device:          %s\n", transport.MAC())
	fmt.Printf("Historical data: %v\n", caps.SupportsHistorical)
	fmt.Printf("Max records:     %d\n", caps.MaxRecords)
	fmt.Printf("Interval:        %ds\n", caps.DataIntervalSeconds)
	if caps.FirmwareVersion != "" {
		fmt.Printf("Firmware:        %s\n", caps.FirmwareVersion)
	}
	if caps.HardwareVersion != "" {
		fmt.Printf("Hardware:        %s\n", caps.HardwareVersion)
	}
}

// Info queries and prints device identity.
func Info(device bluetooth.Device) {
	transport := ble.Setup(device)
	session := NewSession(transport)
	defer session.Close()

	info, err := session.QueryDeviceInfo(context.Background())
	if err != nil {
		log.Fatal("Device info query failed: ", err)
	}

	fmt.Printf("Firmware: %s\n", info.FirmwareVersion)
	fmt.Printf("Hardware: %s\n", info.HardwareVersion)
	if info.MAC != "" {
		fmt.Printf("MAC:      %s\n", info.MAC)
	} else {
		fmt.Printf("MAC:      %s\n", transport.MAC())
	}
}

// SetTime writes the host's current time to the device clock.
func SetTime(device bluetooth.Device) {
	transport := ble.Setup(device)
	session := NewSession(transport)
	defer session.Close()

	now := time.Now()
	if err := session.SetTime(context.Background(), now); err != nil {
		log.Fatal("SetTime failed: ", err)
	}
	fmt.Printf("Device clock set to %s\n", now.UTC().Format(time.RFC3339))
}

// Explore lists all services and characteristics.
// This is safe and doesn't write anything.
func Explore(device bluetooth.Device) {
	fmt.Println("Discovering services...")

	allServices, err := device.DiscoverServices(nil)
	if err != nil {
		log.Fatal("Failed to discover services:", err)
	}

	fmt.Printf("\nFound %d services:\n\n", len(allServices))

	for i, svc := range allServices {
		fmt.Printf("Service #%d: %s\n", i+1, svc.UUID().String())

		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			fmt.Printf("  Error: %v\n\n", err)
			continue
		}

		for j, char := range chars {
			fmt.Printf("  [%d] %s\n", j+1, char.UUID().String())
		}
		fmt.Println()
	}
}
