package ble

import (
	"fmt"
	"log"
	"strings"

	"ruuvitool/internal/config"

	"tinygo.org/x/bluetooth"
)

// Dial scans for and connects to a Ruuvi sensor. If mac is non-empty only
// that address is accepted, otherwise the first device advertising a Ruuvi
// name wins.
func Dial(mac string) (bluetooth.Device, error) {
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return bluetooth.Device{}, fmt.Errorf("failed to enable Bluetooth: %w", err)
	}

	var deviceResult bluetooth.ScanResult
	var found bool

	err := adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		name := result.LocalName()
		address, _ := result.Address.MarshalText()

		if name != "" {
			config.Debugf("Found: '%s' (%s)", name, string(address))
		}

		if mac != "" {
			if strings.EqualFold(string(address), mac) {
				deviceResult = result
				found = true
				adapter.StopScan()
			}
			return
		}

		if strings.Contains(strings.ToLower(name), "ruuvi") {
			deviceResult = result
			found = true
			adapter.StopScan()
		}
	})
	if err != nil {
		return bluetooth.Device{}, fmt.Errorf("scan error: %w", err)
	}

	if !found {
		return bluetooth.Device{}, fmt.Errorf("ruuvi sensor not found")
	}

	address, _ := deviceResult.Address.MarshalText()
	config.Debugf("Connecting to %s...", string(address))

	device, err := adapter.Connect(deviceResult.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return bluetooth.Device{}, fmt.Errorf("failed to connect: %w", err)
	}

	return device, nil
}

// Connect is Dial for the one-shot CLI commands: it prints progress and
// exits on failure.
func Connect(mac string) bluetooth.Device {
	if mac != "" {
		fmt.Printf("Scanning for %s...\n", mac)
	} else {
		fmt.Println("Scanning for Ruuvi sensor...")
	}

	device, err := Dial(mac)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("Connected!")
	return device
}
