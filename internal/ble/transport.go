package ble

import (
	"fmt"
	"log"
	"strings"

	"ruuvitool/internal/config"
	"ruuvitool/internal/history"

	"tinygo.org/x/bluetooth"
)

// Transport is the production history.Transport backed by tinygo GATT
// characteristics. Connection lifecycle stays with the caller.
type Transport struct {
	commandChar  *bluetooth.DeviceCharacteristic
	responseChar *bluetooth.DeviceCharacteristic
	dataChar     *bluetooth.DeviceCharacteristic
	mac          string
}

// Discover finds the history service characteristics on a connected
// device.
func Discover(device bluetooth.Device) (*Transport, error) {
	config.Debugf("Discovering services...")

	allServices, err := device.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to discover services: %w", err)
	}

	var historyService *bluetooth.DeviceService
	for i := range allServices {
		uuidStr := allServices[i].UUID().String()
		if strings.EqualFold(uuidStr, HistoryServiceUUID) {
			historyService = &allServices[i]
			config.Debugf("Found history service: %s", uuidStr)
			break
		}
	}

	if historyService == nil {
		return nil, fmt.Errorf("history service not found")
	}

	chars, err := historyService.DiscoverCharacteristics(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to discover characteristics: %w", err)
	}

	t := &Transport{mac: strings.ToUpper(device.Address.String())}
	for i := range chars {
		uuidStr := chars[i].UUID().String()
		config.Debugf("Found characteristic: %s", uuidStr)
		if strings.EqualFold(uuidStr, CommandCharUUID) {
			t.commandChar = &chars[i]
		}
		if strings.EqualFold(uuidStr, ResponseCharUUID) {
			t.responseChar = &chars[i]
		}
		if strings.EqualFold(uuidStr, DataCharUUID) {
			t.dataChar = &chars[i]
		}
	}

	if t.commandChar == nil || t.responseChar == nil || t.dataChar == nil {
		return nil, fmt.Errorf("history characteristics not found")
	}

	return t, nil
}

// Setup is Discover for the one-shot CLI commands: it exits on failure.
func Setup(device bluetooth.Device) *Transport {
	t, err := Discover(device)
	if err != nil {
		log.Fatal(err)
	}
	return t
}

// MAC returns the connected device address.
func (t *Transport) MAC() string {
	return t.mac
}

func (t *Transport) char(c history.Characteristic) (*bluetooth.DeviceCharacteristic, error) {
	switch c {
	case history.CharCommand:
		return t.commandChar, nil
	case history.CharResponse:
		return t.responseChar, nil
	case history.CharData:
		return t.dataChar, nil
	default:
		return nil, fmt.Errorf("unknown characteristic %d", c)
	}
}

// Write sends a frame to a characteristic.
// NOTE: tinygo bluetooth on Linux doesn't support Write with Response
// (only WriteWithoutResponse), see tinygo-org/bluetooth#153.
func (t *Transport) Write(c history.Characteristic, frame []byte) error {
	char, err := t.char(c)
	if err != nil {
		return err
	}
	config.Debugf("Writing %d bytes to %s characteristic", len(frame), c)
	_, err = char.WriteWithoutResponse(frame)
	if err != nil {
		return fmt.Errorf("failed to write to %s characteristic: %w", c, err)
	}
	return nil
}

// Subscribe enables notifications on a characteristic.
func (t *Transport) Subscribe(c history.Characteristic, fn func([]byte)) error {
	char, err := t.char(c)
	if err != nil {
		return err
	}
	if err := char.EnableNotifications(func(buf []byte) {
		config.Debugf("%s notification: %d bytes", c, len(buf))
		fn(buf)
	}); err != nil {
		return fmt.Errorf("failed to enable notifications on %s characteristic: %w", c, err)
	}
	return nil
}

// Unsubscribe disables notifications on a characteristic.
func (t *Transport) Unsubscribe(c history.Characteristic) error {
	char, err := t.char(c)
	if err != nil {
		return err
	}
	return char.EnableNotifications(nil)
}
