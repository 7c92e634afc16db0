package protocol

import (
	"encoding/binary"
	"fmt"
)

// Capability payload: [flags:u8][max_records:u16 LE][interval_s:u16 LE]
// [reserved:2][firmware\0][hardware\0]. Bit 0 of flags is historical-data
// support. Missing or short version strings decode as empty, not errors.
const capabilityFixedLen = 7

// DecodeCapabilities parses the data block of a successful GetCapabilities
// response.
func DecodeCapabilities(data []byte) (DeviceCapabilities, error) {
	if len(data) < capabilityFixedLen {
		return DeviceCapabilities{}, fmt.Errorf("%w: capability payload needs %d bytes, got %d",
			ErrTruncated, capabilityFixedLen, len(data))
	}

	caps := DeviceCapabilities{
		SupportsHistorical:  data[0]&0x01 != 0,
		MaxRecords:          binary.LittleEndian.Uint16(data[1:3]),
		DataIntervalSeconds: binary.LittleEndian.Uint16(data[3:5]),
	}
	// bytes 5-6 reserved

	rest := data[capabilityFixedLen:]
	caps.FirmwareVersion, rest = readCString(rest)
	caps.HardwareVersion, _ = readCString(rest)
	return caps, nil
}

// DecodeDeviceInfo parses the data block of a successful GetDeviceInfo
// response: three sequential NUL-terminated strings (firmware, hardware,
// MAC). Short payloads yield empty strings.
func DecodeDeviceInfo(data []byte) DeviceInfo {
	var info DeviceInfo
	rest := data
	info.FirmwareVersion, rest = readCString(rest)
	info.HardwareVersion, rest = readCString(rest)
	info.MAC, _ = readCString(rest)
	return info
}

// readCString consumes up to the first NUL. A missing terminator consumes
// the remainder; an empty input yields an empty string.
func readCString(data []byte) (string, []byte) {
	for i, b := range data {
		if b == 0 {
			return string(data[:i]), data[i+1:]
		}
	}
	return string(data), nil
}
