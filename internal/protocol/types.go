package protocol

import (
	"fmt"
	"time"
)

// CommandType identifies a command frame. Unknown values are carried
// through rather than rejected so newer firmware doesn't break decoding.
type CommandType uint8

const (
	CmdGetDeviceInfo     CommandType = 0x01
	CmdGetHistoricalData CommandType = 0x02
	CmdSetTime           CommandType = 0x03
	CmdGetCapabilities   CommandType = 0x04
	CmdAcknowledgeChunk  CommandType = 0x05
)

// Known reports whether the command type is one this tool understands.
func (c CommandType) Known() bool {
	return c >= CmdGetDeviceInfo && c <= CmdAcknowledgeChunk
}

func (c CommandType) String() string {
	switch c {
	case CmdGetDeviceInfo:
		return "GetDeviceInfo"
	case CmdGetHistoricalData:
		return "GetHistoricalData"
	case CmdSetTime:
		return "SetTime"
	case CmdGetCapabilities:
		return "GetCapabilities"
	case CmdAcknowledgeChunk:
		return "AcknowledgeChunk"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(c))
	}
}

// ResponseStatus is the status byte of a response frame.
type ResponseStatus uint8

const (
	StatusSuccess          ResponseStatus = 0x00
	StatusInvalidCommand   ResponseStatus = 0x01
	StatusInvalidParameter ResponseStatus = 0x02
	StatusNotSupported     ResponseStatus = 0x03
	StatusBusy             ResponseStatus = 0x04
	StatusTimeout          ResponseStatus = 0x05
)

// Known reports whether the status byte is a recognized code.
func (s ResponseStatus) Known() bool {
	return s <= StatusTimeout
}

func (s ResponseStatus) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusInvalidCommand:
		return "InvalidCommand"
	case StatusInvalidParameter:
		return "InvalidParameter"
	case StatusNotSupported:
		return "NotSupported"
	case StatusBusy:
		return "Busy"
	case StatusTimeout:
		return "Timeout"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(s))
	}
}

// Command is one outbound command frame. SequenceID is caller-chosen and
// round-trips in the matching Response.
type Command struct {
	Type       CommandType
	SequenceID uint8
	Parameters []byte
}

// Response is one decoded frame from the response characteristic.
type Response struct {
	Type       CommandType
	SequenceID uint8
	Status     ResponseStatus
	Data       []byte
}

// Chunk is one decoded frame from the data characteristic. For chunk 0 the
// payload still carries the 4-byte total_data_size prefix; the reassembler
// strips it.
type Chunk struct {
	ID      uint16
	Total   uint16
	Payload []byte
}

// DeviceCapabilities is the decoded GetCapabilities payload. Derived once
// per session and immutable thereafter.
type DeviceCapabilities struct {
	SupportsHistorical  bool
	MaxRecords          uint16
	DataIntervalSeconds uint16
	FirmwareVersion     string
	HardwareVersion     string
}

// DeviceInfo is the decoded GetDeviceInfo payload.
type DeviceInfo struct {
	FirmwareVersion string
	HardwareVersion string
	MAC             string
}

// HistoricalRecord is one measurement decoded into engineering units.
// The battery/TX/movement/sequence fields are only meaningful when
// Extended is true (24-byte record).
type HistoricalRecord struct {
	Timestamp    time.Time
	TemperatureC float64
	HumidityPct  float64
	PressureHPa  float64
	AccelXG      float64
	AccelYG      float64
	AccelZG      float64

	Extended            bool
	BatteryV            float64
	TxPowerDBm          int
	MovementCounter     uint16
	MeasurementSequence uint16
}
