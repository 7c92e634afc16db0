package store

import (
	"time"

	"ruuvitool/internal/history"
)

// Metadata describes one archived capture: the raw reassembled buffer from
// a historical-data retrieval plus everything needed to re-decode it
// offline.
type Metadata struct {
	ContentHash     string    `json:"content_hash"`
	DeviceMAC       string    `json:"device_mac"`
	Size            int       `json:"size"`
	RecordSize      int       `json:"record_size"`
	RecordCount     int       `json:"record_count"`
	SkippedRecords  int       `json:"skipped_records,omitempty"`
	BaseTime        time.Time `json:"base_time"`
	FirstTime       time.Time `json:"first_time,omitempty"`
	LastTime        time.Time `json:"last_time,omitempty"`
	IntervalSeconds int       `json:"interval_seconds,omitempty"`
	FirmwareVersion string    `json:"firmware_version,omitempty"`
	HardwareVersion string    `json:"hardware_version,omitempty"`
	Sources         []Source  `json:"sources"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Source records where a capture was obtained from.
type Source struct {
	DeviceMAC string    `json:"device_mac,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Method    string    `json:"method"` // "fetch" or "import"
	Filename  string    `json:"filename,omitempty"`
}

// CaptureInfo is what the fetch path knows about a buffer beyond its raw
// bytes; it cannot be recovered from the bytes alone.
type CaptureInfo struct {
	DeviceMAC       string
	RecordSize      int
	BaseTime        time.Time
	SkippedRecords  int
	IntervalSeconds int
	FirmwareVersion string
	HardwareVersion string
}

// ExtractMetadata decodes the buffer once to fill in record count and time
// range.
func ExtractMetadata(raw []byte, info CaptureInfo, hash string) *Metadata {
	meta := &Metadata{
		ContentHash:     hash,
		DeviceMAC:       info.DeviceMAC,
		Size:            len(raw),
		RecordSize:      info.RecordSize,
		SkippedRecords:  info.SkippedRecords,
		BaseTime:        info.BaseTime,
		IntervalSeconds: info.IntervalSeconds,
		FirmwareVersion: info.FirmwareVersion,
		HardwareVersion: info.HardwareVersion,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}

	if info.RecordSize > 0 {
		records, _ := history.DecodeRecords(raw, info.RecordSize, info.BaseTime, nil)
		meta.RecordCount = len(records)
		if len(records) > 0 {
			meta.FirstTime = records[0].Timestamp
			meta.LastTime = records[len(records)-1].Timestamp
		}
	}

	return meta
}
