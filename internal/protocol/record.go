package protocol

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Historical record layout. Core 16 bytes are mandatory, the extended 8
// bytes are present on 24-byte records only:
//
//	[offset_seconds:u32][temperature:i16 x0.005C][humidity:u16 x0.0025%]
//	[pressure:u16 +50000 Pa][accel_x:i16 mg][accel_y:i16 mg][accel_z:i16 mg]
//	[power_info:u16][movement:u16][sequence:u16][reserved:2]
//
// power_info packs TX power in the low 5 bits (2 dBm steps from -40 dBm)
// and battery voltage in the high 11 bits (1 mV steps from 1600 mV).
const (
	CoreRecordLen     = 16
	ExtendedRecordLen = 24
)

// DecodeRecord decodes one record slice against the session's base
// timestamp. Slices of 17-23 bytes are decoded core-only rather than
// rejected; heterogeneous firmware pads records in the wild.
func DecodeRecord(slice []byte, base time.Time) (HistoricalRecord, error) {
	if len(slice) < CoreRecordLen {
		return HistoricalRecord{}, fmt.Errorf("%w: record needs %d bytes, got %d",
			ErrTruncated, CoreRecordLen, len(slice))
	}

	offset := binary.LittleEndian.Uint32(slice[0:4])
	tempRaw := int16(binary.LittleEndian.Uint16(slice[4:6]))
	humRaw := binary.LittleEndian.Uint16(slice[6:8])
	pressRaw := binary.LittleEndian.Uint16(slice[8:10])
	accelX := int16(binary.LittleEndian.Uint16(slice[10:12]))
	accelY := int16(binary.LittleEndian.Uint16(slice[12:14]))
	accelZ := int16(binary.LittleEndian.Uint16(slice[14:16]))

	rec := HistoricalRecord{
		Timestamp:    base.Add(time.Duration(offset) * time.Second),
		TemperatureC: float64(tempRaw) * 0.005,
		HumidityPct:  float64(humRaw) * 0.0025,
		PressureHPa:  (float64(pressRaw) + 50000) / 100,
		AccelXG:      float64(accelX) / 1000,
		AccelYG:      float64(accelY) / 1000,
		AccelZG:      float64(accelZ) / 1000,
	}

	if len(slice) >= ExtendedRecordLen {
		powerInfo := binary.LittleEndian.Uint16(slice[16:18])
		rec.Extended = true
		rec.TxPowerDBm = int(powerInfo&0x1F)*2 - 40
		rec.BatteryV = (float64(powerInfo>>5) + 1600) / 1000
		rec.MovementCounter = binary.LittleEndian.Uint16(slice[18:20])
		rec.MeasurementSequence = binary.LittleEndian.Uint16(slice[20:22])
		// bytes 22-23 reserved
	}

	return rec, nil
}
