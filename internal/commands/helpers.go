package commands

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"ruuvitool/internal/config"
	"ruuvitool/internal/history"
	"ruuvitool/internal/protocol"
	"ruuvitool/internal/store"
)

// NewSession wires a transport into a protocol session with the configured
// timeouts and the shared debug logger.
func NewSession(t history.Transport) *history.Session {
	timeouts := config.LoadTimeouts()
	return history.NewSession(t, history.Config{
		ResponseTimeout: timeouts.Response,
		ChunkTimeout:    timeouts.Chunk,
		OverallTimeout:  timeouts.Overall,
		Debugf:          config.Debugf,
	})
}

// PrintRecords prints up to limit records as an aligned table. limit <= 0
// prints everything.
func PrintRecords(records []protocol.HistoricalRecord, limit int) {
	if limit <= 0 || limit > len(records) {
		limit = len(records)
	}

	fmt.Printf("%-25s %8s %8s %9s %7s %7s %7s\n",
		"TIMESTAMP", "TEMP C", "RH %", "hPa", "X g", "Y g", "Z g")
	for _, rec := range records[:limit] {
		fmt.Printf("%-25s %8.2f %8.2f %9.2f %7.3f %7.3f %7.3f\n",
			rec.Timestamp.Format(time.RFC3339),
			rec.TemperatureC, rec.HumidityPct, rec.PressureHPa,
			rec.AccelXG, rec.AccelYG, rec.AccelZG)
	}
	if limit < len(records) {
		fmt.Printf("... %d more\n", len(records)-limit)
	}
}

// WriteCSV writes decoded records to a CSV file. Extended columns are left
// empty for core-only records.
func WriteCSV(path string, records []protocol.HistoricalRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"timestamp", "temperature_c", "humidity_pct", "pressure_hpa",
		"accel_x_g", "accel_y_g", "accel_z_g",
		"battery_v", "tx_power_dbm", "movement_counter", "measurement_sequence",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, rec := range records {
		row := []string{
			rec.Timestamp.Format(time.RFC3339),
			strconv.FormatFloat(rec.TemperatureC, 'f', 3, 64),
			strconv.FormatFloat(rec.HumidityPct, 'f', 4, 64),
			strconv.FormatFloat(rec.PressureHPa, 'f', 2, 64),
			strconv.FormatFloat(rec.AccelXG, 'f', 3, 64),
			strconv.FormatFloat(rec.AccelYG, 'f', 3, 64),
			strconv.FormatFloat(rec.AccelZG, 'f', 3, 64),
			"", "", "", "",
		}
		if rec.Extended {
			row[7] = strconv.FormatFloat(rec.BatteryV, 'f', 3, 64)
			row[8] = strconv.Itoa(rec.TxPowerDBm)
			row[9] = strconv.Itoa(int(rec.MovementCounter))
			row[10] = strconv.Itoa(int(rec.MeasurementSequence))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// SaveCapture archives a retrieval result in the local store.
func SaveCapture(res *history.Result, mac string) (string, bool, error) {
	s, err := store.OpenDefault()
	if err != nil {
		return "", false, fmt.Errorf("failed to open store: %w", err)
	}

	info := store.CaptureInfo{
		DeviceMAC:       mac,
		RecordSize:      res.RecordSize,
		BaseTime:        res.BaseTime,
		SkippedRecords:  res.Skipped,
		IntervalSeconds: int(res.Capabilities.DataIntervalSeconds),
		FirmwareVersion: res.Capabilities.FirmwareVersion,
		HardwareVersion: res.Capabilities.HardwareVersion,
	}
	source := store.Source{
		DeviceMAC: mac,
		Timestamp: time.Now(),
		Method:    "fetch",
	}
	return s.Import(res.Raw, info, source)
}
