package commands

import (
	"fmt"
	"log"
	"os"
	"time"

	"ruuvitool/internal/config"
	"ruuvitool/internal/history"
	"ruuvitool/internal/protocol"
	"ruuvitool/internal/util"
)

// DecodeFile re-decodes a raw capture buffer offline, without a device.
// recordSize 0 means guess from the buffer length (24 preferred when
// ambiguous, since extended records are the common firmware).
func DecodeFile(path string, baseTS int64, recordSize int) {
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Fatal("Failed to read file: ", err)
	}

	if recordSize == 0 {
		switch {
		case len(raw)%protocol.ExtendedRecordLen == 0:
			recordSize = protocol.ExtendedRecordLen
		case len(raw)%protocol.CoreRecordLen == 0:
			recordSize = protocol.CoreRecordLen
		default:
			log.Fatalf("Cannot guess record size for %d-byte buffer; pass --record-size", len(raw))
		}
	}
	if recordSize != protocol.CoreRecordLen && recordSize != protocol.ExtendedRecordLen {
		log.Fatalf("Record size must be %d or %d", protocol.CoreRecordLen, protocol.ExtendedRecordLen)
	}

	if config.Verbose {
		util.PrintHexDump(raw)
	}

	base := time.Unix(baseTS, 0).UTC()
	records, skipped := history.DecodeRecords(raw, recordSize, base, config.Debugf)

	fmt.Printf("Decoded %d record(s) (%d-byte format)\n", len(records), recordSize)
	if skipped > 0 {
		fmt.Printf("WARNING: skipped %d corrupt record(s)\n", skipped)
	}
	PrintRecords(records, 0)
}
