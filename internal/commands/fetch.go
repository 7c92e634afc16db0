package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"ruuvitool/internal/ble"
	"ruuvitool/internal/history"
	"ruuvitool/internal/store"

	"tinygo.org/x/bluetooth"
)

// Fetch pulls historical records from a connected sensor, prints a
// summary, and optionally archives the capture and/or writes a CSV.
func Fetch(device bluetooth.Device, hours uint32, output string, save bool) {
	transport := ble.Setup(device)
	session := NewSession(transport)
	defer session.Close()

	retriever := history.NewRetriever(session)
	retriever.OnProgress(func(p history.Progress) {
		fmt.Printf("\r  Receiving: %d/%d chunks (%.0f%%)", p.Received, p.Total, p.Percent)
	})

	fmt.Printf("Fetching last %dh of history...\n", hours)
	res, err := retriever.Retrieve(context.Background(), hours)
	fmt.Println()
	if err != nil {
		if errors.Is(err, history.ErrUnsupported) {
			fmt.Println("This device does not support historical data.")
			return
		}
		log.Fatal("Retrieval failed: ", err)
	}

	if len(res.Records) == 0 {
		fmt.Println("No records in the requested range.")
		return
	}

	first := res.Records[0].Timestamp
	last := res.Records[len(res.Records)-1].Timestamp
	fmt.Printf("Retrieved %d records (%d-byte format), %s .. %s\n",
		len(res.Records), res.RecordSize,
		first.Format(time.RFC3339), last.Format(time.RFC3339))
	if res.Skipped > 0 {
		fmt.Printf("WARNING: skipped %d corrupt record(s)\n", res.Skipped)
	}

	PrintRecords(res.Records, 10)

	if save {
		hash, isNew, err := SaveCapture(res, transport.MAC())
		if err != nil {
			log.Fatal("Failed to archive capture: ", err)
		}
		if isNew {
			fmt.Printf("Archived capture: %s\n", store.ShortHash(hash))
		} else {
			fmt.Printf("Capture already archived: %s\n", store.ShortHash(hash))
		}
	}

	if output != "" {
		if err := WriteCSV(output, res.Records); err != nil {
			log.Fatal("Failed to write CSV: ", err)
		}
		fmt.Printf("Saved to: %s\n", output)
	}
}
