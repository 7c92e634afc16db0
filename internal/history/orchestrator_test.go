package history

import (
	"context"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
	"time"

	"ruuvitool/internal/protocol"
)

// buildRawRecords produces n core records with recognizable field values:
// record i is offset i*60s, temperature (20 + i*0.005) C.
func buildRawRecords(n int) []byte {
	raw := make([]byte, 0, n*protocol.CoreRecordLen)
	for i := 0; i < n; i++ {
		rec := make([]byte, protocol.CoreRecordLen)
		binary.LittleEndian.PutUint32(rec[0:4], uint32(i*60))
		binary.LittleEndian.PutUint16(rec[4:6], uint16(4000+i))
		binary.LittleEndian.PutUint16(rec[6:8], 18000)
		binary.LittleEndian.PutUint16(rec[8:10], 51350)
		binary.LittleEndian.PutUint16(rec[14:16], 1000)
		raw = append(raw, rec...)
	}
	return raw
}

// buildRawExtendedRecords produces n 24-byte records: the core fields of
// buildRawRecords plus power info (3.0 V battery, 4 dBm TX), movement and
// sequence counters.
func buildRawExtendedRecords(n int) []byte {
	core := buildRawRecords(n)
	raw := make([]byte, 0, n*protocol.ExtendedRecordLen)
	for i := 0; i < n; i++ {
		raw = append(raw, core[i*protocol.CoreRecordLen:(i+1)*protocol.CoreRecordLen]...)
		ext := make([]byte, 8)
		binary.LittleEndian.PutUint16(ext[0:2], 1400<<5|22)
		binary.LittleEndian.PutUint16(ext[2:4], uint16(i))
		binary.LittleEndian.PutUint16(ext[4:6], uint16(100+i))
		raw = append(raw, ext...)
	}
	return raw
}

func newTestRetriever(d *fakeDevice) (*Retriever, *Session) {
	s := NewSession(d, testConfig())
	return NewRetriever(s), s
}

func TestRetrieveHappyPath(t *testing.T) {
	d := newFakeDevice()
	d.recordCount = 3
	d.raw = buildRawRecords(3)
	d.chunkSize = 20 // force a multi-chunk transfer

	r, s := newTestRetriever(d)
	defer s.Close()

	var progress []Progress
	r.OnProgress(func(p Progress) { progress = append(progress, p) })

	res, err := r.Retrieve(context.Background(), 24)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	if len(res.Records) != 3 {
		t.Fatalf("got %d records, want 3", len(res.Records))
	}
	if res.Skipped != 0 {
		t.Errorf("Skipped = %d, want 0", res.Skipped)
	}
	if res.RecordSize != protocol.CoreRecordLen {
		t.Errorf("RecordSize = %d, want %d", res.RecordSize, protocol.CoreRecordLen)
	}
	if want := time.Unix(1700000000, 0).UTC(); !res.BaseTime.Equal(want) {
		t.Errorf("BaseTime = %v, want %v", res.BaseTime, want)
	}
	if want := time.Unix(1700000060, 0).UTC(); !res.Records[1].Timestamp.Equal(want) {
		t.Errorf("record 1 timestamp = %v, want %v", res.Records[1].Timestamp, want)
	}
	if !res.Capabilities.SupportsHistorical {
		t.Error("Capabilities not carried into result")
	}

	if len(progress) == 0 {
		t.Error("progress callback never invoked")
	} else {
		last := progress[len(progress)-1]
		if last.Received != last.Total || last.Percent != 100 {
			t.Errorf("final progress = %+v", last)
		}
	}

	// Every chunk gets acknowledged. 4-byte prefix + 48 data bytes at 20
	// bytes per chunk is 3 chunks.
	if got := d.ackCount(); got != 3 {
		t.Errorf("acked %d chunks, want 3", got)
	}

	if r.State() != RetrieverDone {
		t.Errorf("State = %v, want done", r.State())
	}
}

func TestRetrieveExtendedRecords(t *testing.T) {
	d := newFakeDevice()
	d.recordCount = 2
	d.raw = buildRawExtendedRecords(2)

	r, s := newTestRetriever(d)
	defer s.Close()

	res, err := r.Retrieve(context.Background(), 24)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	if res.RecordSize != protocol.ExtendedRecordLen {
		t.Fatalf("RecordSize = %d, want %d", res.RecordSize, protocol.ExtendedRecordLen)
	}
	if len(res.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(res.Records))
	}
	for i, rec := range res.Records {
		if !rec.Extended {
			t.Errorf("record %d: Extended = false", i)
		}
	}
	last := res.Records[1]
	if last.BatteryV < 2.999 || last.BatteryV > 3.001 {
		t.Errorf("BatteryV = %v, want 3.0", last.BatteryV)
	}
	if last.TxPowerDBm != 4 {
		t.Errorf("TxPowerDBm = %d, want 4", last.TxPowerDBm)
	}
	if last.MovementCounter != 1 || last.MeasurementSequence != 101 {
		t.Errorf("counters = %d/%d, want 1/101", last.MovementCounter, last.MeasurementSequence)
	}
}

func TestRetrieveRequestsExpectedTimeRange(t *testing.T) {
	d := newFakeDevice()
	d.recordCount = 1
	d.raw = buildRawRecords(1)

	r, s := newTestRetriever(d)
	defer s.Close()

	if _, err := r.Retrieve(context.Background(), 24); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	params := d.lastDataParams()
	if len(params) != 8 {
		t.Fatalf("data request params = %d bytes, want 8", len(params))
	}
	start := binary.LittleEndian.Uint32(params[0:4])
	end := binary.LittleEndian.Uint32(params[4:8])
	if end != 1700000000 {
		t.Errorf("end = %d, want 1700000000", end)
	}
	if start != 1700000000-24*3600 {
		t.Errorf("start = %d, want %d", start, 1700000000-24*3600)
	}
}

func TestRetrieveUnsupportedDevice(t *testing.T) {
	d := newFakeDevice()
	d.capsData = capsPayload(false, 0, 0, "3.31.0", "B1")

	r, s := newTestRetriever(d)
	defer s.Close()

	_, err := r.Retrieve(context.Background(), 24)
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("got %v, want ErrUnsupported", err)
	}

	// Negotiation failing means no data request is ever sent.
	if writes := d.commandWrites(protocol.CmdGetHistoricalData); len(writes) != 0 {
		t.Errorf("%d data requests sent to an unsupported device", len(writes))
	}
	if r.State() != RetrieverFailed {
		t.Errorf("State = %v, want failed", r.State())
	}
}

func TestRetrieveRejectedDataRequest(t *testing.T) {
	d := newFakeDevice()
	d.dataStatus = protocol.StatusNotSupported

	r, s := newTestRetriever(d)
	defer s.Close()

	_, err := r.Retrieve(context.Background(), 24)
	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("got %v, want RejectedError", err)
	}
	if rejected.Command != protocol.CmdGetHistoricalData || rejected.Status != protocol.StatusNotSupported {
		t.Errorf("rejected = %+v", rejected)
	}
}

func TestRetrieveEmptyRange(t *testing.T) {
	d := newFakeDevice()
	d.recordCount = 0
	d.serveChunks = false

	r, s := newTestRetriever(d)
	defer s.Close()

	res, err := r.Retrieve(context.Background(), 24)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Records) != 0 {
		t.Errorf("got %d records, want 0", len(res.Records))
	}
	if r.State() != RetrieverDone {
		t.Errorf("State = %v, want done", r.State())
	}
}

func TestRetrieveChunkTimeout(t *testing.T) {
	d := newFakeDevice()
	d.recordCount = 2
	d.raw = buildRawRecords(2)
	d.serveChunks = false // device goes silent after accepting the request

	r, s := newTestRetriever(d)
	defer s.Close()

	_, err := r.Retrieve(context.Background(), 24)
	if !errors.Is(err, ErrTransferTimeout) {
		t.Fatalf("got %v, want ErrTransferTimeout", err)
	}
	if r.State() != RetrieverFailed {
		t.Errorf("State = %v, want failed", r.State())
	}
}

func TestRetrieveOverallTimeout(t *testing.T) {
	d := newFakeDevice()
	d.recordCount = 3
	d.raw = buildRawRecords(3)
	d.serveChunks = false

	cfg := testConfig()
	cfg.ChunkTimeout = 300 * time.Millisecond
	cfg.OverallTimeout = 600 * time.Millisecond
	s := NewSession(d, cfg)
	defer s.Close()
	r := NewRetriever(s)

	// Drip the same mid-transfer chunk forever, faster than the per-chunk
	// timeout. Every frame keeps the chunk timer alive, so only the
	// transfer ceiling can end this.
	done := make(chan struct{})
	defer close(done)
	go func() {
		frame := chunkFrame(1, 3, make([]byte, 16))
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.notify(CharData, frame)
			case <-done:
				return
			}
		}
	}()

	begin := time.Now()
	_, err := r.Retrieve(context.Background(), 24)
	elapsed := time.Since(begin)

	if !errors.Is(err, ErrTransferTimeout) {
		t.Fatalf("got %v, want ErrTransferTimeout", err)
	}
	if !strings.Contains(err.Error(), "exceeded") {
		t.Errorf("err = %v, want the transfer-ceiling timeout", err)
	}
	if elapsed < 550*time.Millisecond {
		t.Errorf("retrieval ended after %s, before the %s ceiling", elapsed, cfg.OverallTimeout)
	}
}

func TestRetrieveClampsRangeToEpoch(t *testing.T) {
	d := newFakeDevice()
	d.recordCount = 1
	d.raw = buildRawRecords(1)

	r, s := newTestRetriever(d)
	defer s.Close()

	// 500000 hours is 1.8e9 seconds, reaching before the Unix epoch for
	// the fixed test clock.
	if _, err := r.Retrieve(context.Background(), 500000); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	params := d.lastDataParams()
	if len(params) != 8 {
		t.Fatalf("data request params = %d bytes, want 8", len(params))
	}
	start := binary.LittleEndian.Uint32(params[0:4])
	end := binary.LittleEndian.Uint32(params[4:8])
	if start != 0 {
		t.Errorf("start = %d, want 0 (clamped)", start)
	}
	if end != 1700000000 {
		t.Errorf("end = %d, want 1700000000", end)
	}
}

func TestRetrieveRecordSizeMismatch(t *testing.T) {
	d := newFakeDevice()
	d.recordCount = 3
	d.raw = make([]byte, 30) // 10 bytes per record is not a known layout

	r, s := newTestRetriever(d)
	defer s.Close()

	_, err := r.Retrieve(context.Background(), 24)
	var mismatch *SizeMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("got %v, want SizeMismatchError", err)
	}
}

func TestRetrieveBusy(t *testing.T) {
	d := newFakeDevice()
	d.recordCount = 1
	d.raw = buildRawRecords(1)
	d.serveChunks = false // keep the first retrieval waiting on chunks

	cfg := testConfig()
	cfg.ChunkTimeout = 500 * time.Millisecond
	s := NewSession(d, cfg)
	defer s.Close()
	r := NewRetriever(s)

	firstDone := make(chan error, 1)
	go func() {
		_, err := r.Retrieve(context.Background(), 24)
		firstDone <- err
	}()

	// Wait for the first retrieval to reach the transfer phase.
	select {
	case <-d.dataReq:
	case <-time.After(time.Second):
		t.Fatal("first retrieval never sent a data request")
	}

	if _, err := r.Retrieve(context.Background(), 24); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent Retrieve = %v, want ErrBusy", err)
	}

	if err := <-firstDone; !errors.Is(err, ErrTransferTimeout) {
		t.Errorf("first Retrieve = %v, want ErrTransferTimeout", err)
	}
}

func TestDecodeRecordsSkipsCorruptTail(t *testing.T) {
	// Two whole records plus an 8-byte fragment.
	raw := append(buildRawRecords(2), make([]byte, 8)...)

	records, skipped := DecodeRecords(raw, protocol.CoreRecordLen, time.Unix(1700000000, 0).UTC(), nil)
	if len(records) != 2 {
		t.Errorf("got %d records, want 2", len(records))
	}
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
}

func TestDecodeRecordsInvalidRecordSize(t *testing.T) {
	raw := buildRawRecords(2)
	base := time.Unix(1700000000, 0).UTC()

	for _, size := range []int{0, -16} {
		records, skipped := DecodeRecords(raw, size, base, nil)
		if records != nil || skipped != 0 {
			t.Errorf("DecodeRecords(size=%d) = (%d records, %d skipped), want (0, 0)",
				size, len(records), skipped)
		}
	}
}
