package history

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"ruuvitool/internal/protocol"
)

// RetrieverState tracks where a retrieval is in its forward-only sequence.
type RetrieverState int

const (
	RetrieverIdle RetrieverState = iota
	RetrieverNegotiatingCapability
	RetrieverRequestingData
	RetrieverReceivingChunks
	RetrieverDecodingRecords
	RetrieverDone
	RetrieverFailed
)

func (s RetrieverState) String() string {
	switch s {
	case RetrieverIdle:
		return "idle"
	case RetrieverNegotiatingCapability:
		return "negotiating-capability"
	case RetrieverRequestingData:
		return "requesting-data"
	case RetrieverReceivingChunks:
		return "receiving-chunks"
	case RetrieverDecodingRecords:
		return "decoding-records"
	case RetrieverDone:
		return "done"
	case RetrieverFailed:
		return "failed"
	default:
		return "invalid"
	}
}

// Result is the terminal artifact of a successful retrieval. Skipped
// reports corrupt records dropped during decode; partial success is
// preferable to discarding a multi-day retrieval over one bad record, but
// the caller is always told it happened.
type Result struct {
	Records      []protocol.HistoricalRecord
	Skipped      int
	BaseTime     time.Time
	RecordSize   int
	Raw          []byte
	Capabilities protocol.DeviceCapabilities
}

// Retriever drives the full historical-data sequence: negotiate capability,
// issue the time-ranged request, receive and acknowledge chunks, decode
// records. One retrieval at a time per session; the protocol has no
// multiplexing.
type Retriever struct {
	session *Session
	cfg     Config
	busy    atomic.Bool
	state   atomic.Int32

	// onProgress, if set, observes the transfer after each accepted chunk.
	onProgress func(Progress)
}

// NewRetriever creates a retriever on top of an existing session.
func NewRetriever(s *Session) *Retriever {
	return &Retriever{
		session: s,
		cfg:     s.Config(),
	}
}

// OnProgress registers a transfer progress observer. Must be called before
// Retrieve.
func (r *Retriever) OnProgress(fn func(Progress)) {
	r.onProgress = fn
}

// State reports where the current (or last) retrieval is in its sequence.
func (r *Retriever) State() RetrieverState {
	return RetrieverState(r.state.Load())
}

func (r *Retriever) setState(s RetrieverState) {
	r.state.Store(int32(s))
	r.cfg.Debugf("retriever state: %s", s)
}

// Retrieve pulls all device-resident records from the last hoursBack hours.
// An empty time range is a successful empty result; an unsupported device
// is ErrUnsupported with no data request ever sent.
func (r *Retriever) Retrieve(ctx context.Context, hoursBack uint32) (*Result, error) {
	if !r.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer r.busy.Store(false)

	res, err := r.retrieve(ctx, hoursBack)
	if err != nil {
		r.setState(RetrieverFailed)
		return nil, err
	}
	r.setState(RetrieverDone)
	return res, nil
}

func (r *Retriever) retrieve(ctx context.Context, hoursBack uint32) (*Result, error) {
	r.setState(RetrieverNegotiatingCapability)
	caps, err := r.session.QueryCapabilities(ctx)
	if err != nil {
		return nil, err
	}
	if !caps.SupportsHistorical {
		return nil, ErrUnsupported
	}

	r.setState(RetrieverRequestingData)
	end := r.cfg.Now().Unix()
	start := end - int64(hoursBack)*3600
	if start < 0 {
		// A range reaching before the epoch would wrap the u32 field into
		// start_ts > end_ts.
		start = 0
	}
	params := make([]byte, 8)
	binary.LittleEndian.PutUint32(params[0:4], uint32(start))
	binary.LittleEndian.PutUint32(params[4:8], uint32(end))

	resp, err := r.session.Exchange(ctx, protocol.Command{
		Type:       protocol.CmdGetHistoricalData,
		SequenceID: protocol.NextSequenceID(),
		Parameters: params,
	})
	if err != nil {
		return nil, err
	}
	if resp.Status != protocol.StatusSuccess {
		return nil, &RejectedError{Command: resp.Type, Status: resp.Status}
	}
	if len(resp.Data) < 8 {
		return nil, &SizeMismatchError{Got: len(resp.Data), Want: 8}
	}
	recordCount := int(binary.LittleEndian.Uint32(resp.Data[0:4]))
	baseTime := time.Unix(int64(binary.LittleEndian.Uint32(resp.Data[4:8])), 0).UTC()

	result := &Result{
		BaseTime:     baseTime,
		Capabilities: caps,
	}
	if recordCount == 0 {
		r.cfg.Debugf("device reports no records in range")
		return result, nil
	}
	r.cfg.Debugf("device will send %d records, base timestamp %s", recordCount, baseTime)

	r.setState(RetrieverReceivingChunks)
	raw, err := r.receiveChunks(ctx)
	if err != nil {
		return nil, err
	}
	result.Raw = raw

	r.setState(RetrieverDecodingRecords)
	recordSize := len(raw) / recordCount
	if recordSize*recordCount != len(raw) ||
		(recordSize != protocol.CoreRecordLen && recordSize != protocol.ExtendedRecordLen) {
		return nil, &SizeMismatchError{Got: len(raw), Want: recordCount * protocol.CoreRecordLen}
	}
	result.RecordSize = recordSize
	result.Records, result.Skipped = DecodeRecords(raw, recordSize, baseTime, r.cfg.Debugf)

	return result, nil
}

// receiveChunks consumes data-characteristic notifications until the
// reassembler reports completion. The chunk timer restarts on every frame;
// the overall timer does not.
func (r *Retriever) receiveChunks(ctx context.Context) ([]byte, error) {
	dataCh := make(chan []byte, 32)
	err := r.session.transport.Subscribe(CharData, func(frame []byte) {
		buf := make([]byte, len(frame))
		copy(buf, frame)
		select {
		case dataCh <- buf:
		default:
			// The reassembler tolerates loss; a full channel behaves like a
			// dropped notification.
			r.cfg.Debugf("data channel full, dropping %d-byte frame", len(frame))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to data characteristic: %w", err)
	}
	defer r.session.transport.Unsubscribe(CharData)

	reasm := NewReassembler(r.sendAck)
	defer reasm.Reset()

	overall := time.NewTimer(r.cfg.OverallTimeout)
	defer overall.Stop()
	chunkTimer := time.NewTimer(r.cfg.ChunkTimeout)
	defer chunkTimer.Stop()

	for {
		select {
		case frame := <-dataCh:
			chunk, err := protocol.DecodeChunk(frame)
			if err != nil {
				r.cfg.Debugf("dropping chunk frame: %v", err)
				continue
			}
			done, err := reasm.AddChunk(chunk)
			if err != nil {
				var mismatch *SizeMismatchError
				if errors.As(err, &mismatch) {
					return nil, err
				}
				r.cfg.Debugf("dropping chunk %d: %v", chunk.ID, err)
				continue
			}
			if r.onProgress != nil {
				r.onProgress(reasm.Progress())
			}
			if done {
				return reasm.CompleteData()
			}
			if !chunkTimer.Stop() {
				<-chunkTimer.C
			}
			chunkTimer.Reset(r.cfg.ChunkTimeout)

		case <-chunkTimer.C:
			p := reasm.Progress()
			return nil, fmt.Errorf("%w: no chunk for %s (%d/%d received)",
				ErrTransferTimeout, r.cfg.ChunkTimeout, p.Received, p.Total)

		case <-overall.C:
			p := reasm.Progress()
			return nil, fmt.Errorf("%w: transfer exceeded %s (%d/%d received)",
				ErrTransferTimeout, r.cfg.OverallTimeout, p.Received, p.Total)

		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// sendAck emits AcknowledgeChunk fire-and-forget. The ack path and the
// data-notification path are independent channels and may interleave; a
// failed ack is logged, never fatal.
func (r *Retriever) sendAck(chunkID uint16) {
	params := make([]byte, 2)
	binary.LittleEndian.PutUint16(params, chunkID)
	frame, err := protocol.EncodeCommand(protocol.Command{
		Type:       protocol.CmdAcknowledgeChunk,
		SequenceID: protocol.NextSequenceID(),
		Parameters: params,
	})
	if err != nil {
		r.cfg.Debugf("failed to encode ack for chunk %d: %v", chunkID, err)
		return
	}
	if err := r.session.transport.Write(CharCommand, frame); err != nil {
		r.cfg.Debugf("failed to ack chunk %d: %v", chunkID, err)
	}
}

// DecodeRecords splits a reassembled buffer into fixed-size slices and
// decodes each. Corrupt records are skipped and counted, not fatal.
func DecodeRecords(raw []byte, recordSize int, base time.Time, debugf func(string, ...any)) ([]protocol.HistoricalRecord, int) {
	if recordSize <= 0 {
		return nil, 0
	}
	if debugf == nil {
		debugf = func(string, ...any) {}
	}

	records := make([]protocol.HistoricalRecord, 0, len(raw)/recordSize)
	skipped := 0
	for off := 0; off < len(raw); off += recordSize {
		end := off + recordSize
		if end > len(raw) {
			end = len(raw)
		}
		rec, err := protocol.DecodeRecord(raw[off:end], base)
		if err != nil {
			debugf("skipping record at offset %d: %v", off, err)
			skipped++
			continue
		}
		records = append(records, rec)
	}
	return records, skipped
}
