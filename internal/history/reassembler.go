package history

import (
	"encoding/binary"
	"fmt"
	"sort"

	"ruuvitool/internal/protocol"
)

// State tracks one bulk transfer.
type State int

const (
	StateIdle State = iota
	StateReceiving
	StateComplete
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReceiving:
		return "receiving"
	case StateComplete:
		return "complete"
	case StateAborted:
		return "aborted"
	default:
		return "invalid"
	}
}

// Progress is a point-in-time snapshot of a transfer.
type Progress struct {
	Received int
	Total    int
	Percent  float64
}

// Reassembler accumulates out-of-order, possibly duplicated chunks into one
// contiguous buffer. BLE notification delivery order is not guaranteed to
// match chunk_id order under retransmission, so the buffer is keyed by
// chunk_id and only concatenated at the end.
//
// The reassembler never touches the transport: acknowledgment requests are
// emitted through the ack callback, one per accepted frame, duplicates
// included. Acks are best-effort flow control, not a precondition for the
// next chunk.
type Reassembler struct {
	state         State
	totalChunks   int
	totalSize     int
	sizeKnown     bool
	received      map[uint16][]byte
	bytesReceived int
	ack           func(chunkID uint16)
}

// NewReassembler creates an idle reassembler. ack may be nil.
func NewReassembler(ack func(chunkID uint16)) *Reassembler {
	return &Reassembler{
		state: StateIdle,
		ack:   ack,
	}
}

// Start transitions Idle -> Receiving with known totals. Chunk 0 carries
// the authoritative total_data_size and triggers an implicit Start when it
// arrives first, so calling Start is optional.
func (r *Reassembler) Start(totalChunks, totalSize int) {
	if r.state != StateIdle {
		return
	}
	r.state = StateReceiving
	r.totalChunks = totalChunks
	if totalSize > 0 {
		r.totalSize = totalSize
		r.sizeKnown = true
	}
	r.received = make(map[uint16][]byte, totalChunks)
}

// State returns the current transfer state.
func (r *Reassembler) State() State {
	return r.state
}

// AddChunk inserts one decoded chunk. Returns true once the transfer is
// complete. Re-delivery of an already-seen chunk_id is accepted and
// ignored; the notification transport is at-least-once.
func (r *Reassembler) AddChunk(c protocol.Chunk) (bool, error) {
	switch r.state {
	case StateAborted:
		return false, nil
	case StateComplete:
		// Late duplicate after completion; ack it and move on.
		r.emitAck(c.ID)
		return true, nil
	case StateIdle:
		r.Start(int(c.Total), 0)
	}

	if c.Total == 0 || int(c.ID) >= r.totalChunks {
		return false, fmt.Errorf("chunk %d out of range (total %d)", c.ID, r.totalChunks)
	}
	if int(c.Total) != r.totalChunks {
		return false, fmt.Errorf("chunk %d declares %d total chunks, transfer started with %d",
			c.ID, c.Total, r.totalChunks)
	}

	payload := c.Payload
	if c.ID == 0 {
		// Chunk 0 embeds [total_data_size:u32 LE] ahead of its data.
		if len(payload) < 4 {
			return false, fmt.Errorf("%w: chunk 0 needs a 4-byte size prefix, got %d bytes",
				protocol.ErrTruncated, len(payload))
		}
		r.totalSize = int(binary.LittleEndian.Uint32(payload[0:4]))
		r.sizeKnown = true
		payload = payload[4:]
	}

	if _, dup := r.received[c.ID]; dup {
		r.emitAck(c.ID)
		return false, nil
	}

	r.received[c.ID] = payload
	r.bytesReceived += len(payload)
	r.emitAck(c.ID)

	if len(r.received) < r.totalChunks {
		return false, nil
	}

	// All chunk ids {0..total-1} present; the byte count must agree with
	// what chunk 0 declared.
	if r.sizeKnown && r.bytesReceived != r.totalSize {
		r.state = StateAborted
		return false, &SizeMismatchError{Got: r.bytesReceived, Want: r.totalSize}
	}
	r.state = StateComplete
	return true, nil
}

// Progress is safe to call in any state.
func (r *Reassembler) Progress() Progress {
	p := Progress{
		Received: len(r.received),
		Total:    r.totalChunks,
	}
	if p.Total > 0 {
		p.Percent = float64(p.Received) / float64(p.Total) * 100
	}
	return p
}

// BytesReceived returns the payload bytes accumulated so far.
func (r *Reassembler) BytesReceived() int {
	return r.bytesReceived
}

// CompleteData concatenates the chunks in ascending chunk_id order.
// Arrival order is irrelevant to the output.
func (r *Reassembler) CompleteData() ([]byte, error) {
	if r.state != StateComplete {
		return nil, fmt.Errorf("%w: %d/%d chunks", ErrIncomplete, len(r.received), r.totalChunks)
	}

	ids := make([]int, 0, len(r.received))
	for id := range r.received {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)

	data := make([]byte, 0, r.bytesReceived)
	for _, id := range ids {
		data = append(data, r.received[uint16(id)]...)
	}
	return data, nil
}

// Reset discards the transfer session and returns to Idle.
func (r *Reassembler) Reset() {
	r.state = StateIdle
	r.totalChunks = 0
	r.totalSize = 0
	r.sizeKnown = false
	r.received = nil
	r.bytesReceived = 0
}

func (r *Reassembler) emitAck(id uint16) {
	if r.ack != nil {
		r.ack(id)
	}
}
