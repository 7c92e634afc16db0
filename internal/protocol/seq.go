package protocol

import "sync/atomic"

// seqCounter is used to generate incrementing sequence IDs
var seqCounter uint32

// NextSequenceID returns the next sequence ID. The wire field is a single
// byte, so IDs wrap at 256; one outstanding command at a time makes that
// safe.
func NextSequenceID() uint8 {
	return uint8(atomic.AddUint32(&seqCounter, 1))
}
