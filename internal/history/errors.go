package history

import (
	"errors"
	"fmt"

	"ruuvitool/internal/protocol"
)

var (
	// ErrUnsupported means the device reported no historical-data support
	// during capability negotiation. No data request is sent in this case.
	ErrUnsupported = errors.New("device does not support historical data")

	// ErrResponseTimeout means no matching response arrived for an
	// outstanding command within the response timeout.
	ErrResponseTimeout = errors.New("timed out waiting for response")

	// ErrTransferTimeout means the chunk stream stalled past the per-chunk
	// timeout, or the whole transfer exceeded its ceiling.
	ErrTransferTimeout = errors.New("timed out waiting for chunks")

	// ErrBusy means a retrieval was started while another one on the same
	// session had not reached a terminal state.
	ErrBusy = errors.New("retrieval already in progress")

	// ErrIncomplete means CompleteData was called before the transfer
	// finished.
	ErrIncomplete = errors.New("transfer incomplete")
)

// RejectedError is a non-Success status reported by the device for a
// command. Retrying is a caller concern.
type RejectedError struct {
	Command protocol.CommandType
	Status  protocol.ResponseStatus
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s rejected by device: %s", e.Command, e.Status)
}

// SizeMismatchError means the transfer completed but its byte accounting
// contradicts what the device declared. This indicates a firmware or
// protocol bug, not a transient loss, and is never retried.
type SizeMismatchError struct {
	Got  int
	Want int
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("transfer size mismatch: got %d bytes, device declared %d", e.Got, e.Want)
}
