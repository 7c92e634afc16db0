package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Frame layouts (all multi-byte fields little-endian):
//
//	Command:  [type:1][seq:1][param_len:2][params: param_len]
//	Response: [type:1][seq:1][status:1][data_len:2][data: data_len]
//	Chunk:    [chunk_id:2][total_chunks:2][chunk_size:2][payload: chunk_size]
//
// Chunk 0's payload additionally starts with [total_data_size:4].

const (
	commandHeaderLen  = 4
	responseHeaderLen = 5
	chunkHeaderLen    = 6

	// MaxParameterLen is the largest parameter block a command frame can
	// carry (the length field is a u16).
	MaxParameterLen = 65535
)

var (
	// ErrTruncated means a frame was shorter than its header or its
	// declared length. On the notification path this is logged and the
	// frame dropped, not a session-fatal condition.
	ErrTruncated = errors.New("truncated frame")

	// ErrParamsTooLarge means the caller handed EncodeCommand more
	// parameter bytes than the length field can express.
	ErrParamsTooLarge = errors.New("command parameters too large")
)

// EncodeCommand serializes a command frame for the command characteristic.
func EncodeCommand(cmd Command) ([]byte, error) {
	if len(cmd.Parameters) > MaxParameterLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrParamsTooLarge, len(cmd.Parameters))
	}

	frame := make([]byte, commandHeaderLen+len(cmd.Parameters))
	frame[0] = byte(cmd.Type)
	frame[1] = cmd.SequenceID
	binary.LittleEndian.PutUint16(frame[2:4], uint16(len(cmd.Parameters)))
	copy(frame[commandHeaderLen:], cmd.Parameters)
	return frame, nil
}

// DecodeResponse parses a notification from the response characteristic.
// Unknown command types and status codes are preserved as-is; sensor
// firmware is multi-version and rejecting well-formed frames over an
// unrecognized enum value would break forward compatibility.
func DecodeResponse(frame []byte) (Response, error) {
	if len(frame) < responseHeaderLen {
		return Response{}, fmt.Errorf("%w: response header needs %d bytes, got %d",
			ErrTruncated, responseHeaderLen, len(frame))
	}

	dataLen := int(binary.LittleEndian.Uint16(frame[3:5]))
	if len(frame) < responseHeaderLen+dataLen {
		return Response{}, fmt.Errorf("%w: response declares %d data bytes, got %d",
			ErrTruncated, dataLen, len(frame)-responseHeaderLen)
	}

	resp := Response{
		Type:       CommandType(frame[0]),
		SequenceID: frame[1],
		Status:     ResponseStatus(frame[2]),
	}
	if dataLen > 0 {
		resp.Data = make([]byte, dataLen)
		copy(resp.Data, frame[responseHeaderLen:responseHeaderLen+dataLen])
	}
	return resp, nil
}

// DecodeChunk parses a notification from the data characteristic.
func DecodeChunk(frame []byte) (Chunk, error) {
	if len(frame) < chunkHeaderLen {
		return Chunk{}, fmt.Errorf("%w: chunk header needs %d bytes, got %d",
			ErrTruncated, chunkHeaderLen, len(frame))
	}

	size := int(binary.LittleEndian.Uint16(frame[4:6]))
	if len(frame) < chunkHeaderLen+size {
		return Chunk{}, fmt.Errorf("%w: chunk declares %d payload bytes, got %d",
			ErrTruncated, size, len(frame)-chunkHeaderLen)
	}

	chunk := Chunk{
		ID:    binary.LittleEndian.Uint16(frame[0:2]),
		Total: binary.LittleEndian.Uint16(frame[2:4]),
	}
	chunk.Payload = make([]byte, size)
	copy(chunk.Payload, frame[chunkHeaderLen:chunkHeaderLen+size])
	return chunk, nil
}
