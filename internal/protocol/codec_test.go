package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeCommand(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want []byte
	}{
		{
			name: "no parameters",
			cmd:  Command{Type: CmdGetCapabilities, SequenceID: 7},
			want: []byte{0x04, 0x07, 0x00, 0x00},
		},
		{
			name: "with parameters",
			cmd:  Command{Type: CmdAcknowledgeChunk, SequenceID: 0x2A, Parameters: []byte{0x05, 0x00}},
			want: []byte{0x05, 0x2A, 0x02, 0x00, 0x05, 0x00},
		},
		{
			name: "length field is little-endian",
			cmd:  Command{Type: CmdGetHistoricalData, SequenceID: 1, Parameters: make([]byte, 0x0102)},
			want: append([]byte{0x02, 0x01, 0x02, 0x01}, make([]byte, 0x0102)...),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeCommand(tt.cmd)
			if err != nil {
				t.Fatalf("EncodeCommand: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("EncodeCommand = % x, want % x", got, tt.want)
			}
		})
	}
}

func TestEncodeCommandParamsTooLarge(t *testing.T) {
	_, err := EncodeCommand(Command{
		Type:       CmdSetTime,
		Parameters: make([]byte, MaxParameterLen+1),
	})
	if !errors.Is(err, ErrParamsTooLarge) {
		t.Errorf("got %v, want ErrParamsTooLarge", err)
	}
}

func TestDecodeResponse(t *testing.T) {
	frame := []byte{0x04, 0x07, 0x00, 0x03, 0x00, 0xAA, 0xBB, 0xCC}

	resp, err := DecodeResponse(frame)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if resp.Type != CmdGetCapabilities {
		t.Errorf("Type = %v, want GetCapabilities", resp.Type)
	}
	if resp.SequenceID != 7 {
		t.Errorf("SequenceID = %d, want 7", resp.SequenceID)
	}
	if resp.Status != StatusSuccess {
		t.Errorf("Status = %v, want Success", resp.Status)
	}
	if !bytes.Equal(resp.Data, []byte{0xAA, 0xBB, 0xCC}) {
		t.Errorf("Data = % x", resp.Data)
	}

	// The decoded data must not alias the notification buffer; BLE stacks
	// reuse those.
	frame[5] = 0xFF
	if resp.Data[0] != 0xAA {
		t.Error("Data aliases the input frame")
	}
}

func TestDecodeResponseUnknownValuesPreserved(t *testing.T) {
	resp, err := DecodeResponse([]byte{0x7F, 0x01, 0x99, 0x00, 0x00})
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if resp.Type != CommandType(0x7F) {
		t.Errorf("Type = 0x%02x, want 0x7f", uint8(resp.Type))
	}
	if resp.Type.Known() {
		t.Error("Known() = true for 0x7f")
	}
	if resp.Status != ResponseStatus(0x99) {
		t.Errorf("Status = 0x%02x, want 0x99", uint8(resp.Status))
	}
	if resp.Status.Known() {
		t.Error("Known() = true for status 0x99")
	}
}

func TestDecodeResponseTruncated(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
	}{
		{"empty", nil},
		{"short header", []byte{0x01, 0x02, 0x00, 0x01}},
		{"declared length exceeds frame", []byte{0x01, 0x02, 0x00, 0x05, 0x00, 0xAA}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeResponse(tt.frame); !errors.Is(err, ErrTruncated) {
				t.Errorf("got %v, want ErrTruncated", err)
			}
		})
	}
}

func TestDecodeChunk(t *testing.T) {
	frame := []byte{0x02, 0x00, 0x05, 0x00, 0x03, 0x00, 0x01, 0x02, 0x03}

	chunk, err := DecodeChunk(frame)
	if err != nil {
		t.Fatalf("DecodeChunk: %v", err)
	}
	if chunk.ID != 2 {
		t.Errorf("ID = %d, want 2", chunk.ID)
	}
	if chunk.Total != 5 {
		t.Errorf("Total = %d, want 5", chunk.Total)
	}
	if !bytes.Equal(chunk.Payload, []byte{0x01, 0x02, 0x03}) {
		t.Errorf("Payload = % x", chunk.Payload)
	}
}

func TestDecodeChunkTruncated(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
	}{
		{"short header", []byte{0x00, 0x00, 0x01, 0x00, 0x04}},
		{"declared size exceeds frame", []byte{0x00, 0x00, 0x01, 0x00, 0x04, 0x00, 0xAA}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeChunk(tt.frame); !errors.Is(err, ErrTruncated) {
				t.Errorf("got %v, want ErrTruncated", err)
			}
		})
	}
}

func TestCommandTypeString(t *testing.T) {
	if got := CmdGetHistoricalData.String(); got != "GetHistoricalData" {
		t.Errorf("String() = %q", got)
	}
	if got := CommandType(0xEE).String(); got != "unknown(0xee)" {
		t.Errorf("String() = %q", got)
	}
	if got := StatusNotSupported.String(); got != "NotSupported" {
		t.Errorf("String() = %q", got)
	}
}

func TestNextSequenceIDAdvances(t *testing.T) {
	seen := make(map[uint8]bool)
	for i := 0; i < 10; i++ {
		seen[NextSequenceID()] = true
	}
	if len(seen) != 10 {
		t.Errorf("10 calls produced %d distinct IDs", len(seen))
	}
}
