package history

import (
	"context"
	"encoding/binary"
	"time"

	"ruuvitool/internal/protocol"
)

// QueryDeviceInfo reads firmware/hardware versions and the device MAC.
func (s *Session) QueryDeviceInfo(ctx context.Context) (protocol.DeviceInfo, error) {
	resp, err := s.Exchange(ctx, protocol.Command{
		Type:       protocol.CmdGetDeviceInfo,
		SequenceID: protocol.NextSequenceID(),
	})
	if err != nil {
		return protocol.DeviceInfo{}, err
	}
	if resp.Status != protocol.StatusSuccess {
		return protocol.DeviceInfo{}, &RejectedError{Command: resp.Type, Status: resp.Status}
	}
	return protocol.DecodeDeviceInfo(resp.Data), nil
}

// SetTime writes a wall-clock timestamp to the device so record offsets
// land on a sane epoch.
func (s *Session) SetTime(ctx context.Context, t time.Time) error {
	params := make([]byte, 4)
	binary.LittleEndian.PutUint32(params, uint32(t.Unix()))

	resp, err := s.Exchange(ctx, protocol.Command{
		Type:       protocol.CmdSetTime,
		SequenceID: protocol.NextSequenceID(),
		Parameters: params,
	})
	if err != nil {
		return err
	}
	if resp.Status != protocol.StatusSuccess {
		return &RejectedError{Command: resp.Type, Status: resp.Status}
	}
	return nil
}
