package history

import (
	"context"
	"fmt"

	"ruuvitool/internal/protocol"
)

// QueryCapabilities asks the device what it supports. The result is
// derived once per session; callers cache it.
func (s *Session) QueryCapabilities(ctx context.Context) (protocol.DeviceCapabilities, error) {
	resp, err := s.Exchange(ctx, protocol.Command{
		Type:       protocol.CmdGetCapabilities,
		SequenceID: protocol.NextSequenceID(),
	})
	if err != nil {
		return protocol.DeviceCapabilities{}, err
	}
	if resp.Status != protocol.StatusSuccess {
		return protocol.DeviceCapabilities{}, &RejectedError{Command: resp.Type, Status: resp.Status}
	}

	caps, err := protocol.DecodeCapabilities(resp.Data)
	if err != nil {
		return protocol.DeviceCapabilities{}, fmt.Errorf("failed to decode capabilities: %w", err)
	}
	s.cfg.Debugf("capabilities: historical=%v max_records=%d interval=%ds fw=%q hw=%q",
		caps.SupportsHistorical, caps.MaxRecords, caps.DataIntervalSeconds,
		caps.FirmwareVersion, caps.HardwareVersion)
	return caps, nil
}
