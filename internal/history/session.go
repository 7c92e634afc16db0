package history

import (
	"context"
	"fmt"
	"time"

	"ruuvitool/internal/protocol"
)

// Config carries the tunables and injected dependencies for one session.
// Everything is explicit so the protocol can be exercised with a fake
// clock and fake transport.
type Config struct {
	// ResponseTimeout bounds the wait for a matching command response.
	ResponseTimeout time.Duration
	// ChunkTimeout bounds the gap between consecutive chunk notifications.
	ChunkTimeout time.Duration
	// OverallTimeout caps a whole transfer regardless of slow-drip
	// delivery keeping the per-chunk timer alive.
	OverallTimeout time.Duration

	// Now supplies the wall clock for time-ranged requests.
	Now func() time.Time
	// Debugf receives verbose protocol traces. May be nil.
	Debugf func(format string, args ...any)
}

func (c Config) withDefaults() Config {
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = 5 * time.Second
	}
	if c.ChunkTimeout <= 0 {
		c.ChunkTimeout = 10 * time.Second
	}
	if c.OverallTimeout <= 0 {
		c.OverallTimeout = 60 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Debugf == nil {
		c.Debugf = func(string, ...any) {}
	}
	return c
}

// Session owns the half-duplex command exchange on one connection: one
// command outstanding at a time, matched to its response by sequence ID.
type Session struct {
	transport Transport
	cfg       Config
	respCh    chan protocol.Response
	attached  bool
}

// NewSession wraps a transport. The response characteristic is subscribed
// lazily on the first exchange.
func NewSession(t Transport, cfg Config) *Session {
	return &Session{
		transport: t,
		cfg:       cfg.withDefaults(),
		respCh:    make(chan protocol.Response, 4),
	}
}

// Config returns the session's effective configuration.
func (s *Session) Config() Config {
	return s.cfg
}

func (s *Session) attach() error {
	if s.attached {
		return nil
	}
	err := s.transport.Subscribe(CharResponse, func(frame []byte) {
		resp, err := protocol.DecodeResponse(frame)
		if err != nil {
			// Malformed notifications are expected on BLE; drop the frame
			// and keep waiting rather than killing the exchange.
			s.cfg.Debugf("dropping response frame: %v", err)
			return
		}
		select {
		case s.respCh <- resp:
		default:
			s.cfg.Debugf("response channel full, dropping %s seq=%d", resp.Type, resp.SequenceID)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to response characteristic: %w", err)
	}
	s.attached = true
	return nil
}

// Close releases the response subscription.
func (s *Session) Close() {
	if s.attached {
		_ = s.transport.Unsubscribe(CharResponse)
		s.attached = false
	}
}

// Exchange sends one command and waits for its matching response. Stale
// responses from previous timed-out commands are discarded by sequence ID,
// not treated as errors.
func (s *Session) Exchange(ctx context.Context, cmd protocol.Command) (protocol.Response, error) {
	if err := s.attach(); err != nil {
		return protocol.Response{}, err
	}

	// Drain anything a previous timed-out exchange left behind.
	for {
		select {
		case stale := <-s.respCh:
			s.cfg.Debugf("discarding stale response %s seq=%d", stale.Type, stale.SequenceID)
			continue
		default:
		}
		break
	}

	frame, err := protocol.EncodeCommand(cmd)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("failed to encode %s: %w", cmd.Type, err)
	}

	s.cfg.Debugf("sending %s seq=%d (%d param bytes)", cmd.Type, cmd.SequenceID, len(cmd.Parameters))
	if err := s.transport.Write(CharCommand, frame); err != nil {
		return protocol.Response{}, fmt.Errorf("failed to write %s: %w", cmd.Type, err)
	}

	deadline := time.NewTimer(s.cfg.ResponseTimeout)
	defer deadline.Stop()

	for {
		select {
		case resp := <-s.respCh:
			if resp.SequenceID != cmd.SequenceID || resp.Type != cmd.Type {
				s.cfg.Debugf("discarding mismatched response %s seq=%d (want %s seq=%d)",
					resp.Type, resp.SequenceID, cmd.Type, cmd.SequenceID)
				continue
			}
			s.cfg.Debugf("got %s seq=%d status=%s (%d data bytes)",
				resp.Type, resp.SequenceID, resp.Status, len(resp.Data))
			return resp, nil
		case <-deadline.C:
			return protocol.Response{}, fmt.Errorf("%w: %s seq=%d", ErrResponseTimeout, cmd.Type, cmd.SequenceID)
		case <-ctx.Done():
			return protocol.Response{}, ctx.Err()
		}
	}
}
