package history

import (
	"encoding/binary"
	"sync"

	"ruuvitool/internal/protocol"
)

// fakeTransport records writes and lets tests inject notifications. The
// onWrite hook runs outside the lock so handlers can notify synchronously.
type fakeTransport struct {
	mu      sync.Mutex
	writes  map[Characteristic][][]byte
	subs    map[Characteristic]func([]byte)
	onWrite func(c Characteristic, frame []byte)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		writes: make(map[Characteristic][][]byte),
		subs:   make(map[Characteristic]func([]byte)),
	}
}

func (t *fakeTransport) Write(c Characteristic, frame []byte) error {
	buf := make([]byte, len(frame))
	copy(buf, frame)

	t.mu.Lock()
	t.writes[c] = append(t.writes[c], buf)
	hook := t.onWrite
	t.mu.Unlock()

	if hook != nil {
		hook(c, buf)
	}
	return nil
}

func (t *fakeTransport) Subscribe(c Characteristic, fn func([]byte)) error {
	t.mu.Lock()
	t.subs[c] = fn
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) Unsubscribe(c Characteristic) error {
	t.mu.Lock()
	delete(t.subs, c)
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) notify(c Characteristic, frame []byte) {
	t.mu.Lock()
	fn := t.subs[c]
	t.mu.Unlock()
	if fn != nil {
		fn(frame)
	}
}

func (t *fakeTransport) writeCount(c Characteristic) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.writes[c])
}

// commandWrites returns the command frames written so far with the given
// type byte.
func (t *fakeTransport) commandWrites(typ protocol.CommandType) [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out [][]byte
	for _, frame := range t.writes[CharCommand] {
		if len(frame) > 0 && protocol.CommandType(frame[0]) == typ {
			out = append(out, frame)
		}
	}
	return out
}

func responseFrame(typ protocol.CommandType, seq uint8, status protocol.ResponseStatus, data []byte) []byte {
	frame := make([]byte, 5+len(data))
	frame[0] = byte(typ)
	frame[1] = seq
	frame[2] = byte(status)
	binary.LittleEndian.PutUint16(frame[3:5], uint16(len(data)))
	copy(frame[5:], data)
	return frame
}

func chunkFrame(id, total uint16, payload []byte) []byte {
	frame := make([]byte, 6+len(payload))
	binary.LittleEndian.PutUint16(frame[0:2], id)
	binary.LittleEndian.PutUint16(frame[2:4], total)
	binary.LittleEndian.PutUint16(frame[4:6], uint16(len(payload)))
	copy(frame[6:], payload)
	return frame
}

func capsPayload(historical bool, maxRecords, interval uint16, fw, hw string) []byte {
	data := make([]byte, 7)
	if historical {
		data[0] = 0x01
	}
	binary.LittleEndian.PutUint16(data[1:3], maxRecords)
	binary.LittleEndian.PutUint16(data[3:5], interval)
	data = append(data, []byte(fw)...)
	data = append(data, 0)
	data = append(data, []byte(hw)...)
	data = append(data, 0)
	return data
}

// fakeDevice simulates a sensor behind a fakeTransport: it answers
// command writes with response notifications and streams chunks once the
// data characteristic is subscribed.
type fakeDevice struct {
	*fakeTransport

	capsData   []byte
	capsStatus protocol.ResponseStatus

	dataStatus  protocol.ResponseStatus
	recordCount uint32
	baseUnix    uint32
	raw         []byte
	chunkSize   int
	serveChunks bool

	mu         sync.Mutex
	acks       []uint16
	dataParams []byte
	dataReq    chan struct{}
}

func newFakeDevice() *fakeDevice {
	d := &fakeDevice{
		fakeTransport: newFakeTransport(),
		capsData:      capsPayload(true, 1000, 60, "3.31.0", "B1"),
		capsStatus:    protocol.StatusSuccess,
		dataStatus:    protocol.StatusSuccess,
		baseUnix:      1700000000,
		chunkSize:     64,
		serveChunks:   true,
		dataReq:       make(chan struct{}, 1),
	}
	d.onWrite = d.handleWrite
	return d
}

func (d *fakeDevice) handleWrite(c Characteristic, frame []byte) {
	if c != CharCommand || len(frame) < 4 {
		return
	}
	typ := protocol.CommandType(frame[0])
	seq := frame[1]

	switch typ {
	case protocol.CmdGetCapabilities:
		data := d.capsData
		if d.capsStatus != protocol.StatusSuccess {
			data = nil
		}
		d.notify(CharResponse, responseFrame(typ, seq, d.capsStatus, data))

	case protocol.CmdGetHistoricalData:
		d.mu.Lock()
		d.dataParams = append([]byte(nil), frame[4:]...)
		d.mu.Unlock()

		var data []byte
		if d.dataStatus == protocol.StatusSuccess {
			data = make([]byte, 8)
			binary.LittleEndian.PutUint32(data[0:4], d.recordCount)
			binary.LittleEndian.PutUint32(data[4:8], d.baseUnix)
		}
		d.notify(CharResponse, responseFrame(typ, seq, d.dataStatus, data))

		select {
		case d.dataReq <- struct{}{}:
		default:
		}

	case protocol.CmdAcknowledgeChunk:
		if len(frame) >= 6 {
			d.mu.Lock()
			d.acks = append(d.acks, binary.LittleEndian.Uint16(frame[4:6]))
			d.mu.Unlock()
		}

	case protocol.CmdGetDeviceInfo:
		d.notify(CharResponse, responseFrame(typ, seq, protocol.StatusSuccess, nil))

	case protocol.CmdSetTime:
		d.notify(CharResponse, responseFrame(typ, seq, protocol.StatusSuccess, nil))
	}
}

// Subscribe shadows the transport so chunk delivery starts only once the
// receiver is actually listening on the data characteristic.
func (d *fakeDevice) Subscribe(c Characteristic, fn func([]byte)) error {
	if err := d.fakeTransport.Subscribe(c, fn); err != nil {
		return err
	}
	if c == CharData && d.serveChunks {
		go d.sendChunks()
	}
	return nil
}

func (d *fakeDevice) sendChunks() {
	stream := make([]byte, 4+len(d.raw))
	binary.LittleEndian.PutUint32(stream[0:4], uint32(len(d.raw)))
	copy(stream[4:], d.raw)

	total := (len(stream) + d.chunkSize - 1) / d.chunkSize
	for i := 0; i < total; i++ {
		lo := i * d.chunkSize
		hi := lo + d.chunkSize
		if hi > len(stream) {
			hi = len(stream)
		}
		d.notify(CharData, chunkFrame(uint16(i), uint16(total), stream[lo:hi]))
	}
}

func (d *fakeDevice) ackCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.acks)
}

func (d *fakeDevice) lastDataParams() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dataParams
}
