package history

// Characteristic names the three GATT endpoints the history protocol uses.
// The transport owns connection lifecycle and characteristic discovery;
// this package only writes frames and consumes notifications.
type Characteristic int

const (
	// CharCommand is the write characteristic for command frames.
	CharCommand Characteristic = iota
	// CharResponse is the notify characteristic for response frames.
	CharResponse
	// CharData is the notify characteristic for chunk frames.
	CharData
)

func (c Characteristic) String() string {
	switch c {
	case CharCommand:
		return "command"
	case CharResponse:
		return "response"
	case CharData:
		return "data"
	default:
		return "invalid"
	}
}

// Transport is the minimal surface the history protocol needs from a BLE
// stack. The production implementation lives in internal/ble; tests inject
// frames through a fake.
type Transport interface {
	Write(c Characteristic, frame []byte) error
	Subscribe(c Characteristic, fn func(frame []byte)) error
	Unsubscribe(c Characteristic) error
}
