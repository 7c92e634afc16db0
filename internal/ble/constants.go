package ble

const (
	// HistoryServiceUUID is the Ruuvi history service (Nordic UART layout)
	HistoryServiceUUID = "6E400001-B5A3-F393-E0A9-E50E24DCCA9E"

	// CommandCharUUID is the characteristic for writing command frames
	CommandCharUUID = "6E400002-B5A3-F393-E0A9-E50E24DCCA9E"

	// ResponseCharUUID is the characteristic for response frames (notify)
	ResponseCharUUID = "6E400003-B5A3-F393-E0A9-E50E24DCCA9E"

	// DataCharUUID is the characteristic for chunk frames (notify)
	DataCharUUID = "6E400004-B5A3-F393-E0A9-E50E24DCCA9E"
)
