package feed

import (
	"go.bug.st/serial"
)

// DefaultMode is the head unit's serial configuration.
func DefaultMode() *serial.Mode {
	return &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// OpenReal opens the sensor port at path and wraps it in a Mux.
func OpenReal(path string, mode *serial.Mode) (*Mux[serial.Port], error) {
	if mode == nil {
		mode = DefaultMode()
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return NewMux[serial.Port](port), nil
}
