//go:build !linux

package serial

import (
	"fmt"
	"io"

	goserial "github.com/jacobsa/go-serial/serial"
)

// Open configures path as an 8N1 serial port at baud.
func Open(path string, baud int) (io.ReadWriteCloser, error) {
	if baud <= 0 {
		return nil, fmt.Errorf("unsupported baud %d", baud)
	}
	port, err := goserial.Open(goserial.OpenOptions{
		PortName:        path,
		BaudRate:        uint(baud),
		DataBits:        8,
		StopBits:        1,
		ParityMode:      goserial.PARITY_NONE,
		MinimumReadSize: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("serial open %s: %w", path, err)
	}
	return port, nil
}
