// Package link provides the serial transport carrying the host command
// protocol. Only the byte stream lives here; line framing and the command
// grammar are handled by internal/logic/command and internal/logic/proto.
package link

import (
	"fmt"
	"io"
	"os"
	"time"

	"go.bug.st/serial"

	"github.com/PiusChristSuperstar/ProjectorStepper/internal/debug"
)

// readTimeout bounds a single blocking read on the port so the reader can
// notice a closed link instead of hanging on a silent host.
const readTimeout = 500 * time.Millisecond

// Open opens the serial device the host is connected to (8N1).
func Open(device string, baud int) (io.ReadWriteCloser, error) {
	mode := serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(device, &mode)
	if err != nil {
		return nil, fmt.Errorf("open serial device %s: %w", device, err)
	}

	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", device, err)
	}

	debug.Info("Opened serial link on %s at %d baud", device, baud)

	return port, nil
}

// Stdio returns a link over the process's stdin/stdout, so the protocol can
// be exercised from a terminal or a script without serial hardware.
func Stdio() io.ReadWriteCloser {
	debug.Info("Using stdio link (bench mode)")
	return &stdioLink{}
}

type stdioLink struct{}

func (s *stdioLink) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (s *stdioLink) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

// Close leaves the process streams open; the daemon may still be logging.
func (s *stdioLink) Close() error { return nil }
