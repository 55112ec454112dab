// Package command implements the command channel between host and
// controller: assembling received bytes into complete protocol lines and
// serializing acknowledgements, errors, and notifications back.
package command

import (
	"fmt"
	"io"
	"strings"

	"github.com/PiusChristSuperstar/ProjectorStepper/internal/debug"
	"github.com/PiusChristSuperstar/ProjectorStepper/internal/logic/proto"
)

// maxLineBytes bounds the receive buffer. No line in the grammar comes close;
// hitting the bound means the link is feeding garbage without terminators,
// and the buffered noise is discarded wholesale.
const maxLineBytes = 256

// Channel buffers inbound bytes until a complete line is available and writes
// outbound protocol lines. It never blocks: Next only consumes data once a
// newline has actually arrived, so a half-received command survives until the
// next poll.
type Channel struct {
	w   io.Writer
	buf []byte
}

// NewChannel creates a channel writing outbound lines to w.
func NewChannel(w io.Writer) *Channel {
	return &Channel{w: w}
}

// Feed appends raw bytes received from the link.
func (c *Channel) Feed(p []byte) {
	c.buf = append(c.buf, p...)
	if len(c.buf) > maxLineBytes && !containsNewline(c.buf) {
		debug.Verbose("Receive buffer overflow without terminator, discarding %d bytes", len(c.buf))
		c.buf = c.buf[:0]
	}
}

// Next returns the next completed command, if any. Lines without the receive
// prefix are consumed and dropped silently; they produce no command and no
// response. Prefixed lines with an unrecognized token are returned as
// proto.Unknown so the dispatcher can apply its silent-ignore policy.
func (c *Channel) Next() (proto.Command, bool) {
	for {
		i := indexNewline(c.buf)
		if i < 0 {
			return proto.Unknown, false
		}

		line := string(c.buf[:i])
		c.buf = c.buf[i+1:]

		cmd, ok := proto.ExtractCommand(line)
		if !ok {
			// Framing error: not addressed to us, drop and keep scanning.
			debug.Verbose("Dropping unframed line %q", line)
			continue
		}

		debug.Rx(strings.TrimSuffix(line, "\r"))
		return cmd, true
	}
}

// Pending reports whether undelivered bytes are buffered. Used by tests and
// the monitor snapshot; the control loop itself only ever calls Next.
func (c *Channel) Pending() bool {
	return len(c.buf) > 0
}

// Ready sends the startup readiness notice.
func (c *Channel) Ready() error {
	return c.send(proto.Frame(proto.PayloadReady))
}

// Ack sends a single acknowledgement.
func (c *Channel) Ack() error {
	return c.send(proto.Frame(proto.PayloadOK))
}

// AtCell sends the cell-positioned notification.
func (c *Channel) AtCell() error {
	return c.send(proto.Frame(proto.PayloadAtCell))
}

// Error sends an error response with the given code or text.
func (c *Channel) Error(text string) error {
	return c.send(proto.FrameError(text))
}

// Debugf sends a diagnostic line to the host. Fully suppressed below the live
// debug level, including the cost of formatting the message.
func (c *Channel) Debugf(format string, args ...interface{}) error {
	if !debug.IsEnabled(debug.LevelLive) {
		return nil
	}
	return c.send(proto.FrameDebug(fmt.Sprintf(format, args...)))
}

func (c *Channel) send(line string) error {
	debug.Tx(strings.TrimSuffix(line, "\n"))
	if _, err := io.WriteString(c.w, line); err != nil {
		return fmt.Errorf("write link: %w", err)
	}
	return nil
}

func indexNewline(p []byte) int {
	for i, b := range p {
		if b == '\n' {
			return i
		}
	}
	return -1
}

func containsNewline(p []byte) bool {
	return indexNewline(p) >= 0
}
