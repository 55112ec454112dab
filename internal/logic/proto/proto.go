// Package proto defines the text grammar spoken with the host over the
// serial link. Lines are newline-terminated; both directions carry a fixed
// prefix naming the sender ("STC:" sender-to-controller, "CTS:" the reverse).
package proto

import "strings"

// Line prefixes. The host only honors lines starting with SendPrefix and the
// controller only honors lines starting with ReceivePrefix; anything else on
// the wire is noise from boot messages or a misconfigured terminal.
const (
	ReceivePrefix = "STC:"
	SendPrefix    = "CTS:"
)

// Command is a single instruction token extracted from a host line.
type Command string

const (
	NextCell  Command = "NEXTCELL" // advance the film by one cell
	Rewind    Command = "REWIND"   // run the transport backwards
	MotorOn   Command = "MOTORON"  // energize the drive motor
	MotorOff  Command = "MOTOROFF" // release the drive motor
	TestOptic Command = "OPTIC"    // bench diagnostic: report optic sensor flips
	Ping      Command = "PING"     // liveness probe, acknowledged and nothing else
	Ack       Command = "OK"       // host acknowledgement echo, swallowed
	Unknown   Command = ""         // anything not in the fixed set
)

// Outbound payloads.
const (
	PayloadOK     = "OK"
	PayloadReady  = "READY"
	PayloadAtCell = "ATCELL"
)

// Error codes sent after the error marker.
const (
	ErrCodeInterlock = "INTERLOCK"
	ErrCodeBusy      = "BUSY"
	ErrCodeTimeout   = "TIMEOUT"
)

const (
	errorMarker = "ERROR: "
	debugMarker = "DBG: "
)

// ParseToken maps a raw token to its Command. Tokens outside the fixed set
// map to Unknown; the dispatcher ignores those silently.
func ParseToken(token string) Command {
	switch Command(token) {
	case NextCell, Rewind, MotorOn, MotorOff, TestOptic, Ping, Ack:
		return Command(token)
	default:
		return Unknown
	}
}

// ExtractCommand parses one received line (terminator already stripped).
// ok is false when the line does not carry the receive prefix — a framing
// error, which the caller drops without a response.
func ExtractCommand(line string) (cmd Command, ok bool) {
	line = strings.TrimSuffix(line, "\r")
	if !strings.HasPrefix(line, ReceivePrefix) {
		return Unknown, false
	}
	return ParseToken(strings.TrimPrefix(line, ReceivePrefix)), true
}

// Frame wraps a payload into a complete outbound line.
func Frame(payload string) string {
	return SendPrefix + payload + "\n"
}

// FrameError wraps an error code or text into a complete outbound error line.
func FrameError(text string) string {
	return Frame(errorMarker + text)
}

// FrameDebug wraps a diagnostic message into a complete outbound debug line.
// Callers gate on the debug level before formatting the message.
func FrameDebug(text string) string {
	return Frame(debugMarker + text)
}
