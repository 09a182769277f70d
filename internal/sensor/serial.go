package sensor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/sweeney/bathfan/internal/logic"
)

// Serial hub line protocol. The host sends "READ\n"; the hub answers with
// one line, either "RH=<percent>" or "ERR=<CHECKSUM|TIMEOUT|reason>".
const (
	serialRequest     = "READ\n"
	serialReplyWindow = 2 * time.Second
	serialMaxLine     = 64
)

// Port is the subset of serial.Port used by SerialReader.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// SerialReader polls a humidity sensor hub attached to a serial port.
type SerialReader struct {
	port    Port
	timeout time.Duration
}

// OpenSerial opens portName at baud (8N1) and returns a reader on it.
func OpenSerial(portName string, baud int) (*SerialReader, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", portName, err)
	}
	return NewSerialReader(port), nil
}

// NewSerialReader wraps an already-open port.
func NewSerialReader(port Port) *SerialReader {
	return &SerialReader{port: port, timeout: serialReplyWindow}
}

// Read requests one measurement and waits for the reply line.
func (r *SerialReader) Read() (float64, error) {
	if err := r.port.ResetInputBuffer(); err != nil {
		return 0, fmt.Errorf("serial: reset input: %w", err)
	}
	if _, err := io.WriteString(r.port, serialRequest); err != nil {
		return 0, fmt.Errorf("serial: write request: %w", err)
	}

	line, err := r.readLine()
	if err != nil {
		return 0, err
	}
	return parseHubReply(line)
}

// readLine reads until a newline or the reply window closes.
func (r *SerialReader) readLine() (string, error) {
	deadline := time.Now().Add(r.timeout)
	var buf bytes.Buffer
	chunk := make([]byte, serialMaxLine)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", fmt.Errorf("serial: no reply within %v: %w", r.timeout, logic.SensorTimeout)
		}
		if err := r.port.SetReadTimeout(remaining); err != nil {
			return "", fmt.Errorf("serial: set timeout: %w", err)
		}

		n, err := r.port.Read(chunk)
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("serial: read: %w", err)
		}
		if n == 0 {
			// go.bug.st/serial signals a read timeout with (0, nil).
			return "", fmt.Errorf("serial: no reply within %v: %w", r.timeout, logic.SensorTimeout)
		}
		buf.Write(chunk[:n])

		if i := bytes.IndexByte(buf.Bytes(), '\n'); i >= 0 {
			return string(buf.Bytes()[:i]), nil
		}
		if buf.Len() > serialMaxLine {
			return "", fmt.Errorf("serial: reply longer than %d bytes: %w", serialMaxLine, logic.SensorUnknown)
		}
	}
}

// parseHubReply decodes one reply line from the sensor hub.
func parseHubReply(line string) (float64, error) {
	line = strings.TrimSpace(line)
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return 0, fmt.Errorf("serial: malformed reply %q: %w", line, logic.SensorUnknown)
	}

	switch key {
	case "RH":
		rh, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("serial: bad humidity %q: %w", value, logic.SensorUnknown)
		}
		return rh, nil
	case "ERR":
		switch value {
		case "CHECKSUM":
			return 0, fmt.Errorf("serial: hub reported checksum error: %w", logic.SensorChecksumMismatch)
		case "TIMEOUT":
			return 0, fmt.Errorf("serial: hub reported timeout: %w", logic.SensorTimeout)
		default:
			return 0, fmt.Errorf("serial: hub reported %q: %w", value, logic.SensorUnknown)
		}
	default:
		return 0, fmt.Errorf("serial: unexpected reply %q: %w", line, logic.SensorUnknown)
	}
}

// Close closes the serial port.
func (r *SerialReader) Close() error {
	return r.port.Close()
}
