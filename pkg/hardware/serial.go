package hardware

import (
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"

	"github.com/parol-robotics/go-parol6/pkg/kinematics"
)

// SerialLink talks to the PAROL6 controller board over USB serial.
type SerialLink struct {
	mu   sync.Mutex
	port serial.Port

	// readBuf accumulates bytes between reads; feedback frames are not
	// guaranteed to arrive aligned with read boundaries.
	readBuf []byte
}

// OpenSerial opens the controller board on the given port.
func OpenSerial(portName string, baudrate int, timeout time.Duration) (*SerialLink, error) {
	mode := &serial.Mode{BaudRate: baudrate}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "opening serial port %s", portName)
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, errors.Wrap(err, "setting serial read timeout")
	}
	return &SerialLink{port: port}, nil
}

// WriteSetpoints sends one tick's joint setpoints to the board.
func (l *SerialLink) WriteSetpoints(j kinematics.JointAngles) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	frame := encodeSetpointFrame(j)
	if _, err := l.port.Write(frame); err != nil {
		return errors.Wrap(err, "writing setpoint frame")
	}
	return nil
}

// ReadFeedback reads and decodes the next complete feedback frame,
// discarding noise before the start marker.
func (l *SerialLink) ReadFeedback() (Feedback, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	frameLen := len(frameStart) + 1 + feedbackPayloadLen + 1 + len(frameEnd)
	buf := make([]byte, 256)
	for {
		if frame, rest, ok := extractFrame(l.readBuf, frameLen); ok {
			l.readBuf = rest
			fb, err := decodeFeedbackFrame(frame)
			if err != nil {
				return Feedback{}, err
			}
			fb.Timestamp = time.Now()
			return fb, nil
		}

		n, err := l.port.Read(buf)
		if err != nil {
			if err == io.EOF {
				return Feedback{}, errors.New("serial port closed")
			}
			return Feedback{}, errors.Wrap(err, "reading feedback")
		}
		if n == 0 {
			return Feedback{}, errors.New("feedback read timed out")
		}
		l.readBuf = append(l.readBuf, buf[:n]...)
		// Cap the buffer so a desynced stream cannot grow it forever.
		if len(l.readBuf) > 4*frameLen {
			l.readBuf = l.readBuf[len(l.readBuf)-frameLen:]
		}
	}
}

// extractFrame scans buf for a complete frame of frameLen bytes starting
// with the start marker. Returns the frame, the remaining bytes, and
// whether a frame was found.
func extractFrame(buf []byte, frameLen int) ([]byte, []byte, bool) {
	for i := 0; i+frameLen <= len(buf); i++ {
		if buf[i] == frameStart[0] && buf[i+1] == frameStart[1] && buf[i+2] == frameStart[2] {
			return buf[i : i+frameLen], buf[i+frameLen:], true
		}
	}
	// Keep at most the trailing partial-marker bytes.
	if len(buf) > frameLen {
		buf = buf[len(buf)-frameLen:]
	}
	return nil, buf, false
}

// Close releases the serial port.
func (l *SerialLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.port.Close()
}

var _ Link = (*SerialLink)(nil)
