package pwm

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/mdouchement/logger"
	"go.bug.st/serial"
)

// OpenFan controller serial framing.
const (
	openFanRequest  = '>'
	openFanResponse = '<'
	openFanSetPWM   = 0x02
	openFanBaudRate = 115200
	openFanTimeout  = 200 * time.Millisecond
	openFanBufLen   = 128
)

var (
	ErrNoResponse  = errors.New("openfan: no response")
	ErrAckMismatch = errors.New("openfan: pwm not applied")
)

// OpenFanWriter drives fans attached to an OpenFan USB controller. The
// controller takes 8-bit PWM values, so duty counts are rescaled to 0..255.
type OpenFanWriter struct {
	mu   sync.Mutex
	port io.ReadWriteCloser
	cfg  Config
	fans []uint8
	wbuf []byte
	rbuf []byte
	log  logger.Logger
}

// OpenOpenFan opens the serial port at 115200 8N1.
func OpenOpenFan(port string, cfg Config, outputs []Output) (*OpenFanWriter, error) {
	p, err := serial.Open(port, &serial.Mode{
		BaudRate: openFanBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", port, err)
	}

	if err = p.SetReadTimeout(openFanTimeout); err != nil {
		p.Close()
		return nil, err
	}
	if err = p.ResetInputBuffer(); err != nil {
		p.Close()
		return nil, err
	}

	return NewOpenFanWriter(p, cfg, outputs), nil
}

// NewOpenFanWriter wraps an already open port.
func NewOpenFanWriter(port io.ReadWriteCloser, cfg Config, outputs []Output) *OpenFanWriter {
	w := &OpenFanWriter{
		port: port,
		cfg:  cfg,
		wbuf: make([]byte, 0, 16),
		rbuf: make([]byte, openFanBufLen),
	}
	for _, o := range outputs {
		w.fans = append(w.fans, uint8(o.Fan))
	}
	return w
}

// SetLogger enables debug logging of the serial exchange.
func (w *OpenFanWriter) SetLogger(l logger.Logger) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.log = l
}

// Scale maps a duty count onto the controller's 0..255 range.
func (w *OpenFanWriter) Scale(duty uint32) uint8 {
	maxDuty := w.cfg.MaxDuty()
	duty = min(duty, maxDuty)
	return uint8((uint64(duty)*255 + uint64(maxDuty)/2) / uint64(maxDuty))
}

func (w *OpenFanWriter) WriteDuty(channel int, duty uint32) error {
	if err := checkChannel(channel, len(w.fans)); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	want := w.Scale(duty)
	w.wbuf = append(w.wbuf[:0], openFanRequest)
	w.wbuf = fmt.Appendf(w.wbuf, "%02X%02X%02X\r\n", openFanSetPWM, w.fans[channel], want)

	if _, err := w.port.Write(w.wbuf); err != nil {
		return fmt.Errorf("fan_set_pwm: write: %w", err)
	}

	if w.log != nil {
		w.log.Debug(string(bytes.TrimSpace(w.wbuf)))
	}

	resp, err := w.readResponse()
	if err != nil {
		return fmt.Errorf("fan_set_pwm: %w", err)
	}
	if w.log != nil {
		w.log.Debug(string(resp))
	}

	got, err := ParseAck(resp)
	if err != nil {
		return fmt.Errorf("fan_set_pwm: %w", err)
	}
	if got != want {
		return fmt.Errorf("fan_set_pwm: %w: sent %02X, controller holds %02X", ErrAckMismatch, want, got)
	}
	return nil
}

// readResponse reads until the response line arrives. The controller may
// emit debug lines first.
func (w *OpenFanWriter) readResponse() ([]byte, error) {
	var got []byte
	for {
		n, err := w.port.Read(w.rbuf)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read: %w", err)
		}
		got = append(got, w.rbuf[:n]...)

		if i := bytes.IndexByte(got, openFanResponse); i >= 0 {
			if j := bytes.IndexByte(got[i:], '\n'); j >= 0 {
				return bytes.TrimSpace(got[i+1 : i+j]), nil
			}
		}
		// A zero-length read is the serial timeout.
		if n == 0 {
			return nil, ErrNoResponse
		}
	}
}

// ParseAck returns the PWM value echoed in a set response such as "02|00:80".
func ParseAck(resp []byte) (uint8, error) {
	kv := bytes.Split(resp, []byte{':'})
	if len(kv) != 2 {
		return 0, fmt.Errorf("invalid response format %q", resp)
	}
	v, err := strconv.ParseUint(string(kv[1]), 16, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid response %q: %w", resp, err)
	}
	return uint8(v), nil
}

func (w *OpenFanWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.port.Close()
}
