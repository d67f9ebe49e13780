// Package serial implements the K-line byte transport over a serial adapter
// (an FTDI/CH340 based K-line cable or a bare UART with a level shifter).
package serial

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"
	"go.bug.st/serial"

	"github.com/robotalks/kwp.go/pkg/kwp"
)

// ErrTimeout is returned by Receive when no byte arrives in ReadTimeout.
var ErrTimeout = fmt.Errorf("serial read: %w", kwp.ErrReceiveTimeout)

// Config holds serial port configuration.
type Config struct {
	// Device path (e.g., "/dev/ttyUSB0", "COM3").
	Device string
	// ReadTimeout bounds Receive, 0 blocks forever.
	ReadTimeout time.Duration
	// PollTimeout is how long Available waits for a byte.
	PollTimeout time.Duration
}

// DefaultConfig returns a default configuration for the device.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		ReadTimeout: 2 * time.Second,
		PollTimeout: time.Millisecond,
	}
}

// Port implements kwp.Transport over a go.bug.st/serial port.
type Port struct {
	port     serial.Port
	cfg      Config
	mode     serial.Mode
	acquired bool

	timeout    time.Duration
	timeoutSet bool

	pending  byte
	buffered bool
}

// Open opens the serial port.
func Open(cfg *Config) (*Port, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	mode := serial.Mode{
		BaudRate: 10400,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Device, &mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}
	glog.Infof("opened %s", cfg.Device)
	return New(port, *cfg, mode), nil
}

// New wraps an opened port.
func New(port serial.Port, cfg Config, mode serial.Mode) *Port {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = time.Millisecond
	}
	return &Port{port: port, cfg: cfg, mode: mode}
}

// Ports lists serial ports on the system.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}

// Close closes the port.
func (p *Port) Close() error {
	return p.port.Close()
}

// Configure implements kwp.Transport.
func (p *Port) Configure(baud int) error {
	p.mode.BaudRate = baud
	if err := p.port.SetMode(&p.mode); err != nil {
		return fmt.Errorf("set %d baud: %w", baud, err)
	}
	p.buffered = false
	return p.port.ResetInputBuffer()
}

// Send implements kwp.Transport.
func (p *Port) Send(b byte) error {
	n, err := p.port.Write([]byte{b})
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("serial write: %d bytes written", n)
	}
	return nil
}

// Receive implements kwp.Transport.
func (p *Port) Receive() (byte, error) {
	if p.buffered {
		p.buffered = false
		return p.pending, nil
	}
	timeout := p.cfg.ReadTimeout
	if timeout <= 0 {
		timeout = serial.NoTimeout
	}
	for {
		b, ok, err := p.read(timeout)
		if err != nil {
			return 0, err
		}
		if ok {
			return b, nil
		}
		if timeout != serial.NoTimeout {
			return 0, ErrTimeout
		}
	}
}

// Available implements kwp.Transport.
func (p *Port) Available() (bool, error) {
	if p.buffered {
		return true, nil
	}
	b, ok, err := p.read(p.cfg.PollTimeout)
	if err != nil || !ok {
		return false, err
	}
	p.pending, p.buffered = b, true
	return true, nil
}

// PollWait implements kwp.PollWaiter.
func (p *Port) PollWait() time.Duration {
	return p.cfg.PollTimeout
}

// Delay implements kwp.Transport.
func (p *Port) Delay(d time.Duration) {
	time.Sleep(d)
}

// AcquireLine implements kwp.LineDriver.
func (p *Port) AcquireLine() error {
	if p.acquired {
		return errors.New("line already acquired")
	}
	p.acquired = true
	return p.port.ResetOutputBuffer()
}

// DriveLine implements kwp.LineDriver. A low level is a break condition,
// a high level is the idle line.
func (p *Port) DriveLine(high bool, hold time.Duration) error {
	if !p.acquired {
		return errors.New("line not acquired")
	}
	if high {
		time.Sleep(hold)
		return nil
	}
	return p.port.Break(hold)
}

// ReleaseLine implements kwp.LineDriver.
// Bytes the UART framed while the line was driven are discarded.
func (p *Port) ReleaseLine() error {
	if !p.acquired {
		return errors.New("line not acquired")
	}
	p.acquired, p.buffered = false, false
	return p.port.ResetInputBuffer()
}

func (p *Port) read(timeout time.Duration) (byte, bool, error) {
	if !p.timeoutSet || timeout != p.timeout {
		if err := p.port.SetReadTimeout(timeout); err != nil {
			return 0, false, err
		}
		p.timeout, p.timeoutSet = timeout, true
	}
	var buf [1]byte
	n, err := p.port.Read(buf[:])
	if err != nil {
		return 0, false, err
	}
	return buf[0], n == 1, nil
}
