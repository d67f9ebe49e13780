// Package env configures transports, sessions and tracing from command line
// flags and environment variables.
package env

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/robotalks/kwp.go/pkg/kline/serial"
	"github.com/robotalks/kwp.go/pkg/kwp"
	"github.com/robotalks/kwp.go/pkg/kwp/emu"
	"github.com/robotalks/kwp.go/pkg/trace"
	"github.com/robotalks/kwp.go/pkg/trace/comm"
)

// EmuPort selects the built-in module emulator instead of a serial port.
const EmuPort = "emu"

// Config provides common options to set up a session.
type Config struct {
	// Port is the serial device, or "emu".
	Port string
	// Baud is the connect baud rate, 0 tries all autoconnect rates.
	Baud         int
	Address      uint
	Generation   string
	Model        string
	MaxBlockSize int
	ReadTimeout  time.Duration

	// TraceURL specifies where session traces go, empty disables tracing.
	// e.g. mqtt://host:port/topic-prefix, ws://host:port/path, tcp://host:port
	TraceURL   string
	TraceBytes bool
	StationID  string
}

var defaultConfig = Config{
	Port:         "/dev/ttyUSB0",
	Address:      uint(emu.DefaultAddress),
	Generation:   "a",
	Model:        "premium4",
	MaxBlockSize: kwp.DefaultMaxBlockSize,
	ReadTimeout:  2 * time.Second,
}

func init() {
	if val := os.Getenv("KWP_PORT"); val != "" {
		defaultConfig.Port = val
	}
	if val := os.Getenv("KWP_ADDRESS"); val != "" {
		if addr, err := strconv.ParseUint(val, 0, 8); err == nil {
			defaultConfig.Address = uint(addr)
		}
	}
	if val := os.Getenv("KWP_TRACE_URL"); val != "" {
		defaultConfig.TraceURL = val
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Port, "port", defaultConfig.Port, "Serial port of the K-line adapter, or emu.")
	flag.IntVar(&defaultConfig.Baud, "baud", defaultConfig.Baud, "Baud rate, 0 tries 10400 and 9600.")
	flag.UintVar(&defaultConfig.Address, "address", defaultConfig.Address, "Module address.")
	flag.StringVar(&defaultConfig.Generation, "generation", defaultConfig.Generation, "Connect sequence generation: a or b.")
	flag.StringVar(&defaultConfig.Model, "model", defaultConfig.Model, "Module model: premium4 or premium5.")
	flag.IntVar(&defaultConfig.MaxBlockSize, "max-block", defaultConfig.MaxBlockSize, "Largest block accepted, in bytes.")
	flag.DurationVar(&defaultConfig.ReadTimeout, "read-timeout", defaultConfig.ReadTimeout, "Serial read timeout, 0 blocks.")
	flag.StringVar(&defaultConfig.TraceURL, "trace", defaultConfig.TraceURL, "Trace URL.")
	flag.BoolVar(&defaultConfig.TraceBytes, "trace-bytes", defaultConfig.TraceBytes, "Trace every byte, not only blocks.")
	flag.StringVar(&defaultConfig.StationID, "station", defaultConfig.StationID, "Station ID in traces, defaults to machine ID.")
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// ModuleAddress validates and returns the module address.
func (c *Config) ModuleAddress() (byte, error) {
	if c.Address > 0x7f {
		return 0, fmt.Errorf("address 0x%X exceeds 7 bits", c.Address)
	}
	return byte(c.Address), nil
}

// ParseModel parses the module model.
func (c *Config) ParseModel() (kwp.Model, error) {
	return kwp.ParseModel(c.Model)
}

// Station returns StationID, or the machine ID if not set.
func (c *Config) Station() string {
	if c.StationID != "" {
		return c.StationID
	}
	return MachineID()
}

// OpenTransport opens the serial port or creates an emulator.
func (c *Config) OpenTransport() (kwp.Transport, io.Closer, error) {
	if c.Port == EmuPort {
		m, err := c.NewEmulator()
		if err != nil {
			return nil, nil, err
		}
		return m, nopCloser{}, nil
	}
	cfg := serial.DefaultConfig(c.Port)
	cfg.ReadTimeout = c.ReadTimeout
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	return port, port, nil
}

// NewEmulator creates an emulated module answering at the configured
// address, in manufacturing mode for a Premium 5.
func (c *Config) NewEmulator() (*emu.Module, error) {
	address, err := c.ModuleAddress()
	if err != nil {
		return nil, err
	}
	model, err := c.ParseModel()
	if err != nil {
		return nil, err
	}
	m := emu.New()
	m.Address = address
	if c.Baud != 0 {
		m.Baud = c.Baud
	}
	m.RAM, m.ROM, m.EEPROM = emu.Image(0x100, 0x00), emu.Image(0x1000, 0x80), emu.Image(0x800, 0x40)
	if model == kwp.ModelPremium5 {
		m.MfgMode = true
		m.ROM[0x14], m.ROM[0x15] = byte(m.SafeCode>>8), byte(m.SafeCode)
	}
	return m, nil
}

// NewSession creates a session over the transport. The observer may be nil.
func (c *Config) NewSession(t kwp.Transport, observer kwp.Observer) (*kwp.Session, error) {
	gen, err := kwp.ParseGeneration(c.Generation)
	if err != nil {
		return nil, err
	}
	return kwp.NewSession(t,
		kwp.WithGeneration(gen),
		kwp.WithObserver(observer),
		kwp.WithMaxBlockSize(c.MaxBlockSize)), nil
}

// Connect connects the configured address at baud, or autoconnects if
// baud is 0.
func (c *Config) Connect(ctx context.Context, s *kwp.Session, baud int) error {
	address, err := c.ModuleAddress()
	if err != nil {
		return err
	}
	if baud == 0 {
		return s.Autoconnect(ctx, address)
	}
	return s.Connect(ctx, address, baud)
}

// NewTracer dials the trace sink and creates a recorder publishing to it.
// Both are nil if tracing is disabled.
func (c *Config) NewTracer() (*trace.Recorder, *trace.Publisher, comm.Sink, error) {
	if c.TraceURL == "" {
		return nil, nil, nil, nil
	}
	station := c.Station()
	sink, err := trace.Dial(c.TraceURL, station)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("trace sink %s: %w", c.TraceURL, err)
	}
	rec := trace.NewRecorder(station, trace.DefaultQueueSize)
	rec.Bytes = c.TraceBytes
	return rec, trace.NewPublisher(rec, sink), sink, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
