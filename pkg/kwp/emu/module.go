// Package emu emulates a KWP1281 control module behind a kwp.Transport.
package emu

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/kwp.go/pkg/kwp"
)

// ErrIdle is returned by Receive when the module has nothing to send.
// A real line would block forever instead.
var ErrIdle = errors.New("emu: line idle")

// Defaults of a new Module.
const (
	DefaultAddress byte = 0x56
	DefaultBaud         = 10400
)

// DefaultIdentity is what a Premium 4 radio reports.
var DefaultIdentity = [kwp.IdentityBlocks][]byte{
	[]byte("1J0035180D  "),
	[]byte(" RADIO 3CP  "),
	[]byte("        0001"),
	{0x00, 0x0A, 0xF8, 0x00, 0x00},
}

// Level is one line level driven during a wakeup.
type Level struct {
	High bool
	Hold time.Duration
}

// Handler overrides the reply to a tester block once the module is ready.
// Returning false falls back to the built-in behavior.
type Handler func(req *kwp.Block) (reply *kwp.Block, ok bool)

type phase int

const (
	phaseIdle     phase = iota // not connected
	phaseKeyword               // keyword sent, waiting for 0x75
	phaseTransmit              // sending a block, waiting for complements
	phaseReceive               // receiving a block from the tester
)

// Module is a synchronous module emulator implementing kwp.Transport.
// Bytes the module sends are queued and handed out by Receive; every byte
// the tester sends is processed immediately.
type Module struct {
	Address  byte
	Baud     int
	Identity [kwp.IdentityBlocks][]byte
	// MfgMode answers 0x75 with an ACK instead of identity blocks.
	MfgMode  bool
	SafeCode uint16
	Checksum uint16
	RAM      []byte
	ROM      []byte
	EEPROM   []byte
	// FirstCounter is the counter of the first block the module sends.
	FirstCounter byte
	// KeywordPrefix is line noise sent before the keyword.
	KeywordPrefix []byte
	Handler       Handler

	// Faults, counted from 1; zero disables.
	BadEchoAt       int // echo of the n-th tester byte is wrong
	BadComplementAt int // n-th complement sent by the module is wrong
	SkipCounterAt   int // n-th block sent by the module skips a counter value

	// Recorded activity.
	Levels   []Level
	Wakeups  []byte
	Requests []*kwp.Block
	Replies  []*kwp.Block
	Errors   []error

	baud         int
	lineAcquired bool
	clock        time.Duration
	out          []byte
	phase        phase
	tx           []byte
	txPos        int
	rx           []byte
	counter      byte
	identity     int
	ready        bool
	sentBytes    int
	complements  int
	blocks       int
}

// New creates a Module with defaults.
func New() *Module {
	return &Module{
		Address:      DefaultAddress,
		Baud:         DefaultBaud,
		Identity:     DefaultIdentity,
		SafeCode:     0x1234,
		Checksum:     0xBEEF,
		FirstCounter: 1,
	}
}

// Clock returns the total time spent in delays and line holds.
func (m *Module) Clock() time.Duration {
	return m.clock
}

// Ready indicates the connect sequence completed on the module side.
func (m *Module) Ready() bool {
	return m.ready
}

// Configure implements kwp.Transport.
func (m *Module) Configure(baud int) error {
	m.baud = baud
	m.out = nil
	return nil
}

// AcquireLine implements kwp.LineDriver.
func (m *Module) AcquireLine() error {
	if m.lineAcquired {
		return errors.New("emu: line already acquired")
	}
	m.lineAcquired, m.Levels = true, nil
	return nil
}

// DriveLine implements kwp.LineDriver.
func (m *Module) DriveLine(high bool, hold time.Duration) error {
	if !m.lineAcquired {
		return errors.New("emu: line not acquired")
	}
	m.Levels = append(m.Levels, Level{High: high, Hold: hold})
	m.clock += hold
	return nil
}

// ReleaseLine implements kwp.LineDriver.
func (m *Module) ReleaseLine() error {
	if !m.lineAcquired {
		return errors.New("emu: line not acquired")
	}
	m.lineAcquired = false
	address, ok := decodeWakeup(m.Levels)
	if !ok {
		m.fault(fmt.Errorf("bad wakeup frame %v", m.Levels))
		return nil
	}
	m.Wakeups = append(m.Wakeups, address)
	if address != m.Address || m.baud != m.Baud {
		glog.V(2).Infof("emu: ignore wakeup 0x%02X at %d baud", address, m.baud)
		return nil
	}
	m.phase, m.ready, m.identity = phaseKeyword, false, 0
	m.counter = m.FirstCounter - 1
	m.out = append(append(m.out, m.KeywordPrefix...), kwp.Keyword[:]...)
	return nil
}

// decodeWakeup decodes start bit, 7 data bits, odd parity and stop bit.
func decodeWakeup(levels []Level) (byte, bool) {
	if len(levels) != 10 || levels[0].High || !levels[9].High {
		return 0, false
	}
	var address byte
	ones := 0
	for i := 0; i < 8; i++ {
		if levels[i+1].High {
			ones++
			if i < 7 {
				address |= 1 << uint(i)
			}
		}
	}
	return address, ones%2 == 1
}

// Send implements kwp.Transport.
func (m *Module) Send(b byte) error {
	if m.lineAcquired {
		return errors.New("emu: send while line acquired")
	}
	m.sentBytes++
	echo := b
	if m.sentBytes == m.BadEchoAt {
		echo ^= 0x01
	}
	m.out = append(m.out, echo)

	switch m.phase {
	case phaseKeyword:
		if b == kwp.KeywordConfirm {
			m.startConnect()
		}
	case phaseTransmit:
		if expected := m.tx[m.txPos] ^ 0xff; b != expected {
			m.fault(fmt.Errorf("complement 0x%02X for 0x%02X", b, m.tx[m.txPos]))
			return nil
		}
		m.txPos++
		m.out = append(m.out, m.tx[m.txPos])
		if m.txPos == len(m.tx)-1 {
			m.phase, m.rx = phaseReceive, nil
		}
	case phaseReceive:
		m.rx = append(m.rx, b)
		if len(m.rx) < int(m.rx[0])+1 {
			m.complements++
			complement := b ^ 0xff
			if m.complements == m.BadComplementAt {
				complement ^= 0x01
			}
			m.out = append(m.out, complement)
			return nil
		}
		m.receiveBlock()
	}
	return nil
}

// Receive implements kwp.Transport.
func (m *Module) Receive() (byte, error) {
	if len(m.out) == 0 {
		return 0, ErrIdle
	}
	b := m.out[0]
	m.out = m.out[1:]
	return b, nil
}

// Available implements kwp.Transport.
func (m *Module) Available() (bool, error) {
	return len(m.out) > 0, nil
}

// Delay implements kwp.Transport.
func (m *Module) Delay(d time.Duration) {
	m.clock += d
}

func (m *Module) fault(err error) {
	glog.Warningf("emu: %v", err)
	m.Errors = append(m.Errors, err)
	m.phase = phaseIdle
}

func (m *Module) startConnect() {
	if m.MfgMode {
		m.ready = true
		m.transmit(kwp.NewBlock(kwp.TitleACK))
		return
	}
	m.transmit(kwp.NewBlock(kwp.TitleASCIIData, m.Identity[0]...))
}

func (m *Module) transmit(b *kwp.Block) {
	m.blocks++
	m.counter++
	if m.blocks == m.SkipCounterAt {
		m.counter++
	}
	b.Counter = m.counter
	m.Replies = append(m.Replies, b)
	m.tx, m.txPos = b.Bytes(), 0
	m.out = append(m.out, m.tx[0])
	m.phase = phaseTransmit
}

func (m *Module) receiveBlock() {
	req, err := kwp.ParseBlock(m.rx)
	if err != nil {
		m.fault(err)
		return
	}
	if expected := m.counter + 1; req.Counter != expected {
		m.fault(&kwp.CounterError{Expected: expected, Actual: req.Counter})
		return
	}
	m.counter = req.Counter
	m.Requests = append(m.Requests, req)
	if reply := m.reply(req); reply != nil {
		m.transmit(reply)
		return
	}
	m.phase = phaseIdle
}

func (m *Module) reply(req *kwp.Block) *kwp.Block {
	if !m.ready {
		if req.Title != kwp.TitleACK {
			m.fault(fmt.Errorf("expected ACK during identity, got %s", req.Title))
			return nil
		}
		if m.identity++; m.identity < len(m.Identity) {
			return kwp.NewBlock(kwp.TitleASCIIData, m.Identity[m.identity]...)
		}
		m.ready = true
		return kwp.NewBlock(kwp.TitleACK)
	}

	if h := m.Handler; h != nil {
		if reply, ok := h(req); ok {
			return reply
		}
	}
	switch req.Title {
	case kwp.TitleACK, kwp.TitleLogin:
		return kwp.NewBlock(kwp.TitleACK)
	case kwp.TitleEndSession:
		m.ready = false
		return nil
	case kwp.TitleGroupReading:
		if len(req.Data) == 1 {
			// one cell: formula 0x25, values 0x00 and the group number
			return kwp.NewBlock(kwp.TitleGroupReadingReply, 0x25, 0x00, req.Data[0])
		}
	case kwp.TitleReadRAM:
		if data, ok := readImage(m.RAM, req); ok {
			return kwp.NewBlock(kwp.TitleRAMReply, data...)
		}
	case kwp.TitleReadROMEEPROM:
		if data, ok := readImage(m.ROM, req); ok {
			return kwp.NewBlock(kwp.TitleROMEEPROMReply, data...)
		}
	case kwp.TitleReadEEPROM:
		if data, ok := readImage(m.EEPROM, req); ok {
			return kwp.NewBlock(kwp.TitleROMEEPROMReply, data...)
		}
	case kwp.TitleSafeCode:
		if len(req.Data) == 1 && req.Data[0] == 0 {
			return kwp.NewBlock(kwp.TitleSafeCode, byte(m.SafeCode>>8), byte(m.SafeCode))
		}
	case kwp.TitleCustom:
		if len(req.Data) == 2 && req.Data[0] == 0x31 && req.Data[1] == 0x32 {
			return kwp.NewBlock(kwp.TitleCustom, 0x31, 0x32, byte(m.Checksum>>8), byte(m.Checksum))
		}
	}
	return kwp.NewBlock(kwp.TitleNAK)
}

// readImage serves [length, addrHigh, addrLow] from an image.
// Bytes outside the image read as 0xFF.
func readImage(image []byte, req *kwp.Block) ([]byte, bool) {
	if len(req.Data) != 3 {
		return nil, false
	}
	length, address := int(req.Data[0]), int(req.Data[1])<<8|int(req.Data[2])
	data := make([]byte, length)
	for i := range data {
		if n := address + i; n < len(image) {
			data[i] = image[n]
		} else {
			data[i] = 0xff
		}
	}
	return data, true
}

// Image creates a memory image of size bytes with a recognizable pattern.
func Image(size int, seed byte) []byte {
	image := make([]byte, size)
	for n := range image {
		image[n] = seed + byte(n)
	}
	return image
}
