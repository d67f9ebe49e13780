package kwp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"
)

// State is the connection state of a Session.
type State int

// States.
const (
	StateDisconnected State = iota
	StateAddressing
	StateAwaitingKeyword
	StateConfirming
	StateExchangingIdentity
	StateReady
)

var stateNames = [...]string{
	StateDisconnected:       "Disconnected",
	StateAddressing:         "Addressing",
	StateAwaitingKeyword:    "AwaitingKeyword",
	StateConfirming:         "Confirming",
	StateExchangingIdentity: "ExchangingIdentity",
	StateReady:              "Ready",
}

// String implements fmt.Stringer.
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Connect sequence constants.
const (
	KeywordSettleDelay = 30 * time.Millisecond
	IdentityBlocks     = 4
	IdentityFieldSize  = 12
)

// Identity is reported by the module while connecting.
type Identity struct {
	PartNumber [IdentityFieldSize]byte
	Component1 [IdentityFieldSize]byte
	Component2 [IdentityFieldSize]byte
}

// Bytes returns all three fields concatenated.
func (id *Identity) Bytes() []byte {
	b := make([]byte, 0, IdentityFieldSize*3)
	b = append(b, id.PartNumber[:]...)
	b = append(b, id.Component1[:]...)
	return append(b, id.Component2[:]...)
}

// Component returns both component fields as one string.
func (id *Identity) Component() string {
	return string(id.Component1[:]) + string(id.Component2[:])
}

// String implements fmt.Stringer.
func (id *Identity) String() string {
	return fmt.Sprintf("part number %q, component %q",
		string(bytes.TrimRight(id.PartNumber[:], "\x00")),
		string(bytes.TrimRight([]byte(id.Component()), "\x00")))
}

// Session is one diagnostic connection with a module.
// A Session is not safe for concurrent use; the K-line carries one
// exchange at a time.
type Session struct {
	Transport  Transport
	Generation Generation

	observer Observer
	codec    *Codec
	framer   *Framer
	counter  BlockCounter
	state    State
	identity Identity
}

// Option configures a Session.
type Option func(*Session)

// WithGeneration selects the protocol generation.
func WithGeneration(g Generation) Option {
	return func(s *Session) {
		s.Generation = g
	}
}

// WithObserver installs an observer for traffic and state changes.
func WithObserver(o Observer) Option {
	return func(s *Session) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithMaxBlockSize sets the receive buffer size.
func WithMaxBlockSize(size int) Option {
	return func(s *Session) {
		s.framer.MaxBlockSize = size
	}
}

// NewSession creates a disconnected Session over the transport.
func NewSession(t Transport, opts ...Option) *Session {
	s := &Session{
		Transport:  t,
		Generation: GenerationA,
		observer:   nopObserver{},
		codec:      NewCodec(t),
	}
	s.framer = NewFramer(s.codec, &s.counter)
	for _, opt := range opts {
		opt(s)
	}
	s.codec.Observer = s.observer
	return s
}

// State gets the current state.
func (s *Session) State() State {
	return s.state
}

// Identity gets the identity reported while connecting.
func (s *Session) Identity() Identity {
	return s.identity
}

// Counter gets the current block counter.
func (s *Session) Counter() byte {
	return s.counter.Value()
}

// Connect wakes up the module at address and runs the connect sequence
// up to Ready. ErrKeywordTimeout is returned if the module doesn't answer;
// any other error is fatal to this attempt.
func (s *Session) Connect(ctx context.Context, address byte, baud int) error {
	s.counter.Reset()
	s.identity = Identity{}
	s.setState(StateAddressing)
	glog.Infof("connecting 0x%02X at %d baud, generation %s", address, baud, s.Generation.Name)
	if err := s.Transport.Configure(baud); err != nil {
		return s.fail(err)
	}
	if err := SignalWakeup(s.Transport, address); err != nil {
		return s.fail(err)
	}

	s.setState(StateAwaitingKeyword)
	if err := s.Generation.Keyword.WaitKeyword(ctx, s.codec); err != nil {
		if errors.Is(err, ErrKeywordTimeout) {
			glog.Warningf("no keyword from 0x%02X at %d baud", address, baud)
			s.setState(StateDisconnected)
			return err
		}
		return s.fail(err)
	}

	s.setState(StateConfirming)
	s.Transport.Delay(KeywordSettleDelay)
	if err := s.codec.SendEcho(KeywordConfirm); err != nil {
		return s.fail(err)
	}

	s.setState(StateExchangingIdentity)
	if err := s.exchangeIdentity(); err != nil {
		return s.fail(err)
	}
	s.setState(StateReady)
	glog.Infof("connected: %s", &s.identity)
	return nil
}

func (s *Session) exchangeIdentity() error {
	fields := [][]byte{s.identity.PartNumber[:], s.identity.Component1[:], s.identity.Component2[:]}
	for i := 0; i < IdentityBlocks; i++ {
		b, err := s.framer.ReceiveBlock()
		if err != nil {
			return err
		}
		if i == 0 && b.Title == TitleACK && s.Generation.AcceptEarlyACK {
			glog.Info("module ready without identity")
			return nil
		}
		if b.Title != TitleASCIIData {
			return &TitleError{Expected: TitleASCIIData, Actual: b.Title}
		}
		if i < len(fields) {
			copy(fields[i], b.Data)
		}
		if err = s.framer.SendBlock(NewBlock(TitleACK)); err != nil {
			return err
		}
	}
	_, err := s.framer.ReceiveBlockExpect(TitleACK)
	return err
}

// Disconnect ends the session. A ready session sends an end-session block first.
func (s *Session) Disconnect() error {
	if s.state != StateReady {
		s.setState(StateDisconnected)
		return nil
	}
	err := s.framer.SendBlock(NewBlock(TitleEndSession))
	s.setState(StateDisconnected)
	glog.Info("disconnected")
	return err
}

func (s *Session) setState(state State) {
	if s.state != state {
		s.state = state
		s.observer.ObserveState(state)
	}
}

// fail ends the session on a fatal error.
func (s *Session) fail(err error) error {
	glog.Errorf("KWP ERROR: %v", err)
	s.setState(StateDisconnected)
	return err
}

func (s *Session) requireReady() error {
	if s.state != StateReady {
		return ErrNotReady
	}
	return nil
}
