package kwp

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// scriptTransport hands out scripted bytes. With echo set, every sent byte
// is put in front of the script so it's read back next.
type scriptTransport struct {
	in     []byte
	sent   []byte
	delays []time.Duration
	echo   bool
	baud   int

	levels   []bool
	holds    []time.Duration
	acquired int
	released int
	lineErr  error
}

func newScript(echo bool, in ...byte) *scriptTransport {
	return &scriptTransport{in: in, echo: echo}
}

func (s *scriptTransport) Configure(baud int) error {
	s.baud = baud
	return nil
}

func (s *scriptTransport) Send(b byte) error {
	s.sent = append(s.sent, b)
	if s.echo {
		s.in = append([]byte{b}, s.in...)
	}
	return nil
}

var errScriptEnd = errors.New("script end")

func (s *scriptTransport) Receive() (byte, error) {
	if len(s.in) == 0 {
		return 0, errScriptEnd
	}
	b := s.in[0]
	s.in = s.in[1:]
	return b, nil
}

func (s *scriptTransport) Available() (bool, error) {
	return len(s.in) > 0, nil
}

func (s *scriptTransport) Delay(d time.Duration) {
	s.delays = append(s.delays, d)
}

func (s *scriptTransport) AcquireLine() error {
	s.acquired++
	return nil
}

func (s *scriptTransport) DriveLine(high bool, hold time.Duration) error {
	if s.lineErr != nil {
		return s.lineErr
	}
	s.levels = append(s.levels, high)
	s.holds = append(s.holds, hold)
	return nil
}

func (s *scriptTransport) ReleaseLine() error {
	s.released++
	return nil
}

// complements returns the complement of each byte.
func complements(bs ...byte) []byte {
	out := make([]byte, len(bs))
	for i, b := range bs {
		out[i] = b ^ 0xff
	}
	return out
}

func TestCodecSendEcho(t *testing.T) {
	s := newScript(true)
	c := NewCodec(s)
	require.NoError(t, c.SendEcho(0x75))
	require.Equal(t, []byte{0x75}, s.sent)
	require.Equal(t, []time.Duration{InterByteDelay}, s.delays)
	require.Empty(t, s.in)

	s = newScript(false, 0x74)
	c = NewCodec(s)
	err := c.SendEcho(0x75)
	require.Equal(t, &EchoError{Sent: 0x75, Echo: 0x74}, err)
	require.EqualError(t, err, "echo wrong: sent 0x75, got 0x74")
}

func TestCodecSendComplement(t *testing.T) {
	testCases := []struct {
		name string
		in   []byte
		err  error
	}{
		{"ok", []byte{0x0f ^ 0xff}, nil},
		{"wrong complement", []byte{0x0f}, &ComplementError{Sent: 0x0f, Complement: 0x0f}},
		{"missing complement", nil, errScriptEnd},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := newScript(true, tc.in...)
			err := NewCodec(s).SendComplement(0x0f)
			require.Equal(t, tc.err, err)
			require.Equal(t, []byte{0x0f}, s.sent)
		})
	}
}

func TestCodecReceive(t *testing.T) {
	s := newScript(true, 0x55)
	b, err := NewCodec(s).Receive()
	require.NoError(t, err)
	require.Equal(t, byte(0x55), b)
	require.Empty(t, s.sent)
}

func TestCodecReceiveComplement(t *testing.T) {
	s := newScript(true, 0x0f)
	b, err := NewCodec(s).ReceiveComplement()
	require.NoError(t, err)
	require.Equal(t, byte(0x0f), b)
	require.Equal(t, []byte{0xf0}, s.sent)
	require.Equal(t, []time.Duration{InterByteDelay}, s.delays)

	s = newScript(false, 0x0f, 0x00)
	_, err = NewCodec(s).ReceiveComplement()
	require.Equal(t, &EchoError{Sent: 0xf0, Echo: 0x00}, err)
}

type recordingObserver struct {
	bytes  []byte
	dirs   []Direction
	blocks []*Block
	states []State
}

func (o *recordingObserver) ObserveByte(d Direction, b byte) {
	o.dirs = append(o.dirs, d)
	o.bytes = append(o.bytes, b)
}

func (o *recordingObserver) ObserveBlock(d Direction, b *Block) {
	o.blocks = append(o.blocks, b)
}

func (o *recordingObserver) ObserveState(s State) {
	o.states = append(o.states, s)
}

func TestCodecObserver(t *testing.T) {
	s := newScript(true, 0x0f, 0x01^0xff)
	o := &recordingObserver{}
	c := NewCodec(s)
	c.Observer = o
	_, err := c.ReceiveComplement()
	require.NoError(t, err)
	require.NoError(t, c.SendComplement(0x01))
	// complements sent back are not data and are not observed
	require.Equal(t, []byte{0x0f, 0x01}, o.bytes)
	require.Equal(t, []Direction{DirReceived, DirSent}, o.dirs)
}
