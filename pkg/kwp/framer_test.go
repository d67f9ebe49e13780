package kwp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestFramer(s *scriptTransport) (*Framer, *recordingObserver) {
	o := &recordingObserver{}
	c := NewCodec(s)
	c.Observer = o
	return NewFramer(c, &BlockCounter{}), o
}

func TestFramerSendBlock(t *testing.T) {
	s := newScript(true, complements(0x04, 0x01, 0x29, 0x07)...)
	f, o := newTestFramer(s)
	b := NewBlock(TitleGroupReading, 0x07)
	require.NoError(t, f.SendBlock(b))
	require.Equal(t, byte(1), b.Counter)
	require.Equal(t, []byte{0x04, 0x01, 0x29, 0x07, 0x03}, s.sent)
	require.Empty(t, s.in)
	require.Len(t, o.blocks, 1)
	require.Equal(t, byte(1), f.Counter.Value())
}

func TestFramerSendBlockBadComplement(t *testing.T) {
	s := newScript(true, 0xfc, 0x01)
	f, o := newTestFramer(s)
	err := f.SendBlock(NewBlock(TitleACK))
	require.Equal(t, &ComplementError{Sent: 0x01, Complement: 0x01}, err)
	// stops at the failing byte
	require.Equal(t, []byte{0x03, 0x01}, s.sent)
	require.Empty(t, o.blocks)
}

func TestFramerReceiveBlock(t *testing.T) {
	s := newScript(true, 0x04, 0x05, 0x29, 0x01, 0x03)
	f, o := newTestFramer(s)
	b, err := f.ReceiveBlock()
	require.NoError(t, err)
	require.Equal(t, byte(0x05), b.Counter)
	require.Equal(t, TitleGroupReading, b.Title)
	require.Equal(t, []byte{0x01}, b.Data)
	// every byte but the terminator is complemented
	require.Equal(t, complements(0x04, 0x05, 0x29, 0x01), s.sent)
	require.Equal(t, BlockSettleDelay, s.delays[len(s.delays)-1])
	require.Equal(t, byte(0x05), f.Counter.Value())
	require.Len(t, o.blocks, 1)
}

func TestFramerLoopback(t *testing.T) {
	s := newScript(true)
	f, _ := newTestFramer(s)
	require.NoError(t, f.Counter.Accept(0x10))

	sent := NewBlock(TitleCustom, 0x31, 0x32)
	raw := (&Block{Counter: 0x11, Title: sent.Title, Data: sent.Data}).Bytes()
	s.in = append(complements(raw[:len(raw)-1]...), 0x05, 0x12, 0x1b, 0x31, 0x32, 0x03)

	require.NoError(t, f.SendBlock(sent))
	require.Equal(t, byte(0x11), sent.Counter)
	b, err := f.ReceiveBlock()
	require.NoError(t, err)
	require.Equal(t, sent.Length(), b.Length())
	require.Equal(t, sent.Title, b.Title)
	require.Equal(t, sent.Data, b.Data)
	require.Equal(t, sent.Counter+1, b.Counter)
	require.Empty(t, s.in)
}

func TestFramerCounterDiscontinuity(t *testing.T) {
	s := newScript(true, 0x04, 0x07, 0x29, 0x01, 0x03)
	f, o := newTestFramer(s)
	require.NoError(t, f.Counter.Accept(0x05))
	_, err := f.ReceiveBlock()
	require.Equal(t, &CounterError{Expected: 0x06, Actual: 0x07}, err)
	// rejected before the rest of the block is consumed
	require.Equal(t, []byte{0x29, 0x01, 0x03}, s.in)
	require.Empty(t, o.blocks)
}

func TestFramerReceiveErrors(t *testing.T) {
	testCases := []struct {
		name string
		max  int
		in   []byte
		err  error
	}{
		{"length too short", 0, []byte{0x02, 0x01, 0x03}, &LengthError{Length: 2}},
		{"zero length", 0, []byte{0x00}, &LengthError{Length: 0}},
		{"overflow", 8, []byte{0x08, 0x01, 0xfe, 1, 2, 3, 4, 5, 0x03}, ErrBufferOverflow},
		{"default overflow", 0, []byte{DefaultMaxBlockSize}, ErrBufferOverflow},
		{"truncated", 0, []byte{0x04, 0x01, 0x29}, errScriptEnd},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := newScript(true, tc.in...)
			f, _ := newTestFramer(s)
			f.MaxBlockSize = tc.max
			_, err := f.ReceiveBlock()
			require.Equal(t, tc.err, err)
		})
	}
}

func TestFramerReceiveMaxBlock(t *testing.T) {
	s := newScript(true, 0x07, 0x01, 0xfe, 1, 2, 3, 4, 0x03)
	f, _ := newTestFramer(s)
	f.MaxBlockSize = 8
	b, err := f.ReceiveBlock()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, b.Data)
}

func TestFramerReceiveBadTerminator(t *testing.T) {
	s := newScript(true, 0x03, 0x01, 0x09, 0x00)
	f, _ := newTestFramer(s)
	b, err := f.ReceiveBlock()
	require.NoError(t, err)
	require.Equal(t, TitleACK, b.Title)
}

func TestFramerReceiveBlockExpect(t *testing.T) {
	s := newScript(true, 0x03, 0x01, 0x0a, 0x03)
	f, _ := newTestFramer(s)
	_, err := f.ReceiveBlockExpect(TitleACK)
	require.Equal(t, &TitleError{Expected: TitleACK, Actual: TitleNAK}, err)
	require.EqualError(t, err, "rx block title wrong: expected ACK(0x09), got NAK(0x0A)")
}

func TestFramerDelays(t *testing.T) {
	s := newScript(true, 0x03, 0x01, 0x09, 0x03)
	f, _ := newTestFramer(s)
	_, err := f.ReceiveBlock()
	require.NoError(t, err)
	require.Equal(t, []time.Duration{
		InterByteDelay, InterByteDelay, InterByteDelay, BlockSettleDelay,
	}, s.delays)
}

func TestFramerSendBlockTooLarge(t *testing.T) {
	testCases := []struct {
		name  string
		max   int
		data  int
		limit int
	}{
		{"default", 0, DefaultMaxBlockSize - blockOverhead + 1, DefaultMaxBlockSize},
		{"configured", 16, 13, 16},
		{"length byte", 1024, 253, MaxWireBlockSize},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := newScript(true)
			f, o := newTestFramer(s)
			f.MaxBlockSize = tc.max
			err := f.SendBlock(NewBlock(TitleCustom, make([]byte, tc.data)...))
			require.Equal(t, &BlockSizeError{Size: tc.data + blockOverhead, Max: tc.limit}, err)
			require.False(t, IsFatal(err))
			// nothing on the line, counter untouched
			require.Empty(t, s.sent)
			require.Empty(t, o.blocks)
			require.Equal(t, byte(0), f.Counter.Value())
		})
	}
}

func TestFramerSendBlockLargest(t *testing.T) {
	data := make([]byte, MaxWireBlockSize-blockOverhead)
	raw := (&Block{Counter: 1, Title: TitleCustom, Data: data}).Bytes()
	s := newScript(true, complements(raw[:len(raw)-1]...)...)
	f, _ := newTestFramer(s)
	f.MaxBlockSize = 1024
	require.NoError(t, f.SendBlock(NewBlock(TitleCustom, data...)))
	require.Equal(t, byte(0xff), s.sent[0])
	require.Equal(t, raw, s.sent)
	require.Empty(t, s.in)
}
