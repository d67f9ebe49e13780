package kwp

import (
	"time"

	"github.com/golang/glog"
)

// DefaultMaxBlockSize is the default receive buffer size in bytes,
// including the length byte and terminator.
const DefaultMaxBlockSize = 64

// MaxWireBlockSize is the largest block the length byte can describe.
const MaxWireBlockSize = 0x100

// BlockSettleDelay follows every received block.
const BlockSettleDelay = 10 * time.Millisecond

// Framer sends and receives blocks using the Codec for every byte.
type Framer struct {
	Codec        *Codec
	Counter      *BlockCounter
	MaxBlockSize int
}

// NewFramer creates a Framer.
func NewFramer(codec *Codec, counter *BlockCounter) *Framer {
	return &Framer{Codec: codec, Counter: counter, MaxBlockSize: DefaultMaxBlockSize}
}

func (f *Framer) maxSize() int {
	if f.MaxBlockSize <= 0 {
		return DefaultMaxBlockSize
	}
	return f.MaxBlockSize
}

// SendBlock assigns the next counter value to the block and sends it.
// Every byte but the terminator is confirmed by a complement.
// A block larger than MaxBlockSize is rejected before anything is sent.
func (f *Framer) SendBlock(b *Block) error {
	limit := f.maxSize()
	if limit > MaxWireBlockSize {
		limit = MaxWireBlockSize
	}
	if size := len(b.Data) + blockOverhead; size > limit {
		return &BlockSizeError{Size: size, Max: limit}
	}
	b.Counter = f.Counter.Next()
	raw := b.Bytes()
	glog.V(2).Infof("BEGIN SEND BLOCK %s", b.Title)
	last := len(raw) - 1
	for _, c := range raw[:last] {
		if err := f.Codec.SendComplement(c); err != nil {
			return err
		}
	}
	if err := f.Codec.SendEcho(raw[last]); err != nil {
		return err
	}
	glog.V(2).Infof("END SEND BLOCK %s", b.Title)
	f.Codec.Observer.ObserveBlock(DirSent, b)
	return nil
}

// ReceiveBlock receives a block, confirming every byte but the terminator.
// The counter is validated as soon as it arrives.
func (f *Framer) ReceiveBlock() (*Block, error) {
	glog.V(2).Info("BEGIN RECEIVE BLOCK")
	maxSize := f.maxSize()
	buf := make([]byte, 0, maxSize)
	for remaining := 1; remaining > 0; {
		var c byte
		var err error
		if len(buf) == 0 || remaining > 1 {
			c, err = f.Codec.ReceiveComplement()
		} else {
			// no complement for the terminator
			c, err = f.Codec.Receive()
		}
		if err != nil {
			return nil, err
		}
		if len(buf) == maxSize {
			return nil, ErrBufferOverflow
		}
		buf = append(buf, c)

		switch len(buf) {
		case 1:
			if c < blockOverhead-1 {
				return nil, &LengthError{Length: c}
			}
			if int(c)+1 > maxSize {
				return nil, ErrBufferOverflow
			}
			remaining = int(c)
		case 2:
			if err = f.Counter.Accept(c); err != nil {
				return nil, err
			}
			remaining--
		default:
			remaining--
		}
	}
	if end := buf[len(buf)-1]; end != BlockEnd {
		glog.Warningf("block end 0x%02X, expected 0x%02X", end, BlockEnd)
	}
	f.Codec.Transport.Delay(BlockSettleDelay)
	b, err := ParseBlock(buf)
	if err != nil {
		return nil, err
	}
	glog.V(2).Infof("END RECEIVE BLOCK %s", b.Title)
	f.Codec.Observer.ObserveBlock(DirReceived, b)
	return b, nil
}

// ReceiveBlockExpect receives a block and requires the title.
func (f *Framer) ReceiveBlockExpect(title Title) (*Block, error) {
	b, err := f.ReceiveBlock()
	if err != nil {
		return nil, err
	}
	if b.Title != title {
		return nil, &TitleError{Expected: title, Actual: b.Title}
	}
	return b, nil
}
