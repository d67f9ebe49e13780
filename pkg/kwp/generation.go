package kwp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Keyword is sent by the module after a successful wakeup.
var Keyword = [3]byte{0x55, 0x01, 0x8A}

// KeywordConfirm is sent by the tester to accept the keyword.
const KeywordConfirm byte = 0x75

// keywordMatcher finds Keyword in a byte stream. A mismatching byte resets the
// match to the beginning and is itself discarded.
type keywordMatcher struct {
	pos int
}

func (m *keywordMatcher) feed(b byte) bool {
	if b != Keyword[m.pos] {
		m.pos = 0
		return false
	}
	if m.pos++; m.pos < len(Keyword) {
		return false
	}
	m.pos = 0
	return true
}

// KeywordWaiter waits for the keyword after the wakeup.
type KeywordWaiter interface {
	WaitKeyword(ctx context.Context, c *Codec) error
}

// PolledKeywordWait polls for bytes and gives up with ErrKeywordTimeout
// after Polls idle polls, each Interval long. Time a PollWaiter already
// spent in Available counts toward the interval.
type PolledKeywordWait struct {
	Interval time.Duration
	Polls    int
}

// WaitKeyword implements KeywordWaiter.
func (w PolledKeywordWait) WaitKeyword(ctx context.Context, c *Codec) error {
	var m keywordMatcher
	wait := w.Interval
	if pw, ok := c.Transport.(PollWaiter); ok {
		wait -= pw.PollWait()
	}
	for idle := 0; ; {
		ready, err := c.Transport.Available()
		if err != nil {
			return err
		}
		if ready {
			b, err := c.Receive()
			if err != nil {
				return err
			}
			if m.feed(b) {
				return nil
			}
			continue
		}
		if err = ctx.Err(); err != nil {
			return err
		}
		if wait > 0 {
			c.Transport.Delay(wait)
		}
		if idle++; idle >= w.Polls {
			return ErrKeywordTimeout
		}
	}
}

// BlockingKeywordWait reads bytes until the keyword shows up, without timeout.
// Receive timeouts of the transport are retried. The context is checked
// between reads.
type BlockingKeywordWait struct{}

// WaitKeyword implements KeywordWaiter.
func (BlockingKeywordWait) WaitKeyword(ctx context.Context, c *Codec) error {
	var m keywordMatcher
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, err := c.Receive()
		if errors.Is(err, ErrReceiveTimeout) {
			continue
		}
		if err != nil {
			return err
		}
		if m.feed(b) {
			return nil
		}
	}
}

// Generation selects the variant of the connect sequence.
type Generation struct {
	Name    string
	Keyword KeywordWaiter
	// AcceptEarlyACK lets an ACK replace the first identity block, in which
	// case the module is ready right away (manufacturing/service mode).
	AcceptEarlyACK bool
}

// Generations.
var (
	// GenerationA times out waiting for the keyword and accepts an early ACK.
	GenerationA = Generation{
		Name:           "A",
		Keyword:        PolledKeywordWait{Interval: time.Millisecond, Polls: 3000},
		AcceptEarlyACK: true,
	}
	// GenerationB blocks waiting for the keyword and requires all identity blocks.
	GenerationB = Generation{
		Name:    "B",
		Keyword: BlockingKeywordWait{},
	}
)

// ParseGeneration parses a generation name.
func ParseGeneration(name string) (Generation, error) {
	switch strings.ToUpper(name) {
	case "", GenerationA.Name:
		return GenerationA, nil
	case GenerationB.Name:
		return GenerationB, nil
	}
	return Generation{}, fmt.Errorf("unknown generation %q", name)
}
