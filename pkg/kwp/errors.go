package kwp

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotReady indicates the session is not ready for block operations.
	ErrNotReady = errors.New("session not ready")
	// ErrKeywordTimeout indicates the module didn't answer the wakeup with the
	// keyword in time. It's the only recoverable protocol error.
	ErrKeywordTimeout = errors.New("keyword timeout")
	// ErrBufferOverflow indicates a block exceeding the maximum block size.
	ErrBufferOverflow = errors.New("rx buf overflow")
	// ErrReceiveTimeout is returned by transports whose Receive gives up
	// waiting for a byte.
	ErrReceiveTimeout = errors.New("receive timeout")
)

// EchoError indicates the byte read back after a transmit is not the byte sent.
type EchoError struct {
	Sent byte
	Echo byte
}

// Error implements error.
func (e *EchoError) Error() string {
	return fmt.Sprintf("echo wrong: sent 0x%02X, got 0x%02X", e.Sent, e.Echo)
}

// ComplementError indicates the peer confirmed a byte with a wrong complement.
type ComplementError struct {
	Sent       byte
	Complement byte
}

// Error implements error.
func (e *ComplementError) Error() string {
	return fmt.Sprintf("complement wrong: sent 0x%02X, expected 0x%02X, got 0x%02X",
		e.Sent, e.Sent^0xff, e.Complement)
}

// CounterError indicates a received block breaks the counter sequence.
type CounterError struct {
	Expected byte
	Actual   byte
}

// Error implements error.
func (e *CounterError) Error() string {
	return fmt.Sprintf("block counter wrong: expected 0x%02X, got 0x%02X", e.Expected, e.Actual)
}

// TitleError indicates a received block has an unexpected title.
type TitleError struct {
	Expected Title
	Actual   Title
}

// Error implements error.
func (e *TitleError) Error() string {
	return fmt.Sprintf("rx block title wrong: expected %s, got %s", e.Expected, e.Actual)
}

// LengthError indicates a block length byte too small to hold a block.
type LengthError struct {
	Length byte
}

// Error implements error.
func (e *LengthError) Error() string {
	return fmt.Sprintf("block length %d too short", e.Length)
}

// BlockSizeError rejects a block too large to send. Nothing is transmitted.
type BlockSizeError struct {
	Size int
	Max  int
}

// Error implements error.
func (e *BlockSizeError) Error() string {
	return fmt.Sprintf("tx block of %d bytes exceeds %d", e.Size, e.Max)
}

// PayloadSizeError indicates a reply carrying a different amount of data
// than requested.
type PayloadSizeError struct {
	Expected int
	Actual   int
}

// Error implements error.
func (e *PayloadSizeError) Error() string {
	return fmt.Sprintf("rx payload size wrong: expected %d, got %d", e.Expected, e.Actual)
}

// IsFatal determines if the error terminates the session.
// Everything except a keyword timeout, ErrNotReady and a rejected oversized
// block is fatal, including transport failures.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var sizeErr *BlockSizeError
	if errors.As(err, &sizeErr) {
		return false
	}
	return !errors.Is(err, ErrKeywordTimeout) && !errors.Is(err, ErrNotReady)
}

// Attempt records one failed connect attempt.
type Attempt struct {
	Baud int
	Err  error
}

// AttemptsError aggregates failed connect attempts.
type AttemptsError struct {
	Attempts []Attempt
}

// Error implements error.
func (e *AttemptsError) Error() string {
	msg := make([]string, len(e.Attempts)+1)
	msg[0] = fmt.Sprintf("all %d connect attempts failed:", len(e.Attempts))
	for n, a := range e.Attempts {
		msg[n+1] = fmt.Sprintf("%d baud: %v", a.Baud, a.Err)
	}
	return strings.Join(msg, "\n")
}

// Unwrap lets errors.Is see a keyword timeout behind the attempts.
func (e *AttemptsError) Unwrap() error {
	return ErrKeywordTimeout
}

func (e *AttemptsError) add(baud int, err error) {
	e.Attempts = append(e.Attempts, Attempt{Baud: baud, Err: err})
}
