package kwp

import "time"

// LineDriver gives direct control over the K-line level, bypassing UART framing.
type LineDriver interface {
	// AcquireLine takes exclusive control of the transmit direction.
	AcquireLine() error
	// DriveLine holds the line at the level for the duration.
	DriveLine(high bool, hold time.Duration) error
	// ReleaseLine restores normal receive/transmit operation.
	ReleaseLine() error
}

// Transport is the byte transport over the K-line.
// All operations except Available block until complete.
type Transport interface {
	// Configure sets the baud rate.
	Configure(baud int) error
	// Send transmits one byte.
	Send(byte) error
	// Receive waits for one byte.
	Receive() (byte, error)
	// Available reports whether a byte can be received without blocking.
	Available() (bool, error)
	// Delay waits unconditionally.
	Delay(time.Duration)

	LineDriver
}

// PollWaiter is implemented by transports whose Available waits for a byte
// before reporting an idle line.
type PollWaiter interface {
	PollWait() time.Duration
}

// Direction of a byte or block on the line, seen from the tester.
type Direction int

// Directions.
const (
	DirSent Direction = iota
	DirReceived
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	if d == DirSent {
		return "TX"
	}
	return "RX"
}

// Observer is notified of traffic and state changes of a session.
// Calls are made synchronously from the protocol flow and must not block.
type Observer interface {
	ObserveByte(Direction, byte)
	ObserveBlock(Direction, *Block)
	ObserveState(State)
}

type nopObserver struct{}

func (nopObserver) ObserveByte(Direction, byte)    {}
func (nopObserver) ObserveBlock(Direction, *Block) {}
func (nopObserver) ObserveState(State)             {}
