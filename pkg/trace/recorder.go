package trace

import (
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/robotalks/kwp.go/pkg/kwp"
)

// DefaultQueueSize is the default number of events queued for publishing.
const DefaultQueueSize = 1024

// Recorder implements kwp.Observer. Events are queued for a Publisher and
// dropped when the queue is full; the protocol never waits on tracing.
type Recorder struct {
	Station string
	// Bytes enables per-byte events, blocks and states are always recorded.
	Bytes bool
	Now   func() time.Time

	events    chan *Event
	dropped   uint64
	sessionID string
}

// NewRecorder creates a Recorder for a station.
func NewRecorder(station string, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Recorder{
		Station: station,
		Now:     time.Now,
		events:  make(chan *Event, queueSize),
	}
}

// Events is drained by a Publisher.
func (r *Recorder) Events() <-chan *Event {
	return r.events
}

// Dropped returns the number of events dropped on a full queue.
func (r *Recorder) Dropped() uint64 {
	return atomic.LoadUint64(&r.dropped)
}

// SessionID returns the id of the current connect attempt.
func (r *Recorder) SessionID() string {
	return r.sessionID
}

// ObserveByte implements kwp.Observer.
func (r *Recorder) ObserveByte(dir kwp.Direction, b byte) {
	if r.Bytes {
		r.post(&Event{Kind: KindByte, Direction: dir.String(), Data: []byte{b}})
	}
}

// ObserveBlock implements kwp.Observer.
func (r *Recorder) ObserveBlock(dir kwp.Direction, b *kwp.Block) {
	r.post(&Event{
		Kind:      KindBlock,
		Direction: dir.String(),
		Data:      b.Bytes(),
		Title:     uint32(b.Title),
		Counter:   uint32(b.Counter),
	})
}

// ObserveState implements kwp.Observer.
// Every wakeup starts a new session id.
func (r *Recorder) ObserveState(s kwp.State) {
	if s == kwp.StateAddressing || r.sessionID == "" {
		r.sessionID = uuid.New().String()
	}
	r.post(&Event{Kind: KindState, State: s.String()})
}

func (r *Recorder) post(e *Event) {
	e.SessionID, e.Station = r.sessionID, r.Station
	e.TimestampUs = r.Now().UnixNano() / int64(time.Microsecond)
	select {
	case r.events <- e:
	default:
		if n := atomic.AddUint64(&r.dropped, 1); n == 1 || n%100 == 0 {
			glog.Warningf("trace queue full, %d events dropped", n)
		}
	}
}
