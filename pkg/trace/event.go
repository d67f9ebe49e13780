// Package trace records K-line session activity as protobuf events and
// publishes them to monitors.
package trace

import (
	"fmt"
	"time"

	"github.com/golang/protobuf/proto"

	"github.com/robotalks/kwp.go/pkg/kwp"
)

// Kind is the kind of an Event.
type Kind int32

// Kinds.
const (
	KindByte  Kind = 0
	KindBlock Kind = 1
	KindState Kind = 2
)

var kindNames = map[Kind]string{
	KindByte:  "BYTE",
	KindBlock: "BLOCK",
	KindState: "STATE",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int32(k))
}

// Event is one observation of a session, see proto/kwp/trace/trace.proto.
type Event struct {
	SessionID   string `protobuf:"bytes,1,opt,name=session_id,json=sessionId,proto3" json:"session_id,omitempty"`
	Station     string `protobuf:"bytes,2,opt,name=station,proto3" json:"station,omitempty"`
	TimestampUs int64  `protobuf:"varint,3,opt,name=timestamp_us,json=timestampUs,proto3" json:"timestamp_us,omitempty"`
	Kind        Kind   `protobuf:"varint,4,opt,name=kind,proto3" json:"kind,omitempty"`
	Direction   string `protobuf:"bytes,5,opt,name=direction,proto3" json:"direction,omitempty"`
	Data        []byte `protobuf:"bytes,6,opt,name=data,proto3" json:"data,omitempty"`
	Title       uint32 `protobuf:"varint,7,opt,name=title,proto3" json:"title,omitempty"`
	Counter     uint32 `protobuf:"varint,8,opt,name=counter,proto3" json:"counter,omitempty"`
	State       string `protobuf:"bytes,9,opt,name=state,proto3" json:"state,omitempty"`
}

// Reset implements proto.Message.
func (e *Event) Reset() { *e = Event{} }

// String implements proto.Message.
func (e *Event) String() string { return proto.CompactTextString(e) }

// ProtoMessage implements proto.Message.
func (*Event) ProtoMessage() {}

// Time returns the event timestamp.
func (e *Event) Time() time.Time {
	return time.Unix(0, e.TimestampUs*int64(time.Microsecond))
}

// Block decodes the block of a BLOCK event.
func (e *Event) Block() (*kwp.Block, error) {
	if e.Kind != KindBlock {
		return nil, fmt.Errorf("%s event has no block", e.Kind)
	}
	return kwp.ParseBlock(e.Data)
}

// Format renders the event in one line for logs.
func (e *Event) Format() string {
	ts := e.Time().Format("15:04:05.000000")
	switch e.Kind {
	case KindByte:
		if len(e.Data) == 1 {
			return fmt.Sprintf("%s %s %s: 0x%02X", ts, e.Station, e.Direction, e.Data[0])
		}
	case KindBlock:
		if b, err := e.Block(); err == nil {
			return fmt.Sprintf("%s %s %s %s", ts, e.Station, e.Direction, b)
		}
	case KindState:
		return fmt.Sprintf("%s %s [%s] %s", ts, e.Station, e.SessionID, e.State)
	}
	return fmt.Sprintf("%s %s %s", ts, e.Station, e.String())
}

// Encode marshals the event.
func (e *Event) Encode() ([]byte, error) {
	return proto.Marshal(e)
}

// Decode unmarshals an event.
func Decode(pkt []byte) (*Event, error) {
	var e Event
	if err := proto.Unmarshal(pkt, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
