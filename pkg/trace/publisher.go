package trace

import (
	"context"
	"fmt"
	"net/url"

	"github.com/golang/glog"

	"github.com/robotalks/kwp.go/pkg/trace/comm"
	"github.com/robotalks/kwp.go/pkg/trace/comm/mqtt"
	"github.com/robotalks/kwp.go/pkg/trace/comm/stream"
	"github.com/robotalks/kwp.go/pkg/trace/comm/websocket"
)

// Publisher drains a Recorder and writes encoded events to a PacketWriter.
type Publisher struct {
	Recorder *Recorder
	Writer   comm.PacketWriter
}

// NewPublisher creates a Publisher.
func NewPublisher(r *Recorder, w comm.PacketWriter) *Publisher {
	return &Publisher{Recorder: r, Writer: w}
}

// Name implements framework.Named.
func (p *Publisher) Name() string {
	return "trace"
}

// Run implements framework.Runnable. Queued events are flushed when ctx is done.
func (p *Publisher) Run(ctx context.Context) error {
	events := p.Recorder.Events()
	for {
		select {
		case e := <-events:
			if err := p.publish(e); err != nil {
				return err
			}
		case <-ctx.Done():
			for {
				select {
				case e := <-events:
					if err := p.publish(e); err != nil {
						return err
					}
				default:
					return ctx.Err()
				}
			}
		}
	}
}

func (p *Publisher) publish(e *Event) error {
	pkt, err := e.Encode()
	if err != nil {
		return err
	}
	if err = p.Writer.WritePacket(pkt); err != nil {
		return fmt.Errorf("publish trace: %w", err)
	}
	glog.V(4).Infof("TRACE %s", e.Format())
	return nil
}

// Dial connects the trace sink named by the URL:
//
//	mqtt://host:port/prefix  publishes to <prefix><station>/trace
//	ws://host:port/path      sends websocket binary messages
//	tcp://host:port          writes length-prefixed packets
func Dial(sinkURL, station string) (comm.Sink, error) {
	u, err := url.Parse(sinkURL)
	if err != nil {
		return nil, fmt.Errorf("invalid trace URL: %w", err)
	}
	switch u.Scheme {
	case "mqtt", "mqtts":
		q, err := mqtt.NewQueueFromURL(sinkURL)
		if err != nil {
			return nil, err
		}
		if err = q.Connect(); err != nil {
			return nil, err
		}
		return mqtt.NewPacketReadWriter(q).ForStation(station), nil
	case "ws", "wss":
		return websocket.Dial(sinkURL)
	case "tcp":
		return stream.Dial(u.Host)
	}
	return nil, fmt.Errorf("unknown trace URL scheme: %q", u.Scheme)
}
