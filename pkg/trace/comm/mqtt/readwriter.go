package mqtt

import (
	"context"
	"io"
	"strings"
)

// Trace topics: every station publishes to <station>/trace.
const (
	TraceSuffix = "/trace"
	TraceFilter = "+" + TraceSuffix
)

// TraceTopic returns the topic a station publishes trace events to.
func TraceTopic(station string) string {
	return station + TraceSuffix
}

// StationOf extracts the station from a trace topic.
func StationOf(topic string) string {
	if station := strings.TrimSuffix(topic, TraceSuffix); station != topic {
		return station
	}
	return ""
}

// ReadWriter implements PacketReadWriter.
type ReadWriter struct {
	Queue    *Queue
	SubTopic string
	PubTopic string

	packetCh chan []byte
	doneCh   chan struct{}
}

// NewPacketReadWriter creates the ReadWriter.
func NewPacketReadWriter(q *Queue) *ReadWriter {
	return &ReadWriter{
		Queue:    q,
		packetCh: make(chan []byte, 16),
		doneCh:   make(chan struct{}),
	}
}

// WithTopics specifies the topics.
func (p *ReadWriter) WithTopics(sub, pub string) *ReadWriter {
	p.SubTopic, p.PubTopic = sub, pub
	return p
}

// ForStation publishes the trace of a station.
func (p *ReadWriter) ForStation(station string) *ReadWriter {
	return p.WithTopics("", TraceTopic(station))
}

// ForMonitor receives traces of all stations.
func (p *ReadWriter) ForMonitor() *ReadWriter {
	return p.WithTopics(TraceFilter, "")
}

// ReadPacket implements PacketReader.
func (p *ReadWriter) ReadPacket() ([]byte, error) {
	select {
	case pkt := <-p.packetCh:
		return pkt, nil
	case <-p.doneCh:
		return nil, io.EOF
	}
}

// WritePacket implements PacketWriter.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	token := p.Queue.Pub(p.PubTopic, pkt)
	token.Wait()
	return token.Error()
}

// Close implements io.Closer.
func (p *ReadWriter) Close() error {
	return p.Queue.Close()
}

// Run implements Runnable. Packets on SubTopic are delivered to ReadPacket
// until ctx is done.
func (p *ReadWriter) Run(ctx context.Context) error {
	sub := p.Queue.Sub(p.SubTopic, Handler(p.handleMsg))
	defer close(p.doneCh)
	defer sub.Close()
	<-ctx.Done()
	return ctx.Err()
}

func (p *ReadWriter) handleMsg(_ string, payload []byte) {
	select {
	case p.packetCh <- payload:
	case <-p.doneCh:
	}
}
