package trace

import (
	"context"
	"io"

	"github.com/golang/glog"

	fx "github.com/robotalks/kwp.go/pkg/framework"
	"github.com/robotalks/kwp.go/pkg/trace/comm"
)

// Monitor decodes trace events from a source until it closes.
type Monitor struct {
	Source  comm.Source
	Handler func(*Event)
	name    string
}

// NewMonitor creates a monitor.
func NewMonitor(name string, source comm.Source, handler func(*Event)) *Monitor {
	return &Monitor{Source: source, Handler: handler, name: name}
}

// Name implements Named.
func (m *Monitor) Name() string {
	return m.name
}

// Run implements Runnable. Undecodable packets are logged and skipped.
// The source is closed when Run returns.
func (m *Monitor) Run(ctx context.Context) error {
	return fx.RunWithContextCloser(ctx, m.Source, func() error {
		for {
			pkt, err := m.Source.ReadPacket()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			e, err := Decode(pkt)
			if err != nil {
				glog.Warningf("%s: bad trace packet: %v", m.name, err)
				continue
			}
			m.Handler(e)
		}
	})
}
