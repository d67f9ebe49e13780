package kwp

import (
	"context"
	"time"

	"github.com/golang/glog"
)

// Autoconnect settings.
var (
	AutoconnectBauds = []int{10400, 9600}
)

// Autoconnect constants.
const (
	AutoconnectPasses  = 2
	AutoconnectBackoff = 2 * time.Second
)

// Autoconnect tries to connect at each baud rate in AutoconnectBauds, for
// AutoconnectPasses passes, backing off between attempts. Keyword timeouts
// are retried; a fatal error ends the retries and is returned as is.
// If no attempt succeeds an *AttemptsError is returned.
func (s *Session) Autoconnect(ctx context.Context, address byte) error {
	var attempts AttemptsError
	for pass := 0; pass < AutoconnectPasses; pass++ {
		for _, baud := range AutoconnectBauds {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := s.Connect(ctx, address, baud)
			if err == nil {
				return nil
			}
			if IsFatal(err) {
				return err
			}
			attempts.add(baud, err)
			glog.Warningf("attempt %d failed, retry in %v", len(attempts.Attempts), AutoconnectBackoff)
			s.Transport.Delay(AutoconnectBackoff)
		}
	}
	return &attempts
}
