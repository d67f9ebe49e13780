package kwp

import (
	"time"

	"github.com/golang/glog"
)

// WakeupBitPeriod is the bit time of the 5 bits/second address frame.
const WakeupBitPeriod = 200 * time.Millisecond

// WakeupFrame returns the 10 line levels that carry the address:
// start bit (0), 7 address bits LSB first, odd parity, stop bit (1).
func WakeupFrame(address byte) [10]bool {
	var frame [10]bool
	parity := true
	for i := 0; i < 7; i++ {
		bit := address&(1<<uint(i)) != 0
		frame[i+1] = bit
		parity = parity != bit
	}
	frame[8] = parity
	frame[9] = true
	return frame
}

// SignalWakeup sends the address at 5 bits/second by driving the line directly.
// The line is released even if driving it fails.
func SignalWakeup(l LineDriver, address byte) (err error) {
	glog.Infof("INIT 0x%02X", address)
	if err = l.AcquireLine(); err != nil {
		return err
	}
	defer func() {
		if rerr := l.ReleaseLine(); err == nil {
			err = rerr
		}
	}()
	for _, level := range WakeupFrame(address) {
		if err = l.DriveLine(level, WakeupBitPeriod); err != nil {
			return err
		}
	}
	return nil
}
