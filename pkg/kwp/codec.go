package kwp

import (
	"time"

	"github.com/golang/glog"
)

// InterByteDelay precedes every transmitted byte.
const InterByteDelay = 1 * time.Millisecond

// Codec implements the per-byte echo and complement handshakes.
type Codec struct {
	Transport Transport
	Observer  Observer
}

// NewCodec creates a Codec over the transport.
func NewCodec(t Transport) *Codec {
	return &Codec{Transport: t, Observer: nopObserver{}}
}

// SendEcho transmits a byte and consumes its echo.
func (c *Codec) SendEcho(b byte) error {
	if err := c.transmit(b); err != nil {
		return err
	}
	glog.V(3).Infof("TX: 0x%02X", b)
	c.Observer.ObserveByte(DirSent, b)
	return nil
}

// SendComplement transmits a byte and waits for the peer to confirm it
// with the complement.
func (c *Codec) SendComplement(b byte) error {
	if err := c.SendEcho(b); err != nil {
		return err
	}
	complement, err := c.Transport.Receive()
	if err != nil {
		return err
	}
	if complement != b^0xff {
		return &ComplementError{Sent: b, Complement: complement}
	}
	glog.V(3).Infof("R_: 0x%02X", complement)
	return nil
}

// Receive reads one byte without confirming it.
func (c *Codec) Receive() (byte, error) {
	b, err := c.Transport.Receive()
	if err != nil {
		return 0, err
	}
	glog.V(3).Infof("RX: 0x%02X", b)
	c.Observer.ObserveByte(DirReceived, b)
	return b, nil
}

// ReceiveComplement reads one byte and confirms it with the complement.
func (c *Codec) ReceiveComplement() (byte, error) {
	b, err := c.Receive()
	if err != nil {
		return 0, err
	}
	complement := b ^ 0xff
	if err = c.transmit(complement); err != nil {
		return 0, err
	}
	glog.V(3).Infof("T_: 0x%02X", complement)
	return b, nil
}

// transmit sends a byte after the inter-byte delay and checks the line echo.
func (c *Codec) transmit(b byte) error {
	c.Transport.Delay(InterByteDelay)
	if err := c.Transport.Send(b); err != nil {
		return err
	}
	echo, err := c.Transport.Receive()
	if err != nil {
		return err
	}
	if echo != b {
		return &EchoError{Sent: b, Echo: echo}
	}
	return nil
}
