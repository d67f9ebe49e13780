// Package comm carries encoded trace events between a tester and monitors.
package comm

import "io"

// PacketReader reads packets in bytes.
type PacketReader interface {
	ReadPacket() ([]byte, error)
}

// PacketWriter writes packets in bytes.
type PacketWriter interface {
	WritePacket([]byte) error
}

// PacketReadWriter reads/writes packets in bytes.
type PacketReadWriter interface {
	PacketReader
	PacketWriter
}

// Sink is a PacketWriter owning its connection.
type Sink interface {
	PacketWriter
	io.Closer
}

// Source is a PacketReader owning its connection.
type Source interface {
	PacketReader
	io.Closer
}

// Close closes v if it's an io.Closer.
func Close(v interface{}) error {
	if closer, ok := v.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
