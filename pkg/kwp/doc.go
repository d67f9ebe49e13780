// Package kwp implements the KWP1281 diagnostic protocol over a K-line.
package kwp

// KWP1281 is spoken between a tester (this package) and a vehicle control
// module over a single half-duplex serial line. Every byte sent is read back
// as an echo, and every byte of a block except the terminator is confirmed
// by the receiver with its bitwise complement.
//
// A session starts with the module address sent at 5 bits/second, followed
// by the keyword 0x55 0x01 0x8A from the module and 0x75 from the tester.
// The module then identifies itself with ASCII blocks, and the two sides
// take turns sending blocks, each carrying a counter shared by both
// directions.
//
// This package uses a fail-fast policy: any echo, complement, counter, title
// or size violation ends the session since the byte handshake cannot be
// resynchronized. Only a keyword timeout is recoverable.
//
// Producer: tester
// Consumer: control module
