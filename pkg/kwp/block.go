package kwp

import "fmt"

// Title identifies the semantic type of a block.
type Title byte

// Block titles.
const (
	TitleReadIdentity      Title = 0x00
	TitleReadRAM           Title = 0x01
	TitleReadROMEEPROM     Title = 0x03
	TitleClearFaults       Title = 0x05
	TitleEndSession        Title = 0x06
	TitleReadFaults        Title = 0x07
	TitleACK               Title = 0x09
	TitleNAK               Title = 0x0A
	TitleReadEEPROM        Title = 0x19
	TitleCustom            Title = 0x1B
	TitleGroupReading      Title = 0x29
	TitleLogin             Title = 0x2B
	TitleGroupReadingReply Title = 0xE7
	TitleSafeCode          Title = 0xF0
	TitleASCIIData         Title = 0xF6
	TitleFaultsReply       Title = 0xFC
	TitleROMEEPROMReply    Title = 0xFD
	TitleRAMReply          Title = 0xFE
)

var titleNames = map[Title]string{
	TitleReadIdentity:      "READ_IDENTITY",
	TitleReadRAM:           "READ_RAM",
	TitleReadROMEEPROM:     "READ_ROM_EEPROM",
	TitleClearFaults:       "CLEAR_FAULTS",
	TitleEndSession:        "END_SESSION",
	TitleReadFaults:        "READ_FAULTS",
	TitleACK:               "ACK",
	TitleNAK:               "NAK",
	TitleReadEEPROM:        "READ_EEPROM",
	TitleCustom:            "CUSTOM",
	TitleGroupReading:      "GROUP_READING",
	TitleLogin:             "LOGIN",
	TitleGroupReadingReply: "R_GROUP_READING",
	TitleSafeCode:          "SAFE_CODE",
	TitleASCIIData:         "R_ASCII_DATA",
	TitleFaultsReply:       "R_FAULTS",
	TitleROMEEPROMReply:    "R_READ_ROM_EEPROM",
	TitleRAMReply:          "R_READ_RAM",
}

// String implements fmt.Stringer.
func (t Title) String() string {
	if name, ok := titleNames[t]; ok {
		return fmt.Sprintf("%s(0x%02X)", name, byte(t))
	}
	return fmt.Sprintf("0x%02X", byte(t))
}

// BlockEnd terminates every block.
const BlockEnd byte = 0x03

// blockOverhead is the number of bytes in a block besides the payload:
// length, counter, title and terminator.
const blockOverhead = 4

// Block is the atomic message unit:
// [length] [counter] [title] [data...] [0x03]
// where length counts bytes from counter through the terminator.
type Block struct {
	Counter byte
	Title   Title
	Data    []byte
}

// NewBlock creates a block with a title and payload.
// Counter is assigned when the block is sent.
func NewBlock(title Title, data ...byte) *Block {
	return &Block{Title: title, Data: data}
}

// Length returns the value of the length field.
func (b *Block) Length() byte {
	return byte(len(b.Data) + blockOverhead - 1)
}

// Bytes returns encoded bytes for sending.
func (b *Block) Bytes() []byte {
	buf := make([]byte, len(b.Data)+blockOverhead)
	buf[0], buf[1], buf[2] = b.Length(), b.Counter, byte(b.Title)
	copy(buf[3:], b.Data)
	buf[len(buf)-1] = BlockEnd
	return buf
}

// String implements fmt.Stringer.
func (b *Block) String() string {
	return fmt.Sprintf("[%02X] %s % X", b.Counter, b.Title, b.Data)
}

// ParseBlock decodes a complete block including the length byte and terminator.
func ParseBlock(raw []byte) (*Block, error) {
	if len(raw) < blockOverhead {
		return nil, fmt.Errorf("block of %d bytes too short", len(raw))
	}
	if raw[0] < blockOverhead-1 {
		return nil, &LengthError{Length: raw[0]}
	}
	if int(raw[0])+1 != len(raw) {
		return nil, fmt.Errorf("block length %d mismatch with %d bytes", raw[0], len(raw))
	}
	b := &Block{Counter: raw[1], Title: Title(raw[2])}
	if n := len(raw) - blockOverhead; n > 0 {
		b.Data = make([]byte, n)
		copy(b.Data, raw[3:])
	}
	return b, nil
}

// Word returns the big-endian 16-bit value at offset of the payload.
func (b *Block) Word(offset int) (uint16, error) {
	if offset < 0 || offset+2 > len(b.Data) {
		return 0, fmt.Errorf("%s: no 16-bit value at offset %d of %d bytes", b.Title, offset, len(b.Data))
	}
	return uint16(b.Data[offset])<<8 | uint16(b.Data[offset+1]), nil
}

// BlockCounter tracks the block counter shared by both directions.
type BlockCounter struct {
	value  byte
	seeded bool
}

// Reset forgets the baseline; the next received counter is taken as-is.
func (c *BlockCounter) Reset() {
	c.value, c.seeded = 0, false
}

// Value gets the current counter value.
func (c *BlockCounter) Value() byte {
	return c.value
}

// Next advances the counter for a block to be sent.
func (c *BlockCounter) Next() byte {
	c.value++
	return c.value
}

// Accept validates the counter of a received block.
// The first block of a session sets the baseline.
func (c *BlockCounter) Accept(counter byte) error {
	if !c.seeded {
		c.value, c.seeded = counter, true
		return nil
	}
	if expected := c.value + 1; counter != expected {
		return &CounterError{Expected: expected, Actual: counter}
	}
	c.value = counter
	return nil
}
