package kwp

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang/glog"
)

// MemoryKind selects the memory space of a memory read.
type MemoryKind int

// Memory kinds.
const (
	MemoryRAM MemoryKind = iota
	MemoryROMEEPROM
	MemoryEEPROM
)

// MemoryChunkSize is the largest read in a single request.
const MemoryChunkSize = 32

// Titles returns the request and response titles.
// EEPROM reads are answered with the ROM/EEPROM response title.
func (k MemoryKind) Titles() (request, response Title) {
	switch k {
	case MemoryROMEEPROM:
		return TitleReadROMEEPROM, TitleROMEEPROMReply
	case MemoryEEPROM:
		return TitleReadEEPROM, TitleROMEEPROMReply
	default:
		return TitleReadRAM, TitleRAMReply
	}
}

// String implements fmt.Stringer.
func (k MemoryKind) String() string {
	switch k {
	case MemoryRAM:
		return "ram"
	case MemoryROMEEPROM:
		return "rom"
	case MemoryEEPROM:
		return "eeprom"
	}
	return fmt.Sprintf("MemoryKind(%d)", int(k))
}

// ParseMemoryKind parses ram, rom or eeprom.
func ParseMemoryKind(name string) (MemoryKind, error) {
	switch strings.ToLower(name) {
	case "ram":
		return MemoryRAM, nil
	case "rom", "rom_eeprom", "rom/eeprom":
		return MemoryROMEEPROM, nil
	case "eeprom":
		return MemoryEEPROM, nil
	}
	return 0, fmt.Errorf("unknown memory kind %q", name)
}

// Model selects module specific encodings.
type Model int

// Models.
const (
	ModelPremium4 Model = iota
	// ModelPremium5 is a Premium 5 in manufacturing mode (address 0x7C).
	ModelPremium5
)

// String implements fmt.Stringer.
func (m Model) String() string {
	switch m {
	case ModelPremium4:
		return "premium4"
	case ModelPremium5:
		return "premium5"
	}
	return fmt.Sprintf("Model(%d)", int(m))
}

// ParseModel parses premium4 or premium5.
func ParseModel(name string) (Model, error) {
	switch strings.ToLower(name) {
	case "premium4", "p4", "4":
		return ModelPremium4, nil
	case "premium5", "p5", "5":
		return ModelPremium5, nil
	}
	return 0, fmt.Errorf("unknown model %q", name)
}

// Fixed requests of the module specific operations.
const (
	safeCodeRead       byte   = 0x00
	safeCodeAddress    uint16 = 0x0014
	checksumConstant   byte   = 0x31
	checksumSubtitle   byte   = 0x32
	checksumValueIndex        = 2
)

// SendBlock sends a block on a ready session.
func (s *Session) SendBlock(b *Block) error {
	if err := s.requireReady(); err != nil {
		return err
	}
	if err := s.framer.SendBlock(b); err != nil {
		if !IsFatal(err) {
			return err
		}
		return s.fail(err)
	}
	return nil
}

// ReceiveBlock receives a block on a ready session.
func (s *Session) ReceiveBlock() (*Block, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}
	b, err := s.framer.ReceiveBlock()
	if err != nil {
		return nil, s.fail(err)
	}
	return b, nil
}

// Exchange sends a request and receives the response with the expected title.
func (s *Session) Exchange(req *Block, expect Title) (*Block, error) {
	if err := s.SendBlock(req); err != nil {
		return nil, err
	}
	b, err := s.framer.ReceiveBlockExpect(expect)
	if err != nil {
		return nil, s.fail(err)
	}
	return b, nil
}

// Request sends a request and receives whatever block the module answers.
func (s *Session) Request(req *Block) (*Block, error) {
	if err := s.SendBlock(req); err != nil {
		return nil, err
	}
	return s.ReceiveBlock()
}

// KeepAlive exchanges ACK blocks.
func (s *Session) KeepAlive() error {
	_, err := s.Exchange(NewBlock(TitleACK), TitleACK)
	return err
}

// Login sends the login block and returns the module's answer.
func (s *Session) Login(safeCode uint16, fern byte, workshop uint16) (*Block, error) {
	glog.V(1).Info("SENDING LOGIN")
	return s.Request(NewBlock(TitleLogin,
		byte(safeCode>>8), byte(safeCode),
		fern,
		byte(workshop>>8), byte(workshop)))
}

// GroupReading requests a measuring group and returns the module's answer.
func (s *Session) GroupReading(group byte) (*Block, error) {
	glog.V(1).Infof("SENDING GROUP READ %d", group)
	return s.Request(NewBlock(TitleGroupReading, group))
}

func readMemoryBlock(title Title, address uint16, length byte) *Block {
	return NewBlock(title, length, byte(address>>8), byte(address))
}

// ReadMemory reads size bytes from start in chunks of MemoryChunkSize.
// Every chunk is followed by an ACK exchange.
func (s *Session) ReadMemory(ctx context.Context, kind MemoryKind, start, size uint16) ([]byte, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}
	reqTitle, respTitle := kind.Titles()
	data := make([]byte, 0, size)
	address, remaining := start, size
	for remaining != 0 {
		if err := ctx.Err(); err != nil {
			return data, err
		}
		chunk := uint16(MemoryChunkSize)
		if remaining < chunk {
			chunk = remaining
		}
		b, err := s.Exchange(readMemoryBlock(reqTitle, address, byte(chunk)), respTitle)
		if err != nil {
			return data, err
		}
		if len(b.Data) != int(chunk) {
			return data, s.fail(&PayloadSizeError{Expected: int(chunk), Actual: len(b.Data)})
		}
		glog.V(1).Infof("MEM %s: %04X: % X", kind, address, b.Data)
		data = append(data, b.Data...)
		address += chunk
		remaining -= chunk
		if err = s.KeepAlive(); err != nil {
			return data, err
		}
	}
	return data, nil
}

// ReadSafeCode reads the radio safe code. Premium 4 returns it in BCD,
// Premium 5 in binary.
func (s *Session) ReadSafeCode(model Model) (uint16, error) {
	var b *Block
	var err error
	switch model {
	case ModelPremium4:
		b, err = s.Exchange(NewBlock(TitleSafeCode, safeCodeRead), TitleSafeCode)
	case ModelPremium5:
		b, err = s.Exchange(readMemoryBlock(TitleReadROMEEPROM, safeCodeAddress, 2), TitleROMEEPROMReply)
	default:
		return 0, fmt.Errorf("safe code: unsupported model %s", model)
	}
	if err != nil {
		return 0, err
	}
	return b.Word(0)
}

// CalcChecksum asks the module to calculate its ROM checksum.
func (s *Session) CalcChecksum() (uint16, error) {
	b, err := s.Exchange(NewBlock(TitleCustom, checksumConstant, checksumSubtitle), TitleCustom)
	if err != nil {
		return 0, err
	}
	return b.Word(checksumValueIndex)
}

// DecodeBCD converts a 4-digit BCD value to decimal.
func DecodeBCD(v uint16) (int, error) {
	n := 0
	for shift := 12; shift >= 0; shift -= 4 {
		digit := int(v>>uint(shift)) & 0xf
		if digit > 9 {
			return 0, fmt.Errorf("0x%04X is not BCD", v)
		}
		n = n*10 + digit
	}
	return n, nil
}
