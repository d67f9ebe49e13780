package diag

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/kwp.go/pkg/cli/sh"
	"github.com/robotalks/kwp.go/pkg/kwp"
)

func parseUint(c *ishell.Context, index int, name string, bits int) (uint64, bool) {
	if len(c.Args) <= index {
		c.Err(fmt.Errorf("%s required", name))
		return 0, false
	}
	val, err := strconv.ParseUint(c.Args[index], 0, bits)
	if err != nil {
		c.Err(fmt.Errorf("Invalid %s: %v", name, err))
		return 0, false
	}
	return val, true
}

func printBlock(c *ishell.Context, b *kwp.Block) {
	sh.Output(c, map[string]interface{}{
		"counter": b.Counter,
		"title":   b.Title.String(),
		"data":    hex.EncodeToString(b.Data),
	}, b.String())
}

var (
	// KeepAliveCmd exchanges ACK blocks.
	KeepAliveCmd = ishell.Cmd{
		Name:    "keepalive",
		Aliases: []string{"ka"},
		Help:    "",
		Func: sh.MustBeReady(func(c *ishell.Context, s *kwp.Session) {
			if err := s.KeepAlive(); err != nil {
				c.Err(err)
			}
		}),
	}

	// LoginCmd sends a login block.
	LoginCmd = ishell.Cmd{
		Name: "login",
		Help: "CODE [FERN] [WORKSHOP]",
		Func: sh.MustBeReady(func(c *ishell.Context, s *kwp.Session) {
			code, ok := parseUint(c, 0, "CODE", 16)
			if !ok {
				return
			}
			fern, workshop := uint64(0x01), uint64(0x0869)
			if len(c.Args) > 1 {
				if fern, ok = parseUint(c, 1, "FERN", 8); !ok {
					return
				}
			}
			if len(c.Args) > 2 {
				if workshop, ok = parseUint(c, 2, "WORKSHOP", 16); !ok {
					return
				}
			}
			b, err := s.Login(uint16(code), byte(fern), uint16(workshop))
			if err != nil {
				c.Err(err)
				return
			}
			printBlock(c, b)
		}),
	}

	// GroupCmd reads a measuring group.
	GroupCmd = ishell.Cmd{
		Name:    "group",
		Aliases: []string{"g"},
		Help:    "GROUP",
		Func: sh.MustBeReady(func(c *ishell.Context, s *kwp.Session) {
			group, ok := parseUint(c, 0, "GROUP", 8)
			if !ok {
				return
			}
			b, err := s.GroupReading(byte(group))
			if err != nil {
				c.Err(err)
				return
			}
			printBlock(c, b)
		}),
	}

	// SendCmd sends a raw block and prints the answer.
	SendCmd = ishell.Cmd{
		Name: "send",
		Help: "TITLE [DATA...]",
		Func: sh.MustBeReady(func(c *ishell.Context, s *kwp.Session) {
			title, ok := parseUint(c, 0, "TITLE", 8)
			if !ok {
				return
			}
			data := make([]byte, 0, len(c.Args)-1)
			for n := 1; n < len(c.Args); n++ {
				val, ok := parseUint(c, n, "DATA", 8)
				if !ok {
					return
				}
				data = append(data, byte(val))
			}
			b, err := s.Request(kwp.NewBlock(kwp.Title(title), data...))
			if err != nil {
				c.Err(err)
				return
			}
			printBlock(c, b)
		}),
	}

	// ReadCmd reads module memory.
	ReadCmd = ishell.Cmd{
		Name:    "read",
		Aliases: []string{"r"},
		Help:    "ram|rom|eeprom ADDR SIZE",
		Func: sh.MustBeReady(func(c *ishell.Context, s *kwp.Session) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("memory kind required"))
				return
			}
			kind, err := kwp.ParseMemoryKind(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			addr, ok := parseUint(c, 1, "ADDR", 16)
			if !ok {
				return
			}
			size, ok := parseUint(c, 2, "SIZE", 16)
			if !ok {
				return
			}
			data, err := s.ReadMemory(context.Background(), kind, uint16(addr), uint16(size))
			if err != nil {
				c.Err(err)
			}
			if len(data) == 0 {
				return
			}
			sh.Output(c, map[string]interface{}{
				"kind":    kind.String(),
				"address": addr,
				"data":    hex.EncodeToString(data),
			}, hex.Dump(data))
		}),
	}

	// SafeCodeCmd reads the radio safe code.
	SafeCodeCmd = ishell.Cmd{
		Name: "safecode",
		Help: "",
		Func: sh.MustBeReady(func(c *ishell.Context, s *kwp.Session) {
			model, err := sh.ShellFrom(c).Config.ParseModel()
			if err != nil {
				c.Err(err)
				return
			}
			raw, err := s.ReadSafeCode(model)
			if err != nil {
				c.Err(err)
				return
			}
			code := int(raw)
			if model == kwp.ModelPremium4 {
				if code, err = kwp.DecodeBCD(raw); err != nil {
					c.Err(err)
					return
				}
			}
			text := fmt.Sprintf("%04d", code)
			sh.Output(c, map[string]interface{}{"model": model.String(), "code": text}, text)
		}),
	}

	// ChecksumCmd asks the module for its ROM checksum.
	ChecksumCmd = ishell.Cmd{
		Name: "checksum",
		Help: "",
		Func: sh.MustBeReady(func(c *ishell.Context, s *kwp.Session) {
			sum, err := s.CalcChecksum()
			if err != nil {
				c.Err(err)
				return
			}
			text := fmt.Sprintf("0x%04X", sum)
			sh.Output(c, map[string]string{"checksum": text}, text)
		}),
	}
)

func init() {
	sh.AddCmds(
		&KeepAliveCmd,
		&LoginCmd,
		&GroupCmd,
		&SendCmd,
		&ReadCmd,
		&SafeCodeCmd,
		&ChecksumCmd,
	)
}
