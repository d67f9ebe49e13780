package sh

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"strconv"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"

	fx "github.com/robotalks/kwp.go/pkg/framework"
	"github.com/robotalks/kwp.go/pkg/env"
	"github.com/robotalks/kwp.go/pkg/kline/serial"
	"github.com/robotalks/kwp.go/pkg/kwp"
	"github.com/robotalks/kwp.go/pkg/trace"
	"github.com/robotalks/kwp.go/pkg/trace/comm"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoConnect bool

	Shell    *ishell.Shell
	Config   *env.Config
	Runner   *fx.Runner
	Recorder *trace.Recorder
	Sink     comm.Sink
	Line     *Line
}

// Line is an open K-line transport with its session.
type Line struct {
	Transport kwp.Transport
	Closer    io.Closer
	Session   *kwp.Session
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&PortsCmd,
		&ConnectCmd,
		&AutoconnectCmd,
		&DisconnectCmd,
		&StateCmd,
		&InfoCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *env.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
		Runner: fx.NewRunner(),
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// SessionFrom gets the session from ishell context, nil if no line is open.
func SessionFrom(c *ishell.Context) *kwp.Session {
	if line := ShellFrom(c).Line; line != nil {
		return line.Session
	}
	return nil
}

// MustBeReady wraps command func requires a ready session.
func MustBeReady(fn func(c *ishell.Context, s *kwp.Session)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		s := SessionFrom(c)
		if s == nil || s.State() != kwp.StateReady {
			c.Err(kwp.ErrNotReady)
			return
		}
		fn(c, s)
	}
}

// Output prints v in JSON, or text otherwise.
func Output(c *ishell.Context, v interface{}, text string) {
	if ShellFrom(c).OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Println(text)
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// StartTrace dials the trace sink and publishes in background.
func (s *Shell) StartTrace() error {
	rec, pub, sink, err := s.Config.NewTracer()
	if err != nil || rec == nil {
		return err
	}
	s.Recorder, s.Sink = rec, sink
	s.Runner.Go(pub)
	return nil
}

// Open opens the transport and creates a session if not yet.
func (s *Shell) Open() (*kwp.Session, error) {
	if s.Line != nil {
		return s.Line.Session, nil
	}
	t, closer, err := s.Config.OpenTransport()
	if err != nil {
		return nil, err
	}
	var observer kwp.Observer
	if s.Recorder != nil {
		observer = s.Recorder
	}
	sess, err := s.Config.NewSession(t, observer)
	if err != nil {
		closer.Close()
		return nil, err
	}
	s.Line = &Line{Transport: t, Closer: closer, Session: sess}
	return sess, nil
}

func (s *Shell) setPrompt(prompt string) {
	if s.Shell != nil {
		s.Shell.SetPrompt(prompt)
	}
}

// Connect connects the module at baud, 0 for autoconnect.
func (s *Shell) Connect(baud int) error {
	sess, err := s.Open()
	if err != nil {
		return err
	}
	if err = s.Config.Connect(s.Runner.Context, sess, baud); err != nil {
		return err
	}
	s.setPrompt(fmt.Sprintf("[0x%02X] > ", s.Config.Address))
	return nil
}

// Disconnect ends the session and closes the transport.
func (s *Shell) Disconnect() error {
	if s.Line == nil {
		return nil
	}
	err := s.Line.Session.Disconnect()
	if cerr := s.Line.Closer.Close(); err == nil {
		err = cerr
	}
	s.Line = nil
	s.setPrompt(unconnectedPrompt)
	return err
}

// Close disconnects, waits for the trace to be flushed and closes the
// trace sink.
func (s *Shell) Close() error {
	var errs fx.AggregatedError
	errs.Add(s.Disconnect())
	s.Runner.Stop()
	errs.Add(s.Runner.Wait())
	if s.Sink != nil {
		errs.Add(s.Sink.Close())
		s.Sink = nil
	}
	return errs.Aggregate()
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoConnect {
		if s.Interactive {
			s.Shell.Printf("Connecting 0x%02X on %s ...\n", s.Config.Address, s.Config.Port)
		}
		if err := s.Connect(s.Config.Baud); err != nil {
			log.Fatalf("connect failed: %v", err)
		}
	}

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

func printIdentity(c *ishell.Context) {
	id := SessionFrom(c).Identity()
	c.Println(id.String())
}

func parseBaud(c *ishell.Context) (int, bool) {
	if len(c.Args) == 0 {
		return ShellFrom(c).Config.Baud, true
	}
	baud, err := strconv.Atoi(c.Args[0])
	if err != nil || baud < 0 {
		c.Err(fmt.Errorf("Invalid BAUD: %q", c.Args[0]))
		return 0, false
	}
	return baud, true
}

var (
	// PortsCmd lists serial ports.
	PortsCmd = ishell.Cmd{
		Name: "ports",
		Help: "",
		Func: func(c *ishell.Context) {
			ports, err := serial.Ports()
			if err != nil {
				c.Err(err)
				return
			}
			if ports == nil {
				ports = []string{}
			}
			text := "No serial ports found"
			if len(ports) > 0 {
				text = fmt.Sprint(ports)
			}
			Output(c, ports, text)
		},
	}

	// ConnectCmd connects the module.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[BAUD]",
		Func: func(c *ishell.Context) {
			baud, ok := parseBaud(c)
			if !ok {
				return
			}
			if err := ShellFrom(c).Connect(baud); err != nil {
				c.Err(err)
				return
			}
			printIdentity(c)
		},
	}

	// AutoconnectCmd tries all autoconnect baud rates.
	AutoconnectCmd = ishell.Cmd{
		Name:    "autoconnect",
		Aliases: []string{"ac"},
		Help:    "",
		Func: func(c *ishell.Context) {
			if err := ShellFrom(c).Connect(0); err != nil {
				c.Err(err)
				return
			}
			printIdentity(c)
		},
	}

	// DisconnectCmd ends the session.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			if err := ShellFrom(c).Disconnect(); err != nil {
				c.Err(err)
			}
		},
	}

	// StateCmd prints the session state.
	StateCmd = ishell.Cmd{
		Name: "state",
		Help: "",
		Func: func(c *ishell.Context) {
			state := kwp.StateDisconnected
			if s := SessionFrom(c); s != nil {
				state = s.State()
			}
			Output(c, map[string]string{"state": state.String()}, state.String())
		},
	}

	// InfoCmd prints the module identity.
	InfoCmd = ishell.Cmd{
		Name:    "info",
		Aliases: []string{"i"},
		Help:    "",
		Func: MustBeReady(func(c *ishell.Context, s *kwp.Session) {
			id := s.Identity()
			Output(c, map[string]string{
				"part_number": string(id.PartNumber[:]),
				"component":   id.Component(),
			}, id.String())
		}),
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	s := New(env.NewConfig()).WithAutoConnect(evalOnly)
	if evalOnly {
		s.Runner.HandleSignals()
	}
	if err := s.StartTrace(); err != nil {
		log.Fatalln(err)
	}
	s.Run(flag.Args()...)
	if err := s.Close(); err != nil {
		glog.Errorf("close: %v", err)
	}
	glog.Flush()
}
