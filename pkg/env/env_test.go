package env

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/kwp.go/pkg/kwp"
)

func emuConfig() *Config {
	c := NewConfig()
	c.Port = EmuPort
	c.StationID = "bench"
	return c
}

func TestEmulatorSession(t *testing.T) {
	c := emuConfig()
	tr, closer, err := c.OpenTransport()
	require.NoError(t, err)
	defer closer.Close()
	s, err := c.NewSession(tr, nil)
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background(), s, c.Baud))
	require.Equal(t, kwp.StateReady, s.State())

	data, err := s.ReadMemory(context.Background(), kwp.MemoryROMEEPROM, 0x10, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{0x90, 0x91, 0x92, 0x93}, data)
}

func TestEmulatorPremium5(t *testing.T) {
	c := emuConfig()
	c.Model = "premium5"
	c.Address = 0x7c
	c.Baud = 9600
	tr, _, err := c.OpenTransport()
	require.NoError(t, err)
	s, err := c.NewSession(tr, nil)
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background(), s, c.Baud))

	model, err := c.ParseModel()
	require.NoError(t, err)
	code, err := s.ReadSafeCode(model)
	require.NoError(t, err)
	require.Equal(t, uint16(0x1234), code)
}

func TestConfigErrors(t *testing.T) {
	c := emuConfig()
	c.Address = 0x80
	_, err := c.ModuleAddress()
	require.Error(t, err)
	_, _, err = c.OpenTransport()
	require.Error(t, err)

	c = emuConfig()
	c.Generation = "c"
	_, err = c.NewSession(nil, nil)
	require.Error(t, err)

	c = emuConfig()
	c.Model = "premium6"
	_, err = c.NewEmulator()
	require.Error(t, err)
}

func TestTracerDisabled(t *testing.T) {
	c := emuConfig()
	c.TraceURL = ""
	rec, pub, sink, err := c.NewTracer()
	require.NoError(t, err)
	require.Nil(t, rec)
	require.Nil(t, pub)
	require.Nil(t, sink)

	c.TraceURL = "udp://localhost:1"
	_, _, _, err = c.NewTracer()
	require.Error(t, err)
}

func TestStation(t *testing.T) {
	c := emuConfig()
	require.Equal(t, "bench", c.Station())
	c.StationID = ""
	require.NotEmpty(t, c.Station())
}

func TestConnectBaud(t *testing.T) {
	testCases := []struct {
		name string
		baud int
		err  bool
	}{
		{"autoconnect", 0, false},
		{"module baud", 9600, false},
		{"other baud", 10400, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := emuConfig()
			c.Baud = 9600
			m, err := c.NewEmulator()
			require.NoError(t, err)
			s, err := c.NewSession(m, nil)
			require.NoError(t, err)
			err = c.Connect(context.Background(), s, tc.baud)
			if tc.err {
				require.Error(t, err)
				require.Equal(t, kwp.StateDisconnected, s.State())
				return
			}
			require.NoError(t, err)
			require.Equal(t, kwp.StateReady, s.State())
		})
	}
}
