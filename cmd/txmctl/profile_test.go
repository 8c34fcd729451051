package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeProfile(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "instrument.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	return path
}

func TestLoadProfile(t *testing.T) {
	require := require.New(t)

	t.Run("FullProfile", func(t *testing.T) {
		path := writeProfile(t, `
instrument: nano
ioc_prefix: "32idcPG3:"
has_permit: true
use_shutter_a: false
use_shutter_b: true
put_timeout: 30s
zone_plate:
  diameter: 180
  drn: 60
scan_log: scans.sqlite3
`)
		p, err := loadProfile(path)
		require.NoError(err)
		require.Equal("nano", p.Instrument)
		require.Equal("32idcPG3:", p.IOCPrefix)
		require.True(p.HasPermit)
		require.NotNil(p.UseShutterA)
		require.False(*p.UseShutterA)
		require.Equal("scans.sqlite3", p.ScanLog)

		m, err := p.microscope()
		require.NoError(err)
		defer m.Close()
		require.True(m.HasPermit())
	})

	t.Run("EmptyPathGivesDefaults", func(t *testing.T) {
		p, err := loadProfile("")
		require.NoError(err)
		require.False(p.HasPermit)

		m, err := p.microscope()
		require.NoError(err)
		defer m.Close()
		require.False(m.HasPermit())
	})

	t.Run("MicroInstrument", func(t *testing.T) {
		p, err := loadProfile(writeProfile(t, "instrument: micro\n"))
		require.NoError(err)

		m, err := p.microscope()
		require.NoError(err)
		defer m.Close()

		addr, err := m.Address("Motor_SampleRot")
		require.NoError(err)
		require.Equal("32idcTXM:hydra:c0:m1.VAL", addr)
	})

	t.Run("UnknownInstrument", func(t *testing.T) {
		p, err := loadProfile(writeProfile(t, "instrument: neutron\n"))
		require.NoError(err)
		_, err = p.microscope()
		require.Error(err)
	})

	t.Run("BadDuration", func(t *testing.T) {
		p, err := loadProfile(writeProfile(t, "put_timeout: soon\n"))
		require.NoError(err)
		_, err = p.microscope()
		require.Error(err)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := loadProfile("/does/not/exist.yaml")
		require.Error(err)
	})
}
