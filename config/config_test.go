package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"

	"github.com/pattyshack/x86probe/isa"
)

type ConfigSuite struct{}

func TestConfig(t *testing.T) {
	suite.RunTests(t, &ConfigSuite{})
}

func (ConfigSuite) TestDefaults(t *testing.T) {
	cfg := Default()
	expect.Equal(t, 64, cfg.Mode)
	expect.Equal(t, "testdata", cfg.OutputDir)
	expect.Equal(t, 0, cfg.Workers)
	expect.False(t, cfg.IncludeMemoryForms)

	mode, err := cfg.MachineMode()
	expect.Nil(t, err)
	expect.Equal(t, isa.Long64, mode)
}

func (ConfigSuite) TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(
		path,
		[]byte(`
mode: 64
output_dir: out
workers: 4
include_memory_forms: true
mnemonics:
  - add
  - xor
`),
		0o644)
	expect.Nil(t, err)

	cfg, err := LoadFile(path)
	expect.Nil(t, err)
	expect.Equal(t, "out", cfg.OutputDir)
	expect.Equal(t, 4, cfg.Workers)
	expect.True(t, cfg.IncludeMemoryForms)
	expect.Equal(t, []string{"add", "xor"}, cfg.Mnemonics)
}

func (ConfigSuite) TestInvalidMode(t *testing.T) {
	cfg := Default()
	cfg.Mode = 16

	_, err := cfg.MachineMode()
	expect.Error(t, err, "")
}

func (ConfigSuite) TestMissingFile(t *testing.T) {
	_, err := LoadFile("/nonexistent/config.yaml")
	expect.Error(t, err, "")
}
