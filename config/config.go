// Package config holds the yaml run configuration for the generator.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pattyshack/x86probe/isa"
)

type Config struct {
	// Machine mode; only 64 is currently executable.
	Mode int `yaml:"mode"`

	OutputDir string `yaml:"output_dir"`

	// Number of parallel workers; 0 uses GOMAXPROCS.
	Workers int `yaml:"workers"`

	// Also enumerate memory operand forms of every modrm-based form
	// template.
	IncludeMemoryForms bool `yaml:"include_memory_forms"`

	// Mnemonic subset to generate; empty means all supported.
	Mnemonics []string `yaml:"mnemonics"`
}

func Default() Config {
	return Config{
		Mode:      64,
		OutputDir: "testdata",
	}
}

func LoadFile(path string) (Config, error) {
	result := Default()

	content, err := os.ReadFile(path)
	if err != nil {
		return result, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	err = yaml.Unmarshal(content, &result)
	if err != nil {
		return result, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return result, nil
}

func (config Config) MachineMode() (isa.Mode, error) {
	switch config.Mode {
	case 64:
		return isa.Long64, nil
	case 32:
		return isa.Legacy32, nil
	}
	return 0, fmt.Errorf("invalid machine mode: %d", config.Mode)
}
