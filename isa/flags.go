package isa

import (
	"strconv"
)

// EFLAGS bit masks.
const (
	FlagCF = uint32(1) << 0
	FlagPF = uint32(1) << 2
	FlagAF = uint32(1) << 4
	FlagZF = uint32(1) << 6
	FlagSF = uint32(1) << 7
	FlagTF = uint32(1) << 8
	FlagIF = uint32(1) << 9
	FlagDF = uint32(1) << 10
	FlagOF = uint32(1) << 11

	StatusFlags = FlagCF | FlagPF | FlagAF | FlagZF | FlagSF | FlagOF
)

var flagNames = map[uint32]string{
	FlagCF: "cf",
	FlagPF: "pf",
	FlagAF: "af",
	FlagZF: "zf",
	FlagSF: "sf",
	FlagTF: "tf",
	FlagIF: "if",
	FlagDF: "df",
	FlagOF: "of",
}

// Human readable name for a single EFLAGS bit index.  Bits without an
// architectural name render as their index.
func FlagBitName(bitPos int) string {
	name, ok := flagNames[uint32(1)<<bitPos]
	if ok {
		return name
	}
	return "bit" + strconv.Itoa(bitPos)
}
