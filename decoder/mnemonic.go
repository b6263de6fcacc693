package decoder

import (
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// Mnemonic identifies one symbolic instruction name.  The underlying
// values are stable across runs and double as prng seeds.
type Mnemonic = x86asm.Op

func MnemonicName(mnemonic Mnemonic) string {
	return strings.ToLower(mnemonic.String())
}
