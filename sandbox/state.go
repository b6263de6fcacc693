package sandbox

import (
	"encoding/binary"
	"fmt"
	"reflect"

	"github.com/pattyshack/x86probe/isa"
)

// A staged copy of the stub's 64-bit general register file.  Register
// content is exchanged as little endian byte vectors; the oracle
// splices sub-register inputs into root buffers itself and only ever
// hands us root registers.
type State struct {
	regs UserRegs
}

func (state *State) fieldFor(reg isa.Reg) (reflect.Value, error) {
	spec := reg.Spec()
	if spec.Field == "" {
		return reflect.Value{}, fmt.Errorf(
			"register %s is not part of the sandboxed register file",
			spec.Name)
	}

	data := reflect.Indirect(reflect.ValueOf(&state.regs))
	return data.FieldByName(spec.Field), nil
}

// Bytes returns the register value as a little endian byte vector of
// the register's width under the given mode.
func (state *State) Bytes(mode isa.Mode, reg isa.Reg) ([]byte, error) {
	field, err := state.fieldFor(reg)
	if err != nil {
		return nil, err
	}

	buf := [8]byte{}
	binary.LittleEndian.PutUint64(buf[:], field.Uint())

	return buf[:reg.Width(mode)/8], nil
}

func (state *State) SetBytes(mode isa.Mode, reg isa.Reg, data []byte) error {
	size := reg.Width(mode) / 8
	if len(data) != size {
		return fmt.Errorf(
			"register %s size (%d) does not match value size (%d)",
			reg.Name(),
			size,
			len(data))
	}

	field, err := state.fieldFor(reg)
	if err != nil {
		return err
	}

	buf := [8]byte{}
	copy(buf[:], data)

	field.SetUint(binary.LittleEndian.Uint64(buf[:]))
	return nil
}

func (state *State) Flags() uint32 {
	return uint32(state.regs.Eflags)
}

func (state *State) SetFlags(flags uint32) {
	state.regs.Eflags = uint64(flags)
}
