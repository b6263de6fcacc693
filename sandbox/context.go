// Package sandbox executes single x86-64 instructions on the real cpu
// inside a ptrace-traced stub process.
//
// The stub is trapped at execve entry, before its first instruction
// runs, so its own program (including the go runtime) never executes.
// The instruction under test followed by an int3 is written over the
// stub's text; every Execute resets rip to the injected code and
// resumes until the next signal stop.
package sandbox

import (
	"fmt"
	"os/exec"
	"syscall"

	"github.com/pattyshack/x86probe/isa"
)

// Command used to launch the stub child.  The stub's code is never
// executed while traced; the cli's hidden stub command merely sleeps
// forever in case the process ever escapes the tracer.
var StubArgs = []string{"/proc/self/exe", "stub"}

type Status int

const (
	Success = Status(iota)
	ExceptionIntDivideError
	ExceptionIntOverflow
	IllegalInstruction
	MemoryFault
	UnknownFailure
)

func (status Status) String() string {
	switch status {
	case Success:
		return "success"
	case ExceptionIntDivideError:
		return "integer divide error"
	case ExceptionIntOverflow:
		return "integer overflow"
	case IllegalInstruction:
		return "illegal instruction"
	case MemoryFault:
		return "memory fault"
	}
	return "unknown failure"
}

type Context struct {
	mode isa.Mode

	tracer *Tracer

	codeAddress uint64

	// Register template captured at the execve trap; rsp etc retain
	// their initial values across trials.
	staged State

	// Register file read back after the last Execute.
	observed State

	status Status
}

func NewContext(mode isa.Mode, code []byte) (*Context, error) {
	if mode != isa.Long64 {
		return nil, fmt.Errorf("unsupported machine mode: %d", mode)
	}

	tracer, err := StartTraced(exec.Command(StubArgs[0], StubArgs[1:]...))
	if err != nil {
		return nil, err
	}

	ctx := &Context{
		mode:   mode,
		tracer: tracer,
	}

	err = ctx.prepare(code)
	if err != nil {
		_ = tracer.Kill()
		return nil, err
	}

	return ctx, nil
}

func (ctx *Context) prepare(code []byte) error {
	// The execve trap.
	waitStatus, err := ctx.tracer.Wait()
	if err != nil {
		return err
	}
	if !waitStatus.Stopped() || waitStatus.StopSignal() != syscall.SIGTRAP {
		return fmt.Errorf(
			"unexpected initial stub state: %v",
			waitStatus)
	}

	err = ctx.tracer.SetOptions(O_EXITKILL)
	if err != nil {
		return err
	}

	codeAddress, err := findCodeArena(ctx.tracer.Pid())
	if err != nil {
		return err
	}
	ctx.codeAddress = codeAddress

	injected := make([]byte, 0, len(code)+1)
	injected = append(injected, code...)
	injected = append(injected, 0xCC) // int3
	err = ctx.tracer.PokeData(uintptr(codeAddress), injected)
	if err != nil {
		return err
	}

	regs, err := ctx.tracer.GetGeneralRegisters()
	if err != nil {
		return err
	}
	ctx.staged = State{regs: *regs}
	ctx.observed = ctx.staged

	return nil
}

func (ctx *Context) CodeAddress() uint64 {
	return ctx.codeAddress
}

// SetRegBytes stages a root register value for the next Execute.
func (ctx *Context) SetRegBytes(reg isa.Reg, data []byte) error {
	return ctx.staged.SetBytes(ctx.mode, reg, data)
}

// RegBytes returns a root register value observed by the last Execute
// (or the value captured at the execve trap if nothing ran yet).
func (ctx *Context) RegBytes(reg isa.Reg) ([]byte, error) {
	return ctx.observed.Bytes(ctx.mode, reg)
}

// StagedRegBytes returns the value staged for the next Execute.
// Overlapping sub-register inputs accumulate in the staged root.
func (ctx *Context) StagedRegBytes(reg isa.Reg) ([]byte, error) {
	return ctx.staged.Bytes(ctx.mode, reg)
}

func (ctx *Context) SetFlags(flags uint32) {
	ctx.staged.SetFlags(flags)
}

func (ctx *Context) Flags() uint32 {
	return ctx.observed.Flags()
}

// Execute runs the injected instruction once.  A non-nil error is
// fatal for the context; instruction-level failures are reported via
// Status instead.
func (ctx *Context) Execute() error {
	regs := ctx.staged.regs
	regs.Rip = ctx.codeAddress

	err := ctx.tracer.SetGeneralRegisters(&regs)
	if err != nil {
		return err
	}

	err = ctx.tracer.Resume(0)
	if err != nil {
		return err
	}

	waitStatus, err := ctx.tracer.Wait()
	if err != nil {
		return err
	}

	if !waitStatus.Stopped() {
		return fmt.Errorf("stub process vanished: %v", waitStatus)
	}

	switch waitStatus.StopSignal() {
	case syscall.SIGTRAP:
		ctx.status = Success
	case syscall.SIGFPE:
		sigInfo, err := ctx.tracer.GetSigInfo()
		if err != nil {
			return err
		}

		switch sigInfo.Code {
		case FPE_INTDIV:
			ctx.status = ExceptionIntDivideError
		case FPE_INTOVF:
			ctx.status = ExceptionIntOverflow
		default:
			ctx.status = UnknownFailure
		}
	case syscall.SIGILL:
		ctx.status = IllegalInstruction
	case syscall.SIGSEGV, syscall.SIGBUS:
		ctx.status = MemoryFault
	default:
		ctx.status = UnknownFailure
	}

	observed, err := ctx.tracer.GetGeneralRegisters()
	if err != nil {
		return err
	}
	ctx.observed = State{regs: *observed}

	return nil
}

func (ctx *Context) Status() Status {
	return ctx.status
}

// Close kills and reaps the stub.  Safe on every exit path.
func (ctx *Context) Close() error {
	return ctx.tracer.Kill()
}
