package sandbox

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

type Options int

const (
	O_EXITKILL = Options(unix.PTRACE_O_EXITKILL)
)

// This matches user_regs_struct (64bit variant) defined in <sys/user.h>
type UserRegs = syscall.PtraceRegs

type SigInfo = unix.Siginfo

// si_code values for SIGFPE, from <asm-generic/siginfo.h>.
const (
	FPE_INTDIV = 1
	FPE_INTOVF = 2
)

func ptrace(request int, pid int, addr uintptr, data uintptr) error {
	_, _, err := syscall.Syscall6(
		syscall.SYS_PTRACE,
		uintptr(request),
		uintptr(pid),
		addr,
		data,
		0,
		0)
	if err == 0 {
		return nil
	}
	return err
}

func ptracePtr(request int, pid int, addr uintptr, data unsafe.Pointer) error {
	return ptrace(request, pid, addr, uintptr(data))
}

func getSigInfo(pid int, out *SigInfo) error {
	return ptracePtr(unix.PTRACE_GETSIGINFO, pid, 0, unsafe.Pointer(out))
}
