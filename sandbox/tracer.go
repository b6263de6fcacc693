package sandbox

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"sync"
	"syscall"
)

type requestType string

const (
	start      = requestType("start")
	kill       = requestType("kill")
	resume     = requestType("resume")
	wait       = requestType("wait")
	setoptions = requestType("setoptions")
	getregs    = requestType("getregs")
	setregs    = requestType("setregs")
	pokedata   = requestType("pokedata")
	getsiginfo = requestType("getsiginfo")
)

type request struct {
	requestType

	cmd *exec.Cmd

	signal int // resume

	options Options // set options

	regs *UserRegs // get/set regs

	addr uintptr // poke data
	data []byte  // poke data

	sigInfo *SigInfo // get siginfo

	responseChan chan response
}

type response struct {
	waitStatus syscall.WaitStatus
	err        error
}

// This ensures ptrace calls to the stub are goroutine-safe.
//
// NOTE: all ptrace calls to a process, including PTRACE_TRACEME in
// os.StartProcess / exec.Cmd.Start, must originate from the same os
// thread.
//
// https://github.com/golang/go/issues/7699
// https://github.com/golang/go/issues/43685
type Tracer struct {
	cancel func()
	ctx    context.Context

	// Reminder: requestChan is blocking.  responseChan(s) are non-blocking.
	requestChan chan request

	mutex sync.Mutex

	_pid int // guarded by mutex
}

// Start the command with PTRACE_TRACEME set; the child traps before
// executing its first instruction.
func StartTraced(cmd *exec.Cmd) (*Tracer, error) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Ptrace = true

	ctx, cancel := context.WithCancel(context.Background())
	tracer := &Tracer{
		cancel:      cancel,
		ctx:         ctx,
		requestChan: make(chan request),
	}
	go tracer.processRequests()

	_, err := tracer.send(request{
		requestType: start,
		cmd:         cmd,
	})
	if err != nil {
		close(tracer.requestChan) // shutdown process thread
		return nil, err
	}

	return tracer, nil
}

func (tracer *Tracer) Pid() int {
	tracer.mutex.Lock()
	defer tracer.mutex.Unlock()

	return tracer._pid
}

func (tracer *Tracer) setPid(pid int) {
	tracer.mutex.Lock()
	defer tracer.mutex.Unlock()

	tracer._pid = pid
}

func (tracer *Tracer) processRequests() {
	runtime.LockOSThread()
	defer func() {
		tracer.cancel()
		runtime.UnlockOSThread()
	}()

	pid := 0
	for req := range tracer.requestChan {
		switch req.requestType {
		case start:
			err := req.cmd.Start()
			if err != nil {
				err = fmt.Errorf("failed to start stub process: %w", err)
			} else {
				pid = req.cmd.Process.Pid
				tracer.setPid(pid)
			}

			req.responseChan <- response{
				err: err,
			}
		case kill:
			err := syscall.Kill(pid, syscall.SIGKILL)
			if err != nil {
				err = fmt.Errorf("failed to kill process %d: %w", pid, err)
			} else {
				// Reap the stub so it does not linger as a zombie.
				var waitStatus syscall.WaitStatus
				_, _ = syscall.Wait4(pid, &waitStatus, 0, nil)
			}

			req.responseChan <- response{
				err: err,
			}

			return
		case resume:
			err := syscall.PtraceCont(pid, req.signal)
			if err != nil {
				err = fmt.Errorf("failed to resume process %d: %w", pid, err)
			}

			req.responseChan <- response{
				err: err,
			}
		case wait:
			var waitStatus syscall.WaitStatus
			_, err := syscall.Wait4(pid, &waitStatus, 0, nil)
			if err != nil {
				err = fmt.Errorf("failed to wait on process %d: %w", pid, err)
			}

			req.responseChan <- response{
				waitStatus: waitStatus,
				err:        err,
			}
		case setoptions:
			err := syscall.PtraceSetOptions(pid, int(req.options))
			if err != nil {
				err = fmt.Errorf(
					"failed to set options for process %d: %w",
					pid,
					err)
			}

			req.responseChan <- response{
				err: err,
			}
		case getregs:
			err := syscall.PtraceGetRegs(pid, req.regs)
			if err != nil {
				err = fmt.Errorf(
					"failed to get register values from process %d: %w",
					pid,
					err)
			}

			req.responseChan <- response{
				err: err,
			}
		case setregs:
			err := syscall.PtraceSetRegs(pid, req.regs)
			if err != nil {
				err = fmt.Errorf(
					"failed to set register values for process %d: %w",
					pid,
					err)
			}

			req.responseChan <- response{
				err: err,
			}
		case pokedata:
			_, err := syscall.PtracePokeData(pid, req.addr, req.data)
			if err != nil {
				err = fmt.Errorf(
					"failed to write %d bytes at 0x%x for process %d: %w",
					len(req.data),
					req.addr,
					pid,
					err)
			}

			req.responseChan <- response{
				err: err,
			}
		case getsiginfo:
			err := getSigInfo(pid, req.sigInfo)
			if err != nil {
				err = fmt.Errorf(
					"failed to get signal info from process %d: %w",
					pid,
					err)
			}

			req.responseChan <- response{
				err: err,
			}
		}
	}
}

func (tracer *Tracer) send(req request) (response, error) {
	respChan := make(chan response, 1)
	req.responseChan = respChan

	select {
	case <-tracer.ctx.Done():
		return response{}, fmt.Errorf(
			"invalid operation. tracer has released process %d",
			tracer.Pid())
	case tracer.requestChan <- req:
		resp := <-respChan
		return resp, resp.err
	}
}

// Kill terminates the stub and shuts down the request thread.
func (tracer *Tracer) Kill() error {
	_, err := tracer.send(request{
		requestType: kill,
	})
	return err
}

func (tracer *Tracer) Resume(signal int) error {
	_, err := tracer.send(request{
		requestType: resume,
		signal:      signal,
	})
	return err
}

func (tracer *Tracer) Wait() (syscall.WaitStatus, error) {
	resp, err := tracer.send(request{
		requestType: wait,
	})
	return resp.waitStatus, err
}

func (tracer *Tracer) SetOptions(options Options) error {
	_, err := tracer.send(request{
		requestType: setoptions,
		options:     options,
	})
	return err
}

func (tracer *Tracer) GetGeneralRegisters() (*UserRegs, error) {
	out := &UserRegs{}
	_, err := tracer.send(request{
		requestType: getregs,
		regs:        out,
	})
	return out, err
}

func (tracer *Tracer) SetGeneralRegisters(in *UserRegs) error {
	_, err := tracer.send(request{
		requestType: setregs,
		regs:        in,
	})
	return err
}

func (tracer *Tracer) PokeData(addr uintptr, data []byte) error {
	_, err := tracer.send(request{
		requestType: pokedata,
		addr:        addr,
		data:        data,
	})
	return err
}

func (tracer *Tracer) GetSigInfo() (*SigInfo, error) {
	out := &SigInfo{}
	_, err := tracer.send(request{
		requestType: getsiginfo,
		sigInfo:     out,
	})
	return out, err
}
