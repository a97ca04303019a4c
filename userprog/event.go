package userprog

import (
	"nachos/machine"
)

// Syscall numbers, read from register 2 at trap time. Arguments sit in
// registers 4 through 7.
const (
	SyscallHalt = iota
	SyscallExit
	SyscallExec
	SyscallJoin
	SyscallCreate
	SyscallOpen
	SyscallRead
	SyscallWrite
	SyscallClose
	SyscallFork
	SyscallYield
)

// Event is a decoded user-mode trap. Decoding pulls everything the
// handler needs out of the register file and user memory up front, so
// handling is a plain function of the event.
type Event interface {
	isEvent()
}

type (
	HaltEvent   struct{}
	ExitEvent   struct{ Code int }
	ExecEvent   struct{ Path string }
	JoinEvent   struct{ Tid int }
	CreateEvent struct{ Path string }
	OpenEvent   struct{ Path string }
	ReadEvent   struct{ Buf, Size, ID int }
	WriteEvent  struct{ Buf, Size, ID int }
	CloseEvent  struct{ ID int }
	ForkEvent   struct{ PC int }
	YieldEvent  struct{}

	// FaultEvent is a page fault at VAddr.
	FaultEvent struct{ VAddr int }

	// ErrorEvent is any exception the kernel does not repair.
	ErrorEvent struct{ Which machine.ExceptionType }

	UnknownSyscallEvent struct{ Num int }
)

func (HaltEvent) isEvent()           {}
func (ExitEvent) isEvent()           {}
func (ExecEvent) isEvent()           {}
func (JoinEvent) isEvent()           {}
func (CreateEvent) isEvent()         {}
func (OpenEvent) isEvent()           {}
func (ReadEvent) isEvent()           {}
func (WriteEvent) isEvent()          {}
func (CloseEvent) isEvent()          {}
func (ForkEvent) isEvent()           {}
func (YieldEvent) isEvent()          {}
func (FaultEvent) isEvent()          {}
func (ErrorEvent) isEvent()          {}
func (UnknownSyscallEvent) isEvent() {}

// Decode turns a raised exception into an Event, reading syscall
// arguments out of the register file and, for paths, user memory.
func (h *Handler) Decode(which machine.ExceptionType) Event {
	if which == machine.PageFaultException {
		return FaultEvent{VAddr: h.mach.ReadRegister(machine.BadVAddrReg)}
	}
	if which != machine.SyscallException {
		return ErrorEvent{Which: which}
	}

	arg := func(n int) int {
		return h.mach.ReadRegister(machine.Arg1Reg + n)
	}
	switch num := h.mach.ReadRegister(machine.SyscallNumReg); num {
	case SyscallHalt:
		return HaltEvent{}
	case SyscallExit:
		return ExitEvent{Code: arg(0)}
	case SyscallExec:
		return ExecEvent{Path: h.readString(arg(0))}
	case SyscallJoin:
		return JoinEvent{Tid: arg(0)}
	case SyscallCreate:
		return CreateEvent{Path: h.readString(arg(0))}
	case SyscallOpen:
		return OpenEvent{Path: h.readString(arg(0))}
	case SyscallRead:
		return ReadEvent{Buf: arg(0), Size: arg(1), ID: arg(2)}
	case SyscallWrite:
		return WriteEvent{Buf: arg(0), Size: arg(1), ID: arg(2)}
	case SyscallClose:
		return CloseEvent{ID: arg(0)}
	case SyscallFork:
		return ForkEvent{PC: arg(0)}
	case SyscallYield:
		return YieldEvent{}
	default:
		return UnknownSyscallEvent{Num: num}
	}
}
