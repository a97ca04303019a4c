package userprog

import (
	"log"

	"nachos/filesys"
	"nachos/machine"
	"nachos/threads"
)

// Outcome is what a handled event asks the dispatcher to do with the
// trapping thread. Handlers never touch the program counter; the
// dispatcher applies the outcome.
type Outcome interface {
	isOutcome()
}

type (
	// Retry re-executes the faulting instruction.
	Retry struct{}
	// AdvancePC resumes past the trapping instruction.
	AdvancePC struct{}
	// Return writes a syscall result and resumes past the trap.
	Return struct{ Value int }
	// Reschedule resumes past the trap but yields the CPU first.
	Reschedule struct{}
	// Terminate finishes the current thread with an exit code.
	Terminate struct{ Code int }
	// Fatal is an exception the kernel cannot repair.
	Fatal struct{ Which machine.ExceptionType }
)

func (Retry) isOutcome()      {}
func (AdvancePC) isOutcome()  {}
func (Return) isOutcome()     {}
func (Reschedule) isOutcome() {}
func (Terminate) isOutcome()  {}
func (Fatal) isOutcome()      {}

// maxStringArg bounds syscall string arguments.
const maxStringArg = 256

// Handler services user-mode traps: syscalls against the file system
// and thread layer, page faults via the pager. One handler serves the
// whole machine; per-process state lives in the address spaces and the
// open-file table.
type Handler struct {
	mach  *machine.Machine
	fs    *filesys.FileSystem
	pager *Pager
	sched *threads.Scheduler

	files  map[int]*filesys.OpenFile
	nextID int

	// children maps the tid of every thread spawned by Exec or Fork to
	// its creation epoch, so Join never attaches to a later thread that
	// recycled the tid.
	children map[int]int

	// RunUser is entered by threads spawned with Exec and Fork once
	// their address space is current. Tests inject their own body.
	RunUser func(h *Handler)
}

func NewHandler(mach *machine.Machine, fs *filesys.FileSystem, pager *Pager, sched *threads.Scheduler) *Handler {
	return &Handler{
		mach:     mach,
		fs:       fs,
		pager:    pager,
		sched:    sched,
		files:    make(map[int]*filesys.OpenFile),
		nextID:   2, // 0 and 1 stay reserved
		children: make(map[int]int),
		RunUser: func(h *Handler) {
			log.Printf("userprog: no user-mode interpreter, thread exiting")
		},
	}
}

func (h *Handler) Pager() *Pager { return h.pager }

// Dispatch decodes a raised exception, handles it, and applies the
// outcome to the machine and the current thread.
func (h *Handler) Dispatch(which machine.ExceptionType) {
	switch out := h.HandleEvent(h.Decode(which)).(type) {
	case Retry:
	case AdvancePC:
		h.mach.AdvancePC()
	case Return:
		h.mach.WriteRegister(machine.RetValReg, out.Value)
		h.mach.AdvancePC()
	case Reschedule:
		h.mach.AdvancePC()
		h.sched.CurrentThread().Yield()
	case Terminate:
		h.terminate(out.Code)
	case Fatal:
		log.Panicf("userprog: unexpected exception: %v", out.Which)
	}
}

// HandleEvent maps one decoded event to its outcome, performing the
// operation's side effects on the file system and thread layer.
func (h *Handler) HandleEvent(ev Event) Outcome {
	switch ev := ev.(type) {
	case HaltEvent:
		log.Printf("userprog: halt, %d ticks", h.sched.Interrupt().TotalTicks())
		return Terminate{Code: 0}

	case ExitEvent:
		return Terminate{Code: ev.Code}

	case ExecEvent:
		tid, err := h.exec(ev.Path, 0)
		if err != nil {
			log.Printf("userprog: exec %q: %v", ev.Path, err)
			return Return{Value: -1}
		}
		return Return{Value: tid}

	case ForkEvent:
		// The child runs the same image, entering at the given
		// virtual address.
		cur := h.sched.CurrentThread()
		space := h.pager.Space(cur.Tid())
		if space == nil {
			return Return{Value: -1}
		}
		tid, err := h.exec(space.Exec(), ev.PC)
		if err != nil {
			log.Printf("userprog: fork: %v", err)
			return Return{Value: -1}
		}
		return Return{Value: tid}

	case JoinEvent:
		epoch, ok := h.children[ev.Tid]
		if !ok {
			return Return{Value: -1}
		}
		t := h.sched.ThreadByTid(ev.Tid)
		if t == nil || t.Epoch() != epoch {
			// The child is gone; its tid may already belong to a
			// later thread.
			delete(h.children, ev.Tid)
			return Return{Value: -1}
		}
		t.Join()
		delete(h.children, ev.Tid)
		return Return{Value: 0}

	case YieldEvent:
		return Reschedule{}

	case CreateEvent:
		if err := h.fs.Create(ev.Path, 0); err != nil {
			log.Printf("userprog: create %q: %v", ev.Path, err)
			return Return{Value: -1}
		}
		return Return{Value: 0}

	case OpenEvent:
		of, err := h.fs.Open(ev.Path)
		if err != nil {
			log.Printf("userprog: open %q: %v", ev.Path, err)
			return Return{Value: -1}
		}
		id := h.nextID
		h.nextID++
		h.files[id] = of
		return Return{Value: id}

	case CloseEvent:
		if _, ok := h.files[ev.ID]; !ok {
			return Return{Value: -1}
		}
		delete(h.files, ev.ID)
		return Return{Value: 0}

	case ReadEvent:
		of, ok := h.files[ev.ID]
		if !ok {
			return Return{Value: -1}
		}
		buf := make([]byte, ev.Size)
		n := of.Read(buf)
		h.writeBuf(ev.Buf, buf[:n])
		return Return{Value: n}

	case WriteEvent:
		of, ok := h.files[ev.ID]
		if !ok {
			return Return{Value: -1}
		}
		return Return{Value: of.Write(h.readBuf(ev.Buf, ev.Size))}

	case FaultEvent:
		h.pager.HandlePageFault(ev.VAddr)
		return Retry{}

	case UnknownSyscallEvent:
		log.Printf("userprog: unknown syscall %d", ev.Num)
		return Return{Value: -1}

	case ErrorEvent:
		return Fatal{Which: ev.Which}
	}
	log.Panicf("userprog: unhandled event %T", ev)
	return nil
}

// exec spawns a thread running the image at path, entering at pc.
func (h *Handler) exec(path string, pc int) (int, error) {
	t := h.sched.NewThread(path)
	space, err := h.pager.NewAddrSpace(t.Tid(), path)
	if err != nil {
		return -1, err
	}
	t.Space = space
	t.Fork(func(interface{}) {
		space.RestoreState()
		space.InitRegisters()
		if pc != 0 {
			h.mach.WriteRegister(machine.PCReg, pc)
			h.mach.WriteRegister(machine.NextPCReg, pc+4)
		}
		h.RunUser(h)
		space.Destroy()
	}, nil)
	h.children[t.Tid()] = t.Epoch()
	return t.Tid(), nil
}

func (h *Handler) terminate(code int) {
	cur := h.sched.CurrentThread()
	log.Printf("userprog: tid %d exits with code %d", cur.Tid(), code)
	if space := h.pager.Space(cur.Tid()); space != nil {
		space.Destroy()
	}
	cur.Finish()
}

// readMem retries through the pager until the access sticks, as user
// memory can fault at any reference.
func (h *Handler) readMem(vaddr, size int) int {
	for {
		v, exc := h.mach.ReadMem(vaddr, size)
		if exc == machine.NoException {
			return v
		}
		if exc != machine.PageFaultException {
			log.Panicf("userprog: %v reading user memory at %#x", exc, vaddr)
		}
		h.pager.HandlePageFault(vaddr)
	}
}

func (h *Handler) writeMem(vaddr, size, value int) {
	for {
		exc := h.mach.WriteMem(vaddr, size, value)
		if exc == machine.NoException {
			return
		}
		if exc != machine.PageFaultException {
			log.Panicf("userprog: %v writing user memory at %#x", exc, vaddr)
		}
		h.pager.HandlePageFault(vaddr)
	}
}

// readString reads a NUL-terminated string out of user memory.
func (h *Handler) readString(vaddr int) string {
	var out []byte
	for len(out) < maxStringArg {
		c := h.readMem(vaddr+len(out), 1)
		if c == 0 {
			break
		}
		out = append(out, byte(c))
	}
	return string(out)
}

func (h *Handler) readBuf(vaddr, size int) []byte {
	out := make([]byte, size)
	for i := range out {
		out[i] = byte(h.readMem(vaddr+i, 1))
	}
	return out
}

func (h *Handler) writeBuf(vaddr int, data []byte) {
	for i, b := range data {
		h.writeMem(vaddr+i, 1, int(b))
	}
}
