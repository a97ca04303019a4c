// Package kernel wires the subsystems together in their required
// order: interrupts first, then the scheduler, the machine, the disk
// stack, and finally the user-program layer. Everything else takes
// handles from here instead of reaching for globals.
package kernel

import (
	"log"

	"nachos/filesys"
	"nachos/interrupt"
	"nachos/machine"
	"nachos/threads"
	"nachos/userprog"
)

// Config sizes the simulated machine. The zero value is not usable;
// start from DefaultConfig.
type Config struct {
	NumPhysPages int
	TLBSize      int // 0 disables the TLB

	TransMode    userprog.TransMode
	TLBPolicy    userprog.TLBPolicy
	ReplaceScope userprog.ReplaceScope

	// TimerInterval enables the preemption timer when positive.
	TimerInterval int

	FormatDisk bool
}

func DefaultConfig() Config {
	return Config{
		NumPhysPages: 32,
		TLBSize:      4,
		TransMode:    userprog.ModePerProcess,
		TLBPolicy:    userprog.TLBLRU,
		ReplaceScope: userprog.ReplaceLocal,
		FormatDisk:   true,
	}
}

type Kernel struct {
	Interrupt  *interrupt.Interrupt
	Scheduler  *threads.Scheduler
	Machine    *machine.Machine
	SynchDisk  *filesys.SynchDisk
	FileSystem *filesys.FileSystem
	Pager      *userprog.Pager
	Handler    *userprog.Handler

	timer *interrupt.Timer
}

// New brings the whole system up. The calling goroutine becomes the
// initial kernel thread.
func New(cfg Config) *Kernel {
	intr := interrupt.New()
	sched := threads.NewScheduler(intr)
	mach := machine.New(intr, cfg.NumPhysPages, cfg.TLBSize)
	sd := filesys.NewSynchDisk(sched, intr)
	fs := filesys.NewFileSystem(sd, cfg.FormatDisk)
	pager := userprog.NewPager(mach, fs, cfg.TransMode, cfg.TLBPolicy, cfg.ReplaceScope)
	handler := userprog.NewHandler(mach, fs, pager, sched)

	k := &Kernel{
		Interrupt:  intr,
		Scheduler:  sched,
		Machine:    mach,
		SynchDisk:  sd,
		FileSystem: fs,
		Pager:      pager,
		Handler:    handler,
	}
	if cfg.TimerInterval > 0 {
		k.timer = sched.StartTimer(cfg.TimerInterval)
	}
	return k
}

// Shutdown stops the timer and reports the simulated run.
func (k *Kernel) Shutdown() {
	if k.timer != nil {
		k.timer.Stop()
		k.timer = nil
	}
	log.Printf("kernel: shutdown after %d ticks, %d page faults",
		k.Interrupt.TotalTicks(), k.Pager.NumFaults)
}
