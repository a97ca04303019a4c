package machine

import (
	"log"

	"nachos/interrupt"
)

const (
	SectorSize      = 128
	SectorsPerTrack = 32
	NumTracks       = 32
	NumSectors      = SectorsPerTrack * NumTracks

	// DiskTicks is the simulated latency of one sector operation; the
	// completion interrupt fires this long after the request.
	DiskTicks = 100
)

// Disk simulates an asynchronous sector device backed by memory, the
// way the reference test devices are built. A request returns
// immediately; the done callback runs from the completion interrupt.
// Only one request may be outstanding, which the synchronous layer
// above enforces with its lock.
type Disk struct {
	intr   *interrupt.Interrupt
	data   []byte
	done   func()
	active bool
}

func NewDisk(intr *interrupt.Interrupt, done func()) *Disk {
	return &Disk{
		intr: intr,
		data: make([]byte, NumSectors*SectorSize),
		done: done,
	}
}

// ReadRequest starts reading a sector into buf. buf is filled by the
// time the done callback runs.
func (d *Disk) ReadRequest(sector int, buf []byte) {
	d.checkRequest(sector, buf)
	copy(buf, d.data[sector*SectorSize:(sector+1)*SectorSize])
	d.intr.Schedule(d.requestDone, DiskTicks, "disk read")
}

// WriteRequest starts writing buf to a sector.
func (d *Disk) WriteRequest(sector int, buf []byte) {
	d.checkRequest(sector, buf)
	copy(d.data[sector*SectorSize:(sector+1)*SectorSize], buf)
	d.intr.Schedule(d.requestDone, DiskTicks, "disk write")
}

func (d *Disk) checkRequest(sector int, buf []byte) {
	if d.active {
		log.Panicf("disk: request for sector %d while another is in flight", sector)
	}
	if sector < 0 || sector >= NumSectors {
		log.Panicf("disk: sector %d out of range", sector)
	}
	if len(buf) != SectorSize {
		log.Panicf("disk: buffer of %d bytes, want %d", len(buf), SectorSize)
	}
	d.active = true
}

func (d *Disk) requestDone() {
	d.active = false
	d.done()
}
