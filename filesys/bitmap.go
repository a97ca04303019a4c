package filesys

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log"
)

const bitsInWord = 32

// BitMap tracks which disk sectors are allocated: bit i set means
// sector i is in use. The map itself persists as a regular file whose
// header lives at the well-known FreeMapSector.
type BitMap struct {
	numBits int
	words   []uint32
}

func NewBitMap(numBits int) *BitMap {
	return &BitMap{
		numBits: numBits,
		words:   make([]uint32, (numBits+bitsInWord-1)/bitsInWord),
	}
}

func (bm *BitMap) Mark(which int) {
	if which < 0 || which >= bm.numBits {
		log.Panicf("bitmap: mark %d out of range", which)
	}
	bm.words[which/bitsInWord] |= 1 << (which % bitsInWord)
}

func (bm *BitMap) Clear(which int) {
	if which < 0 || which >= bm.numBits {
		log.Panicf("bitmap: clear %d out of range", which)
	}
	bm.words[which/bitsInWord] &^= 1 << (which % bitsInWord)
}

func (bm *BitMap) Test(which int) bool {
	return bm.words[which/bitsInWord]&(1<<(which%bitsInWord)) != 0
}

// Find allocates the lowest-numbered clear bit and returns it, or -1 if
// every bit is set.
func (bm *BitMap) Find() int {
	for i := 0; i < bm.numBits; i++ {
		if !bm.Test(i) {
			bm.Mark(i)
			return i
		}
	}
	return -1
}

// NumClear counts unallocated bits.
func (bm *BitMap) NumClear() int {
	n := 0
	for i := 0; i < bm.numBits; i++ {
		if !bm.Test(i) {
			n++
		}
	}
	return n
}

// Bytes encodes the map in its on-disk form.
func (bm *BitMap) Bytes() []byte {
	buf := bytes.NewBuffer(nil)
	binary.Write(buf, binary.LittleEndian, bm.words)
	return buf.Bytes()
}

// FetchFrom reloads the map from its backing file.
func (bm *BitMap) FetchFrom(file *OpenFile) {
	raw := make([]byte, len(bm.words)*4)
	file.ReadAt(raw, 0)
	binary.Read(bytes.NewReader(raw), binary.LittleEndian, bm.words)
}

// WriteBack persists the map to its backing file.
func (bm *BitMap) WriteBack(file *OpenFile) {
	file.WriteAt(bm.Bytes(), 0)
}

// Print lists the allocated sectors, for debugging.
func (bm *BitMap) Print() string {
	buf := bytes.NewBuffer(nil)
	fmt.Fprintf(buf, "Bitmap set:")
	for i := 0; i < bm.numBits; i++ {
		if bm.Test(i) {
			fmt.Fprintf(buf, " %d", i)
		}
	}
	fmt.Fprintf(buf, "\n")
	return buf.String()
}
