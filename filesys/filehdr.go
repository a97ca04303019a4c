package filesys

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log"
	"time"

	"nachos/machine"
)

const (
	SectorSize = machine.SectorSize
	NumSectors = machine.NumSectors

	// TimeLength is the width of one formatted timestamp (time.ANSIC);
	// each is stored NUL-padded in TimeLength+1 bytes.
	TimeLength = 24

	// NumDirect direct slots fit in the header sector next to the
	// metadata; one more slot points at the indirect-of-indirects
	// sector. Each indirect sector holds NumIndirect sector numbers.
	NumDirect   = (SectorSize-4*4-4-3*(TimeLength+1))/4 - 1
	NumIndirect = SectorSize / 4

	// MaxFileSize is what the two-level map can address.
	MaxFileSize = NumDirect*SectorSize + NumIndirect*NumIndirect*SectorSize
)

type FileType int32

const (
	NormalFile FileType = iota
	DirectoryFile
	BitMapFile
	NameFile
	PathFile
)

func (t FileType) String() string {
	switch t {
	case NormalFile:
		return "normal"
	case DirectoryFile:
		return "directory"
	case BitMapFile:
		return "bitmap"
	case NameFile:
		return "name"
	case PathFile:
		return "path"
	}
	return "unknown"
}

// FileHeader is the on-disk metadata record for one file: its length,
// type, timestamps, a back-reference to the Path File holding its
// absolute path, and the block map. The encoded form fills exactly one
// sector. Headers are manipulated as in-memory copies and persisted
// with WriteBack only once an operation as a whole has succeeded, so a
// failed allocation is discarded, not rolled back.
type FileHeader struct {
	sd *SynchDisk

	numBytes       int32
	numSectors     int32
	fileType       FileType
	createTime     [TimeLength + 1]byte
	lastAccessTime [TimeLength + 1]byte
	lastModifyTime [TimeLength + 1]byte
	pathFileSector int32
	pathLength     int32
	dataSectors    [NumDirect + 1]int32
}

func NewFileHeader(sd *SynchDisk) *FileHeader {
	return &FileHeader{sd: sd, pathFileSector: -1}
}

func (h *FileHeader) FileLength() int { return int(h.numBytes) }
func (h *FileHeader) NumSectors() int { return int(h.numSectors) }
func (h *FileHeader) Type() FileType  { return h.fileType }

func (h *FileHeader) PathFileSector() int { return int(h.pathFileSector) }
func (h *FileHeader) PathLength() int     { return int(h.pathLength) }

func (h *FileHeader) SetPath(sector, length int) {
	h.pathFileSector = int32(sector)
	h.pathLength = int32(length)
}

// Path reconstructs the file's absolute name by reading its Path File.
// Files without one (the free map and other format-time metadata)
// report an empty string.
func (h *FileHeader) Path() string {
	if h.pathFileSector == -1 || h.pathLength == 0 {
		return ""
	}
	buf := make([]byte, h.pathLength)
	newOpenFile(h.sd, int(h.pathFileSector), nil).ReadAt(buf, 0)
	return cstring(buf)
}

func divRoundUp(n, d int) int {
	return (n + d - 1) / d
}

// Allocate sizes a fresh header and claims data sectors from the free
// map, spilling into the two-level indirect map for large files. On
// ErrNoSpace the header and bitmap copies are partially modified; the
// caller discards both without writing them back.
func (h *FileHeader) Allocate(freeMap *BitMap, fileSize int, fileType FileType) error {
	if fileSize > MaxFileSize {
		return ErrNoSpace
	}
	h.numBytes = int32(fileSize)
	h.fileType = fileType
	h.numSectors = int32(divRoundUp(fileSize, SectorSize))

	unassigned := int(h.numSectors)
	if unassigned <= NumDirect {
		if freeMap.NumClear() < unassigned {
			return ErrNoSpace
		}
		for i := 0; i < unassigned; i++ {
			h.dataSectors[i] = int32(freeMap.Find())
		}
		return nil
	}

	if freeMap.NumClear() < NumDirect {
		return ErrNoSpace
	}
	for i := 0; i < NumDirect; i++ {
		h.dataSectors[i] = int32(freeMap.Find())
	}
	root := freeMap.Find()
	if root == -1 {
		return ErrNoSpace
	}
	h.dataSectors[NumDirect] = int32(root)
	unassigned -= NumDirect

	var index [NumIndirect]int32
	j := 0
	for unassigned > 0 {
		if j == NumIndirect {
			return ErrNoSpace
		}
		level1 := freeMap.Find()
		if level1 == -1 {
			return ErrNoSpace
		}
		index[j] = int32(level1)

		count := unassigned
		if count > NumIndirect {
			count = NumIndirect
		}
		if freeMap.NumClear() < count {
			return ErrNoSpace
		}
		var sectors [NumIndirect]int32
		for i := 0; i < count; i++ {
			sectors[i] = int32(freeMap.Find())
		}
		h.sd.WriteSector(level1, encodeInts(sectors[:]))
		unassigned -= count
		j++
	}
	h.sd.WriteSector(root, encodeInts(index[:]))
	return nil
}

// Expand grows an already-allocated file to newSize, claiming only the
// sectors beyond the current tail; existing data stays in place.
func (h *FileHeader) Expand(freeMap *BitMap, newSize int) error {
	if newSize <= int(h.numBytes) {
		return nil
	}
	if newSize > MaxFileSize {
		return ErrNoSpace
	}

	oldSectors := int(h.numSectors)
	newSectors := divRoundUp(newSize, SectorSize)
	if newSectors == oldSectors {
		h.numBytes = int32(newSize)
		return nil
	}

	// Direct part first.
	n := oldSectors
	for ; n < newSectors && n < NumDirect; n++ {
		s := freeMap.Find()
		if s == -1 {
			return ErrNoSpace
		}
		h.dataSectors[n] = int32(s)
	}

	if n < newSectors {
		// Spilling into the indirect map. Load or create the root
		// index, then fill level-1 index sectors as needed, writing
		// back only the ones touched.
		var index [NumIndirect]int32
		if oldSectors > NumDirect {
			h.readIndex(int(h.dataSectors[NumDirect]), index[:])
		} else {
			root := freeMap.Find()
			if root == -1 {
				return ErrNoSpace
			}
			h.dataSectors[NumDirect] = int32(root)
		}

		var level1 [NumIndirect]int32
		loaded := -1 // which level-1 index sector is in level1
		dirty := false

		flush := func() {
			if loaded >= 0 && dirty {
				h.sd.WriteSector(int(index[loaded]), encodeInts(level1[:]))
			}
			dirty = false
		}

		for ; n < newSectors; n++ {
			j := n - NumDirect
			which := j / NumIndirect
			slot := j % NumIndirect

			if which >= NumIndirect {
				flush()
				return ErrNoSpace
			}
			if which != loaded {
				flush()
				if slot == 0 && (oldSectors-NumDirect) <= which*NumIndirect {
					// Brand-new level-1 index sector.
					s := freeMap.Find()
					if s == -1 {
						return ErrNoSpace
					}
					index[which] = int32(s)
					level1 = [NumIndirect]int32{}
				} else {
					h.readIndex(int(index[which]), level1[:])
				}
				loaded = which
			}

			s := freeMap.Find()
			if s == -1 {
				flush()
				return ErrNoSpace
			}
			level1[slot] = int32(s)
			dirty = true
		}
		flush()
		h.sd.WriteSector(int(h.dataSectors[NumDirect]), encodeInts(index[:]))
	}

	h.numBytes = int32(newSize)
	h.numSectors = int32(newSectors)
	return nil
}

// Deallocate returns every sector the file references to the free map,
// index sectors included. Each one had better be marked allocated.
func (h *FileHeader) Deallocate(freeMap *BitMap) {
	direct := int(h.numSectors)
	if direct > NumDirect {
		direct = NumDirect
	}
	for i := 0; i < direct; i++ {
		h.mustClear(freeMap, int(h.dataSectors[i]))
	}
	if int(h.numSectors) <= NumDirect {
		return
	}

	remaining := int(h.numSectors) - NumDirect
	var index [NumIndirect]int32
	h.readIndex(int(h.dataSectors[NumDirect]), index[:])

	for j := 0; remaining > 0; j++ {
		count := remaining
		if count > NumIndirect {
			count = NumIndirect
		}
		var sectors [NumIndirect]int32
		h.readIndex(int(index[j]), sectors[:])
		for i := 0; i < count; i++ {
			h.mustClear(freeMap, int(sectors[i]))
		}
		h.mustClear(freeMap, int(index[j]))
		remaining -= count
	}
	h.mustClear(freeMap, int(h.dataSectors[NumDirect]))
}

func (h *FileHeader) mustClear(freeMap *BitMap, sector int) {
	if !freeMap.Test(sector) {
		log.Panicf("filehdr: sector %d not marked allocated", sector)
	}
	freeMap.Clear(sector)
}

// ByteToSector translates a byte offset in the file to the disk sector
// holding it, through the direct map or the two-level indirect map.
func (h *FileHeader) ByteToSector(offset int) int {
	directSpan := NumDirect * SectorSize
	if offset < directSpan {
		return int(h.dataSectors[offset/SectorSize])
	}

	offset -= directSpan
	perIndex := NumIndirect * SectorSize

	var index [NumIndirect]int32
	h.readIndex(int(h.dataSectors[NumDirect]), index[:])
	var sectors [NumIndirect]int32
	h.readIndex(int(index[offset/perIndex]), sectors[:])
	return int(sectors[(offset%perIndex)/SectorSize])
}

// FetchFrom loads the header from its sector on disk.
func (h *FileHeader) FetchFrom(sector int) {
	buf := make([]byte, SectorSize)
	h.sd.ReadSector(sector, buf)
	r := bytes.NewReader(buf)
	binary.Read(r, binary.LittleEndian, &h.numBytes)
	binary.Read(r, binary.LittleEndian, &h.numSectors)
	binary.Read(r, binary.LittleEndian, &h.fileType)
	r.Read(h.createTime[:])
	r.Read(h.lastAccessTime[:])
	r.Read(h.lastModifyTime[:])
	binary.Read(r, binary.LittleEndian, &h.pathFileSector)
	binary.Read(r, binary.LittleEndian, &h.pathLength)
	binary.Read(r, binary.LittleEndian, h.dataSectors[:])
}

// WriteBack persists the header to its sector on disk.
func (h *FileHeader) WriteBack(sector int) {
	w := bytes.NewBuffer(nil)
	binary.Write(w, binary.LittleEndian, h.numBytes)
	binary.Write(w, binary.LittleEndian, h.numSectors)
	binary.Write(w, binary.LittleEndian, h.fileType)
	w.Write(h.createTime[:])
	w.Write(h.lastAccessTime[:])
	w.Write(h.lastModifyTime[:])
	binary.Write(w, binary.LittleEndian, h.pathFileSector)
	binary.Write(w, binary.LittleEndian, h.pathLength)
	binary.Write(w, binary.LittleEndian, h.dataSectors[:])

	buf := make([]byte, SectorSize)
	copy(buf, w.Bytes())
	h.sd.WriteSector(sector, buf)
}

func (h *FileHeader) stamp(field []byte) {
	for i := range field {
		field[i] = 0
	}
	copy(field, time.Now().Format(time.ANSIC))
}

func (h *FileHeader) SetCreateTime()     { h.stamp(h.createTime[:]) }
func (h *FileHeader) SetLastAccessTime() { h.stamp(h.lastAccessTime[:]) }
func (h *FileHeader) SetLastModifyTime() { h.stamp(h.lastModifyTime[:]) }

func (h *FileHeader) CreateTime() string     { return cstring(h.createTime[:]) }
func (h *FileHeader) LastAccessTime() string { return cstring(h.lastAccessTime[:]) }
func (h *FileHeader) LastModifyTime() string { return cstring(h.lastModifyTime[:]) }

// Print dumps the header and the file contents, for debugging.
func (h *FileHeader) Print() string {
	buf := bytes.NewBuffer(nil)
	fmt.Fprintf(buf, "FileHeader: type %s, size %d, created %q\n",
		h.fileType, h.numBytes, h.CreateTime())
	if p := h.Path(); p != "" {
		fmt.Fprintf(buf, "Path: %s\n", p)
	}
	fmt.Fprintf(buf, "Blocks:")
	for i := 0; i < int(h.numSectors); i++ {
		fmt.Fprintf(buf, " %d", h.ByteToSector(i*SectorSize))
	}
	fmt.Fprintf(buf, "\nContents:\n")
	data := make([]byte, SectorSize)
	for pos := 0; pos < int(h.numBytes); pos += SectorSize {
		h.sd.ReadSector(h.ByteToSector(pos), data)
		end := int(h.numBytes) - pos
		if end > SectorSize {
			end = SectorSize
		}
		for _, b := range data[:end] {
			if b >= ' ' && b <= '~' {
				fmt.Fprintf(buf, "%c", b)
			} else {
				fmt.Fprintf(buf, "\\%x", b)
			}
		}
		fmt.Fprintf(buf, "\n")
	}
	return buf.String()
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

// encodeInts packs sector numbers into one sector-sized buffer.
func encodeInts(ints []int32) []byte {
	buf := make([]byte, SectorSize)
	for i, v := range ints {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
	return buf
}

func decodeInts(buf []byte, into []int32) {
	for i := range into {
		into[i] = int32(binary.LittleEndian.Uint32(buf[i*4:]))
	}
}

// readIndex reads one index sector and unpacks its sector numbers.
func (h *FileHeader) readIndex(sector int, into []int32) {
	buf := make([]byte, SectorSize)
	h.sd.ReadSector(sector, buf)
	decodeInts(buf, into)
}
