package filesys

// OpenFile is a handle bound to one file header sector, supporting
// positioned and sequential reads and writes. Writing past the end of
// the file extends it in place through the free map.
type OpenFile struct {
	sd        *SynchDisk
	fs        *FileSystem // nil for raw handles that never grow
	hdr       *FileHeader
	hdrSector int
	seek      int
}

func newOpenFile(sd *SynchDisk, sector int, fs *FileSystem) *OpenFile {
	hdr := NewFileHeader(sd)
	hdr.FetchFrom(sector)
	return &OpenFile{
		sd:        sd,
		fs:        fs,
		hdr:       hdr,
		hdrSector: sector,
	}
}

func (of *OpenFile) Length() int         { return of.hdr.FileLength() }
func (of *OpenFile) Header() *FileHeader { return of.hdr }
func (of *OpenFile) Sector() int         { return of.hdrSector }

func (of *OpenFile) Seek(position int) {
	of.seek = position
}

// Read reads from the seek position, advancing it.
func (of *OpenFile) Read(into []byte) int {
	n := of.ReadAt(into, of.seek)
	of.seek += n
	return n
}

// Write writes at the seek position, advancing it.
func (of *OpenFile) Write(from []byte) int {
	n := of.WriteAt(from, of.seek)
	of.seek += n
	return n
}

// ReadAt reads up to len(into) bytes at the given file offset,
// returning how many were read; reading at or past the end returns 0.
func (of *OpenFile) ReadAt(into []byte, position int) int {
	fileLength := of.hdr.FileLength()
	if position < 0 || position >= fileLength || len(into) == 0 {
		return 0
	}
	numBytes := len(into)
	if position+numBytes > fileLength {
		numBytes = fileLength - position
	}

	firstSector := position / SectorSize
	lastSector := (position + numBytes - 1) / SectorSize

	// Read the covering sectors whole, then carve out the span.
	buf := make([]byte, (lastSector-firstSector+1)*SectorSize)
	for s := firstSector; s <= lastSector; s++ {
		of.sd.ReadSector(of.hdr.ByteToSector(s*SectorSize),
			buf[(s-firstSector)*SectorSize:(s-firstSector+1)*SectorSize])
	}
	copy(into[:numBytes], buf[position-firstSector*SectorSize:])

	of.hdr.SetLastAccessTime()
	return numBytes
}

// WriteAt writes len(from) bytes at the given file offset, extending
// the file first if the span reaches past the current end. Returns the
// number of bytes written, 0 if the file could not be extended.
func (of *OpenFile) WriteAt(from []byte, position int) int {
	if position < 0 || len(from) == 0 {
		return 0
	}
	if position+len(from) > of.hdr.FileLength() {
		if of.fs == nil {
			return 0
		}
		if err := of.fs.ExpandFile(of.hdr, of.hdrSector, position+len(from)); err != nil {
			return 0
		}
	}

	numBytes := len(from)
	firstSector := position / SectorSize
	lastSector := (position + numBytes - 1) / SectorSize

	buf := make([]byte, (lastSector-firstSector+1)*SectorSize)

	// Partial first/last sectors must be read in so the bytes around
	// the span survive.
	firstAligned := position%SectorSize == 0
	lastAligned := (position+numBytes)%SectorSize == 0
	if !firstAligned {
		of.sd.ReadSector(of.hdr.ByteToSector(firstSector*SectorSize), buf[:SectorSize])
	}
	if !lastAligned && (lastSector != firstSector || firstAligned) {
		of.sd.ReadSector(of.hdr.ByteToSector(lastSector*SectorSize),
			buf[(lastSector-firstSector)*SectorSize:])
	}

	copy(buf[position-firstSector*SectorSize:], from)
	for s := firstSector; s <= lastSector; s++ {
		of.sd.WriteSector(of.hdr.ByteToSector(s*SectorSize),
			buf[(s-firstSector)*SectorSize:(s-firstSector+1)*SectorSize])
	}

	of.hdr.SetLastAccessTime()
	of.hdr.SetLastModifyTime()
	of.hdr.WriteBack(of.hdrSector)
	return numBytes
}
