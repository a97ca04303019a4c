package filesys

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// DirectoryEntrySize is the encoded size of one table entry:
// (inUse, sector, namePosition, nameLength), each 4 bytes.
const DirectoryEntrySize = 16

// NumDirEntries is the initial capacity of a new directory; the table
// grows one entry at a time once it fills.
const NumDirEntries = 10

// DirectoryFileSize is the on-disk size of a directory with n entries:
// the entry table followed by the name-file header sector and the next
// free name-file position.
func DirectoryFileSize(n int) int {
	return n*DirectoryEntrySize + 8
}

type DirectoryEntry struct {
	InUse        bool
	Sector       int32
	NamePosition int32
	NameLength   int32
}

// Directory is a table of fixed-size entries mapping names to header
// sectors. Names are not stored in the entries: each directory owns a
// Name File, and an entry records only the position and length of its
// name there. Removing an entry leaves its name bytes behind in the
// Name File; they are never reclaimed.
type Directory struct {
	sd        *SynchDisk
	fs        *FileSystem // nil only while formatting, before growth can matter
	table     []DirectoryEntry
	tableSize int

	nameFileHdrSector int32
	nameFilePosition  int32
}

func NewDirectory(sd *SynchDisk, fs *FileSystem, size int) *Directory {
	return &Directory{
		sd:                sd,
		fs:                fs,
		table:             make([]DirectoryEntry, size),
		tableSize:         size,
		nameFileHdrSector: -1,
	}
}

// SetNameFile points a freshly formatted directory at its Name File
// header sector.
func (d *Directory) SetNameFile(sector int) {
	d.nameFileHdrSector = int32(sector)
	d.nameFilePosition = 0
}

func (d *Directory) NameFileSector() int {
	return int(d.nameFileHdrSector)
}

// FetchFrom reads the directory body from its backing file.
func (d *Directory) FetchFrom(file *OpenFile) {
	raw := make([]byte, DirectoryFileSize(d.tableSize))
	file.ReadAt(raw, 0)
	r := bytes.NewReader(raw)
	for i := range d.table {
		var inUse int32
		binary.Read(r, binary.LittleEndian, &inUse)
		d.table[i].InUse = inUse != 0
		binary.Read(r, binary.LittleEndian, &d.table[i].Sector)
		binary.Read(r, binary.LittleEndian, &d.table[i].NamePosition)
		binary.Read(r, binary.LittleEndian, &d.table[i].NameLength)
	}
	binary.Read(r, binary.LittleEndian, &d.nameFileHdrSector)
	binary.Read(r, binary.LittleEndian, &d.nameFilePosition)
}

// WriteBack writes the directory body to its backing file, growing it
// if the table was extended.
func (d *Directory) WriteBack(file *OpenFile) {
	w := bytes.NewBuffer(nil)
	for i := range d.table {
		var inUse int32
		if d.table[i].InUse {
			inUse = 1
		}
		binary.Write(w, binary.LittleEndian, inUse)
		binary.Write(w, binary.LittleEndian, d.table[i].Sector)
		binary.Write(w, binary.LittleEndian, d.table[i].NamePosition)
		binary.Write(w, binary.LittleEndian, d.table[i].NameLength)
	}
	binary.Write(w, binary.LittleEndian, d.nameFileHdrSector)
	binary.Write(w, binary.LittleEndian, d.nameFilePosition)
	file.WriteAt(w.Bytes(), 0)
}

// entryName reads one entry's name out of the Name File.
func (d *Directory) entryName(nameFile *OpenFile, i int) string {
	buf := make([]byte, d.table[i].NameLength)
	nameFile.ReadAt(buf, int(d.table[i].NamePosition))
	return cstring(buf)
}

func (d *Directory) nameFile() *OpenFile {
	if d.nameFileHdrSector == -1 {
		panic("directory: no name file")
	}
	return newOpenFile(d.sd, int(d.nameFileHdrSector), d.fs)
}

// FindIndex locates a name in the table, or -1.
func (d *Directory) FindIndex(name string) int {
	nameFile := d.nameFile()
	for i := range d.table {
		if d.table[i].InUse && d.entryName(nameFile, i) == name {
			return i
		}
	}
	return -1
}

// Find returns the header sector for a name, or -1.
func (d *Directory) Find(name string) int {
	if i := d.FindIndex(name); i != -1 {
		return int(d.table[i].Sector)
	}
	return -1
}

// Add installs a name-to-sector mapping. The NUL-terminated name is
// appended to the Name File; if every slot is taken the table grows by
// one entry (entries are never renumbered).
func (d *Directory) Add(name string, newSector int) error {
	if d.FindIndex(name) != -1 {
		return ErrNameCollision
	}

	i := -1
	for j := range d.table {
		if !d.table[j].InUse {
			i = j
			break
		}
	}
	if i == -1 {
		d.table = append(d.table, DirectoryEntry{})
		d.tableSize++
		i = d.tableSize - 1
	}

	nameFile := d.nameFile()
	encoded := append([]byte(name), 0)
	nameFile.WriteAt(encoded, int(d.nameFilePosition))

	d.table[i] = DirectoryEntry{
		InUse:        true,
		Sector:       int32(newSector),
		NamePosition: d.nameFilePosition,
		NameLength:   int32(len(encoded)),
	}
	d.nameFilePosition += int32(len(encoded))
	return nil
}

// Remove frees the entry for a name. The name bytes stay in the Name
// File.
func (d *Directory) Remove(name string) error {
	i := d.FindIndex(name)
	if i == -1 {
		return ErrNotFound
	}
	d.table[i].InUse = false
	return nil
}

// IsEmpty reports whether the directory holds nothing beyond the two
// reserved "." and ".." entries.
func (d *Directory) IsEmpty() bool {
	nameFile := d.nameFile()
	for i := range d.table {
		if !d.table[i].InUse {
			continue
		}
		name := d.entryName(nameFile, i)
		if name != "." && name != ".." {
			return false
		}
	}
	return true
}

// List returns the in-use names in table order.
func (d *Directory) List() []string {
	nameFile := d.nameFile()
	var names []string
	for i := range d.table {
		if d.table[i].InUse {
			names = append(names, d.entryName(nameFile, i))
		}
	}
	return names
}

// Print dumps the directory and, recursively, any subdirectories.
func (d *Directory) Print() string {
	buf := bytes.NewBuffer(nil)
	fmt.Fprintf(buf, "Directory contents:\n")
	nameFile := d.nameFile()
	for i := range d.table {
		if !d.table[i].InUse {
			continue
		}
		name := d.entryName(nameFile, i)
		if name == "." || name == ".." {
			continue
		}
		fmt.Fprintf(buf, "Name: %s, Sector: %d\n", name, d.table[i].Sector)
		hdr := NewFileHeader(d.sd)
		hdr.FetchFrom(int(d.table[i].Sector))
		buf.WriteString(hdr.Print())
		if hdr.Type() == DirectoryFile {
			sub := NewDirectory(d.sd, d.fs, (hdr.FileLength()-8)/DirectoryEntrySize)
			sub.FetchFrom(newOpenFile(d.sd, int(d.table[i].Sector), d.fs))
			buf.WriteString(sub.Print())
		}
	}
	return buf.String()
}
