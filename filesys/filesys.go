package filesys

import (
	"bytes"
	"fmt"
	"log"
	"strings"

	"nachos/interrupt"
	"nachos/threads"
)

const (
	// FreeMapSector holds the header of the free-sector bitmap file,
	// DirectorySector the header of the root directory. Both are
	// claimed at format time and never move.
	FreeMapSector   = 0
	DirectorySector = 1

	// FreeMapFileSize is one bit per sector.
	FreeMapFileSize = NumSectors / 8
)

// FileSystem is the façade over the synchronous disk: hierarchical
// pathname lookup, file and directory creation and removal, and in-place
// file growth against the on-disk free map.
//
// The free map file stays open for the life of the file system; its
// header never changes size. Directory files can grow, so they are
// opened fresh per operation rather than cached.
type FileSystem struct {
	sd          *SynchDisk
	freeMapFile *OpenFile
}

// NewFileSystem attaches to the disk, formatting it first when asked.
// Formatting lays down the free map, the root directory with its Name
// File and Path File, and the "." and ".." entries.
func NewFileSystem(sd *SynchDisk, format bool) *FileSystem {
	fs := &FileSystem{sd: sd}
	if !format {
		fs.freeMapFile = newOpenFile(sd, FreeMapSector, fs)
		return fs
	}

	log.Printf("filesys: formatting disk, %d sectors", NumSectors)

	freeMap := NewBitMap(NumSectors)
	freeMap.Mark(FreeMapSector)
	freeMap.Mark(DirectorySector)

	mapHdr := NewFileHeader(sd)
	if err := mapHdr.Allocate(freeMap, FreeMapFileSize, BitMapFile); err != nil {
		log.Panicf("filesys: format: %v", err)
	}

	dirHdr := NewFileHeader(sd)
	if err := dirHdr.Allocate(freeMap, DirectoryFileSize(NumDirEntries), DirectoryFile); err != nil {
		log.Panicf("filesys: format: %v", err)
	}

	nameSector := freeMap.Find()
	nameHdr := NewFileHeader(sd)
	if err := nameHdr.Allocate(freeMap, SectorSize, NameFile); err != nil {
		log.Panicf("filesys: format: %v", err)
	}

	rootPath := []byte{'/', 0}
	pathSector := freeMap.Find()
	pathHdr := NewFileHeader(sd)
	if err := pathHdr.Allocate(freeMap, len(rootPath), PathFile); err != nil {
		log.Panicf("filesys: format: %v", err)
	}
	dirHdr.SetPath(pathSector, len(rootPath))

	for _, h := range []*FileHeader{mapHdr, dirHdr, nameHdr, pathHdr} {
		h.SetCreateTime()
		h.SetLastAccessTime()
		h.SetLastModifyTime()
	}
	mapHdr.WriteBack(FreeMapSector)
	dirHdr.WriteBack(DirectorySector)
	nameHdr.WriteBack(nameSector)
	pathHdr.WriteBack(pathSector)

	fs.freeMapFile = newOpenFile(sd, FreeMapSector, fs)
	freeMap.WriteBack(fs.freeMapFile)

	newOpenFile(sd, pathSector, fs).WriteAt(rootPath, 0)

	root := NewDirectory(sd, fs, NumDirEntries)
	root.SetNameFile(nameSector)
	if err := root.Add(".", DirectorySector); err != nil {
		log.Panicf("filesys: format: %v", err)
	}
	if err := root.Add("..", DirectorySector); err != nil {
		log.Panicf("filesys: format: %v", err)
	}
	root.WriteBack(newOpenFile(sd, DirectorySector, fs))
	return fs
}

// NewDiskFileSystem builds the whole storage stack on a fresh simulated
// disk: synchronous disk layer plus a formatted file system.
func NewDiskFileSystem(sched *threads.Scheduler, intr *interrupt.Interrupt) *FileSystem {
	return NewFileSystem(NewSynchDisk(sched, intr), true)
}

func (fs *FileSystem) SynchDisk() *SynchDisk { return fs.sd }

// loadDirectory reads a directory image given its header sector. The
// table size is recovered from the backing file's length.
func (fs *FileSystem) loadDirectory(sector int) (*Directory, *OpenFile) {
	file := newOpenFile(fs.sd, sector, fs)
	dir := NewDirectory(fs.sd, fs, (file.Length()-8)/DirectoryEntrySize)
	dir.FetchFrom(file)
	return dir, file
}

// findDirectory walks every component of an absolute path except the
// last, returning the containing directory's header sector and the
// final component. The root itself comes back as (DirectorySector, "").
func (fs *FileSystem) findDirectory(path string) (int, string, error) {
	if !strings.HasPrefix(path, "/") {
		return -1, "", ErrPathError
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 1 && parts[0] == "" {
		return DirectorySector, "", nil
	}

	sector := DirectorySector
	for _, component := range parts[:len(parts)-1] {
		if component == "" {
			return -1, "", ErrPathError
		}
		dir, _ := fs.loadDirectory(sector)
		next := dir.Find(component)
		if next == -1 {
			return -1, "", ErrNotFound
		}
		hdr := NewFileHeader(fs.sd)
		hdr.FetchFrom(next)
		if hdr.Type() != DirectoryFile {
			return -1, "", ErrNotDirectory
		}
		sector = next
	}
	return sector, parts[len(parts)-1], nil
}

// Create makes a file of initialSize bytes at an absolute path, or a
// directory when initialSize is -1. Every new file gets a Path File
// recording its absolute name; a new directory additionally gets a Name
// File and its "." and ".." entries.
//
// The bitmap is written back before the parent directory so any growth
// of the directory or Name File during Add sees the current free map.
// Failures before that point leave the disk unchanged.
func (fs *FileSystem) Create(path string, initialSize int) error {
	isDir := initialSize == -1

	dirSector, name, err := fs.findDirectory(path)
	if err != nil {
		return err
	}
	if name == "" {
		return ErrPathError
	}

	dir, dirFile := fs.loadDirectory(dirSector)
	if dir.Find(name) != -1 {
		return ErrNameCollision
	}

	freeMap := NewBitMap(NumSectors)
	freeMap.FetchFrom(fs.freeMapFile)

	hdrSector := freeMap.Find()
	if hdrSector == -1 {
		return ErrNoSpace
	}

	pathBytes := append([]byte(path), 0)
	pathSector := freeMap.Find()
	if pathSector == -1 {
		return ErrNoSpace
	}
	pathHdr := NewFileHeader(fs.sd)
	if err := pathHdr.Allocate(freeMap, len(pathBytes), PathFile); err != nil {
		return err
	}

	hdr := NewFileHeader(fs.sd)
	nameSector := -1
	if isDir {
		nameSector = freeMap.Find()
		if nameSector == -1 {
			return ErrNoSpace
		}
		nameHdr := NewFileHeader(fs.sd)
		if err := nameHdr.Allocate(freeMap, SectorSize, NameFile); err != nil {
			return err
		}
		if err := hdr.Allocate(freeMap, DirectoryFileSize(NumDirEntries), DirectoryFile); err != nil {
			return err
		}
		nameHdr.SetCreateTime()
		nameHdr.SetLastAccessTime()
		nameHdr.SetLastModifyTime()
		nameHdr.WriteBack(nameSector)
	} else {
		if err := hdr.Allocate(freeMap, initialSize, NormalFile); err != nil {
			return err
		}
	}
	hdr.SetPath(pathSector, len(pathBytes))
	hdr.SetCreateTime()
	hdr.SetLastAccessTime()
	hdr.SetLastModifyTime()

	pathHdr.SetCreateTime()
	pathHdr.SetLastAccessTime()
	pathHdr.SetLastModifyTime()

	hdr.WriteBack(hdrSector)
	pathHdr.WriteBack(pathSector)
	freeMap.WriteBack(fs.freeMapFile)

	newOpenFile(fs.sd, pathSector, fs).WriteAt(pathBytes, 0)

	if isDir {
		child := NewDirectory(fs.sd, fs, NumDirEntries)
		child.SetNameFile(nameSector)
		if err := child.Add(".", hdrSector); err != nil {
			return err
		}
		if err := child.Add("..", dirSector); err != nil {
			return err
		}
		child.WriteBack(newOpenFile(fs.sd, hdrSector, fs))
	}

	if err := dir.Add(name, hdrSector); err != nil {
		return err
	}
	dir.WriteBack(dirFile)
	return nil
}

// Open returns a handle on an existing file or directory.
func (fs *FileSystem) Open(path string) (*OpenFile, error) {
	dirSector, name, err := fs.findDirectory(path)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return newOpenFile(fs.sd, DirectorySector, fs), nil
	}
	dir, _ := fs.loadDirectory(dirSector)
	sector := dir.Find(name)
	if sector == -1 {
		return nil, ErrNotFound
	}
	return newOpenFile(fs.sd, sector, fs), nil
}

// Remove deletes a file, returning its data sectors, header, and Path
// File to the free map. Directories must be empty; their Name File is
// freed too. The root cannot be removed.
func (fs *FileSystem) Remove(path string) error {
	dirSector, name, err := fs.findDirectory(path)
	if err != nil {
		return err
	}
	if name == "" || name == "." || name == ".." {
		return ErrPathError
	}

	dir, dirFile := fs.loadDirectory(dirSector)
	sector := dir.Find(name)
	if sector == -1 {
		return ErrNotFound
	}

	hdr := NewFileHeader(fs.sd)
	hdr.FetchFrom(sector)

	nameHdrSector := -1
	if hdr.Type() == DirectoryFile {
		target, _ := fs.loadDirectory(sector)
		if !target.IsEmpty() {
			return ErrNotEmpty
		}
		nameHdrSector = target.NameFileSector()
	}

	freeMap := NewBitMap(NumSectors)
	freeMap.FetchFrom(fs.freeMapFile)

	hdr.Deallocate(freeMap)
	freeMap.Clear(sector)

	if hdr.PathFileSector() != -1 {
		pathHdr := NewFileHeader(fs.sd)
		pathHdr.FetchFrom(hdr.PathFileSector())
		pathHdr.Deallocate(freeMap)
		freeMap.Clear(hdr.PathFileSector())
	}
	if nameHdrSector != -1 {
		nameHdr := NewFileHeader(fs.sd)
		nameHdr.FetchFrom(nameHdrSector)
		nameHdr.Deallocate(freeMap)
		freeMap.Clear(nameHdrSector)
	}

	if err := dir.Remove(name); err != nil {
		return err
	}
	freeMap.WriteBack(fs.freeMapFile)
	dir.WriteBack(dirFile)
	return nil
}

// ExpandFile grows a file in place to newSize bytes, claiming sectors
// from the on-disk free map and persisting both the map and the header.
func (fs *FileSystem) ExpandFile(hdr *FileHeader, hdrSector, newSize int) error {
	freeMap := NewBitMap(NumSectors)
	freeMap.FetchFrom(fs.freeMapFile)
	if err := hdr.Expand(freeMap, newSize); err != nil {
		return err
	}
	freeMap.WriteBack(fs.freeMapFile)
	hdr.WriteBack(hdrSector)
	return nil
}

// List returns the names in the root directory.
func (fs *FileSystem) List() []string {
	dir, _ := fs.loadDirectory(DirectorySector)
	return dir.List()
}

// NumFreeSectors reports how many sectors the on-disk bitmap shows
// unallocated.
func (fs *FileSystem) NumFreeSectors() int {
	freeMap := NewBitMap(NumSectors)
	freeMap.FetchFrom(fs.freeMapFile)
	return freeMap.NumClear()
}

// FreeMapBytes snapshots the raw on-disk bitmap.
func (fs *FileSystem) FreeMapBytes() []byte {
	freeMap := NewBitMap(NumSectors)
	freeMap.FetchFrom(fs.freeMapFile)
	return freeMap.Bytes()
}

// Print dumps the bitmap and the whole directory tree.
func (fs *FileSystem) Print() string {
	buf := bytes.NewBuffer(nil)

	freeMap := NewBitMap(NumSectors)
	freeMap.FetchFrom(fs.freeMapFile)
	fmt.Fprintf(buf, "Bit map of free disk sectors:\n%s", freeMap.Print())

	dirHdr := NewFileHeader(fs.sd)
	dirHdr.FetchFrom(DirectorySector)
	fmt.Fprintf(buf, "Root directory file header:\n%s", dirHdr.Print())

	dir, _ := fs.loadDirectory(DirectorySector)
	buf.WriteString(dir.Print())
	return buf.String()
}
