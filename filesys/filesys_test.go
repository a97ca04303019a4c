package filesys

import (
	"bytes"
	"errors"
	"testing"

	"nachos/interrupt"
	"nachos/testutils"
	"nachos/threads"
)

func newTestFS() *FileSystem {
	intr := interrupt.New()
	sched := threads.NewScheduler(intr)
	return NewFileSystem(NewSynchDisk(sched, intr), true)
}

func hasName(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}

func pattern(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i % 251)
	}
	return buf
}

func TestFormat(t *testing.T) {
	fs := newTestFS()
	names := fs.List()
	if !hasName(names, ".") || !hasName(names, "..") {
		testutils.FatalHere(t, "fresh root lists %v, expected . and ..", names)
	}
	if fs.NumFreeSectors() >= NumSectors {
		testutils.FatalHere(t, "format allocated nothing")
	}
}

func TestCreateWriteRead(t *testing.T) {
	fs := newTestFS()
	data := pattern(300)

	if err := fs.Create("/data", len(data)); err != nil {
		testutils.FatalHere(t, "create failed: %v", err)
	}
	of, err := fs.Open("/data")
	if err != nil {
		testutils.FatalHere(t, "open failed: %v", err)
	}
	if of.Length() != len(data) {
		testutils.FatalHere(t, "length %d, expected %d", of.Length(), len(data))
	}
	if n := of.WriteAt(data, 0); n != len(data) {
		testutils.FatalHere(t, "wrote %d bytes, expected %d", n, len(data))
	}

	back, err := fs.Open("/data")
	if err != nil {
		testutils.FatalHere(t, "reopen failed: %v", err)
	}
	got := make([]byte, len(data))
	if n := back.ReadAt(got, 0); n != len(data) {
		testutils.FatalHere(t, "read %d bytes, expected %d", n, len(data))
	}
	if !bytes.Equal(got, data) {
		testutils.FatalHere(t, "data mismatch after roundtrip")
	}
}

func TestSeekReadWrite(t *testing.T) {
	fs := newTestFS()
	if err := fs.Create("/seek", 64); err != nil {
		testutils.FatalHere(t, "create failed: %v", err)
	}
	of, _ := fs.Open("/seek")
	of.Write([]byte("hello "))
	of.Write([]byte("world"))

	of.Seek(6)
	buf := make([]byte, 5)
	of.Read(buf)
	if string(buf) != "world" {
		testutils.FatalHere(t, "got %q at offset 6, expected world", buf)
	}
}

func TestWritePastEndExpands(t *testing.T) {
	fs := newTestFS()
	head := pattern(100)
	if err := fs.Create("/grow", len(head)); err != nil {
		testutils.FatalHere(t, "create failed: %v", err)
	}
	of, _ := fs.Open("/grow")
	of.WriteAt(head, 0)

	tail := pattern(900) // spills into the indirect map
	if n := of.WriteAt(tail, len(head)); n != len(tail) {
		testutils.FatalHere(t, "extending write wrote %d, expected %d", n, len(tail))
	}

	back, _ := fs.Open("/grow")
	if back.Length() != len(head)+len(tail) {
		testutils.FatalHere(t, "length %d after expand, expected %d",
			back.Length(), len(head)+len(tail))
	}
	got := make([]byte, len(head)+len(tail))
	back.ReadAt(got, 0)
	if !bytes.Equal(got[:len(head)], head) {
		testutils.FatalHere(t, "old contents damaged by expand")
	}
	if !bytes.Equal(got[len(head):], tail) {
		testutils.FatalHere(t, "new contents wrong after expand")
	}
}

func TestLargeFileThroughIndirect(t *testing.T) {
	fs := newTestFS()
	size := (NumDirect + NumIndirect + 3) * SectorSize
	data := pattern(size)

	if err := fs.Create("/big", size); err != nil {
		testutils.FatalHere(t, "create failed: %v", err)
	}
	of, _ := fs.Open("/big")
	of.WriteAt(data, 0)

	back, _ := fs.Open("/big")
	got := make([]byte, size)
	if n := back.ReadAt(got, 0); n != size {
		testutils.FatalHere(t, "read %d, expected %d", n, size)
	}
	if !bytes.Equal(got, data) {
		testutils.FatalHere(t, "data mismatch through the indirect map")
	}
}

func TestHierarchy(t *testing.T) {
	fs := newTestFS()
	if err := fs.Create("/a", -1); err != nil {
		testutils.FatalHere(t, "mkdir /a: %v", err)
	}
	if err := fs.Create("/a/b", -1); err != nil {
		testutils.FatalHere(t, "mkdir /a/b: %v", err)
	}
	if err := fs.Create("/a/b/c", 37); err != nil {
		testutils.FatalHere(t, "create /a/b/c: %v", err)
	}

	data := pattern(37)
	of, err := fs.Open("/a/b/c")
	if err != nil {
		testutils.FatalHere(t, "open /a/b/c: %v", err)
	}
	of.WriteAt(data, 0)

	back, _ := fs.Open("/a/b/c")
	got := make([]byte, 37)
	back.ReadAt(got, 0)
	if !bytes.Equal(got, data) {
		testutils.FatalHere(t, "nested file data mismatch")
	}
	if got := back.Header().Path(); got != "/a/b/c" {
		testutils.ErrorHere(t, "path reconstructed as %q, expected /a/b/c", got)
	}

	if _, err := fs.Open("/a/b/c/d"); !errors.Is(err, ErrNotDirectory) {
		testutils.ErrorHere(t, "descending through a file: got %v, expected %v",
			err, ErrNotDirectory)
	}
	if _, err := fs.Open("/a/nope"); !errors.Is(err, ErrNotFound) {
		testutils.ErrorHere(t, "got %v, expected %v", err, ErrNotFound)
	}
}

func TestCreateCollision(t *testing.T) {
	fs := newTestFS()
	if err := fs.Create("/twice", 10); err != nil {
		testutils.FatalHere(t, "create failed: %v", err)
	}
	if err := fs.Create("/twice", 10); !errors.Is(err, ErrNameCollision) {
		testutils.FatalHere(t, "got %v, expected %v", err, ErrNameCollision)
	}
}

func TestRemoveRestoresBitmap(t *testing.T) {
	fs := newTestFS()
	before := fs.FreeMapBytes()

	if err := fs.Create("/victim", 500); err != nil {
		testutils.FatalHere(t, "create failed: %v", err)
	}
	if bytes.Equal(fs.FreeMapBytes(), before) {
		testutils.FatalHere(t, "create did not touch the bitmap")
	}
	if err := fs.Remove("/victim"); err != nil {
		testutils.FatalHere(t, "remove failed: %v", err)
	}
	if !bytes.Equal(fs.FreeMapBytes(), before) {
		testutils.FatalHere(t, "remove leaked sectors")
	}
}

func TestRemoveDirectory(t *testing.T) {
	fs := newTestFS()
	if err := fs.Create("/dir", -1); err != nil {
		testutils.FatalHere(t, "mkdir: %v", err)
	}
	if err := fs.Create("/dir/file", 10); err != nil {
		testutils.FatalHere(t, "create: %v", err)
	}
	if err := fs.Remove("/dir"); !errors.Is(err, ErrNotEmpty) {
		testutils.FatalHere(t, "got %v removing non-empty dir, expected %v",
			err, ErrNotEmpty)
	}
	if err := fs.Remove("/dir/file"); err != nil {
		testutils.FatalHere(t, "remove file: %v", err)
	}
	if err := fs.Remove("/dir"); err != nil {
		testutils.FatalHere(t, "remove emptied dir: %v", err)
	}
	if _, err := fs.Open("/dir"); !errors.Is(err, ErrNotFound) {
		testutils.FatalHere(t, "removed dir still opens")
	}
}

func TestRemoveErrors(t *testing.T) {
	fs := newTestFS()
	if err := fs.Remove("/missing"); !errors.Is(err, ErrNotFound) {
		testutils.ErrorHere(t, "got %v, expected %v", err, ErrNotFound)
	}
	if err := fs.Remove("/"); !errors.Is(err, ErrPathError) {
		testutils.ErrorHere(t, "removing root: got %v, expected %v", err, ErrPathError)
	}
	if err := fs.Create("relative", 10); !errors.Is(err, ErrPathError) {
		testutils.ErrorHere(t, "relative path: got %v, expected %v", err, ErrPathError)
	}
}

func TestDirectoryGrowsPastInitialEntries(t *testing.T) {
	fs := newTestFS()
	var names []string
	for i := 0; i < NumDirEntries+5; i++ {
		name := "/f" + string(rune('a'+i))
		names = append(names, name)
		if err := fs.Create(name, 8); err != nil {
			testutils.FatalHere(t, "create %s: %v", name, err)
		}
	}
	listed := fs.List()
	for _, name := range names {
		if !hasName(listed, name[1:]) {
			testutils.FatalHere(t, "%s missing from %v", name, listed)
		}
	}
}

func TestPipe(t *testing.T) {
	fs := newTestFS()
	if err := fs.Create("/pipe", MaxPipeLength); err != nil {
		testutils.FatalHere(t, "create pipe backing file: %v", err)
	}
	of, _ := fs.Open("/pipe")
	pipe := NewPipeFile(of)

	if err := pipe.Write([]byte("hello")); err != nil {
		testutils.FatalHere(t, "write: %v", err)
	}
	if err := pipe.Write([]byte(" world")); err != nil {
		testutils.FatalHere(t, "write: %v", err)
	}
	if err := pipe.Write(make([]byte, MaxPipeLength)); !errors.Is(err, ErrPipeFull) {
		testutils.FatalHere(t, "got %v overfilling pipe, expected %v", err, ErrPipeFull)
	}

	buf := make([]byte, MaxPipeLength)
	n := pipe.Read(buf)
	if string(buf[:n]) != "hello world" {
		testutils.FatalHere(t, "drained %q, expected hello world", buf[:n])
	}
	if pipe.Length() != 0 {
		testutils.FatalHere(t, "pipe length %d after drain, expected 0", pipe.Length())
	}
	if err := pipe.Write([]byte("again")); err != nil {
		testutils.FatalHere(t, "write after drain: %v", err)
	}
}

// Writers sleep on disk I/O mid-append, so a second writer can run
// before the first finishes. Both payloads must land intact.
func TestPipeConcurrentWriters(t *testing.T) {
	fs := newTestFS()
	if err := fs.Create("/pipe", MaxPipeLength); err != nil {
		testutils.FatalHere(t, "create pipe backing file: %v", err)
	}
	of, _ := fs.Open("/pipe")
	pipe := NewPipeFile(of)

	sched := fs.sd.Scheduler()
	write := func(payload string) *threads.Thread {
		th := sched.NewThread(payload)
		th.Fork(func(interface{}) {
			if err := pipe.Write([]byte(payload)); err != nil {
				testutils.ErrorHere(t, "write %q: %v", payload, err)
			}
		}, nil)
		return th
	}
	a := write("AAAA")
	b := write("BBBB")
	a.Join()
	b.Join()

	if pipe.Length() != 8 {
		testutils.FatalHere(t, "pipe length %d after two writes, expected 8", pipe.Length())
	}
	buf := make([]byte, MaxPipeLength)
	n := pipe.Read(buf)
	if got := string(buf[:n]); got != "AAAABBBB" && got != "BBBBAAAA" {
		testutils.FatalHere(t, "drained %q, expected both payloads intact", got)
	}
}

func TestTimestamps(t *testing.T) {
	fs := newTestFS()
	if err := fs.Create("/stamped", 16); err != nil {
		testutils.FatalHere(t, "create: %v", err)
	}
	of, _ := fs.Open("/stamped")
	hdr := of.Header()
	if hdr.CreateTime() == "" {
		testutils.ErrorHere(t, "no create time recorded")
	}
	if hdr.LastModifyTime() == "" {
		testutils.ErrorHere(t, "no modify time recorded")
	}
}
