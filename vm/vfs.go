package vm

// VFS is the in-process replacement for a host filesystem: a mapping from
// path to a byte vector. There is no directory structure and no metadata.
// /dev/stdin and /dev/stdout are special: stdout is append-only, and READs
// of stdin consume the buffer the embedder fills via PushStdin. WRITEs to
// stdin are not rejected; they land in its VFS entry, which those READs do
// not consult.
type VFS struct {
	files map[string][]byte
}

const (
	pathStdin  = "/dev/stdin"
	pathStdout = "/dev/stdout"
)

func newVFS() *VFS {
	return &VFS{files: map[string][]byte{
		pathStdin:  nil,
		pathStdout: nil,
	}}
}

func (v *VFS) get(path string) ([]byte, bool) {
	b, ok := v.files[path]
	return b, ok
}

func (v *VFS) put(path string, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	v.files[path] = cp
}

// openOrCreate returns the current contents of path, creating an empty
// entry if it doesn't already exist.
func (v *VFS) openOrCreate(path string) []byte {
	if b, ok := v.files[path]; ok {
		return b
	}
	v.files[path] = nil
	return nil
}

// readAt copies up to len(dst) bytes from path starting at cursor, returning
// the number of bytes actually copied (short reads are not an error).
func (v *VFS) readAt(path string, cursor uint64, dst []byte) int {
	data := v.files[path]
	if cursor >= uint64(len(data)) {
		return 0
	}
	n := copy(dst, data[cursor:])
	return n
}

// writeAt overwrites bytes starting at cursor, extending the file if the
// write runs past the current end. stdout is append-only: writes there
// always land at the current end regardless of cursor.
func (v *VFS) writeAt(path string, cursor uint64, src []byte) int {
	if path == pathStdout {
		v.files[path] = append(v.files[path], src...)
		return len(src)
	}

	data := v.files[path]
	end := cursor + uint64(len(src))
	if end > uint64(len(data)) {
		grown := make([]byte, end)
		copy(grown, data)
		data = grown
	}
	copy(data[cursor:end], src)
	v.files[path] = data
	return len(src)
}

// fdEntry is the (path, cursor) pair a file descriptor maps to.
type fdEntry struct {
	path   string
	cursor uint64
}

// fdTable maps integer file descriptors to fdEntry. FDs 0 and 1 are
// reserved for stdin/stdout; new fds start at 3 and increase monotonically,
// and are never reused within a run.
type fdTable struct {
	entries map[uint64]*fdEntry
	next    uint64
}

func newFDTable() *fdTable {
	t := &fdTable{
		entries: make(map[uint64]*fdEntry),
		next:    3,
	}
	t.entries[0] = &fdEntry{path: pathStdin}
	t.entries[1] = &fdEntry{path: pathStdout}
	return t
}

// open allocates a fresh fd bound to path at cursor 0.
func (t *fdTable) open(path string) uint64 {
	fd := t.next
	t.next++
	t.entries[fd] = &fdEntry{path: path}
	return fd
}

func (t *fdTable) get(fd uint64) (*fdEntry, bool) {
	e, ok := t.entries[fd]
	return e, ok
}
