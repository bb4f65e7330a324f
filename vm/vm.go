// Package vm implements the stack-based execution substrate: a byte-addressed
// linear memory, a small 64-bit instruction set, an in-process virtual file
// system, and the binary loader that ties them together.
//
// Everything here is deterministic and host-independent: no real clock, no
// randomness, no host filesystem. The only way bytes enter or leave a run is
// through the VFS and the stdin/stdout buffers an embedder wires up before
// calling Run or Step.
package vm

import "encoding/binary"

// Word is the VM's only value type: a 64-bit unsigned integer. Arithmetic
// wraps on overflow; there is no distinct signed domain.
type Word = uint64

const (
	// MinMemorySize is the smallest linear memory an embedder may request.
	MinMemorySize = 8 * 1024
	// DefaultMemorySize is the reference memory capacity.
	DefaultMemorySize = 1024 * 1024

	// CodeReservedEnd is where the padding region ends and the data segment
	// begins; the loader always places the data section here regardless of
	// how large the code section is.
	CodeReservedEnd = 0x2000

	// wordBytes is the width, in bytes, of a single Word.
	wordBytes = 8

	// frameRegionSize reserves room for call-frame locals above the data
	// segment before the heap begins. Chosen generously relative to
	// DefaultMemorySize; see DESIGN.md for the rationale (spec.md leaves the
	// exact bp_initial/brk_initial addresses implementation-defined).
	frameRegionSize = 0x8000

	// bpInitial is the base address of the outermost call frame. It sits
	// above the fixed data-segment window so that normal programs' data
	// never collides with locals.
	bpInitial = CodeReservedEnd + frameRegionSize

	// brkInitial is where the heap begins; sbrk grows it upward from here.
	brkInitial = bpInitial + frameRegionSize
)

// Registers holds the VM's execution state outside of linear memory and the
// value/call stacks.
type Registers struct {
	IP  uint64 // next byte to fetch
	BP  uint64 // base of the current call frame
	SP  uint64 // high-water mark of locals above BP
	Brk uint64 // heap break
}

// CallFrame is a single (return_ip, saved_bp) pair pushed by CALL and popped
// by RET.
type CallFrame struct {
	ReturnIP uint64
	SavedBP  uint64
}

// VM is one execution instance. A VM owns its memory, VFS and fd table
// exclusively; nothing is shared between instances, so no locking is
// required anywhere in this package.
type VM struct {
	Memory []byte
	Reg    Registers

	values []Word
	calls  []CallFrame

	vfs *VFS
	fds *fdTable

	stdin  []byte // bytes not yet consumed by a READ from /dev/stdin
	stdout []byte // bytes appended by WRITE to /dev/stdout, drained by the embedder

	codeSize uint32
	dataSize uint32

	exitCode  Word
	exited    bool
	lastFault *Fault

	gas      uint64
	gasLimit uint64 // 0 means unlimited
}

// New creates a VM with the given memory capacity (clamped to at least
// MinMemorySize) and a fresh VFS containing only /dev/stdin and /dev/stdout.
func New(memoryCapacity int) *VM {
	if memoryCapacity < MinMemorySize {
		memoryCapacity = MinMemorySize
	}

	m := &VM{
		Memory: make([]byte, memoryCapacity),
		vfs:    newVFS(),
		fds:    newFDTable(),
	}
	m.resetExecutionState(0)
	return m
}

// resetExecutionState clears the value stack, call stack, and registers, and
// sets the instruction pointer to entry. VFS and fd table are left intact:
// this is exactly what both the initial load and EXEC need.
func (m *VM) resetExecutionState(entry uint64) {
	m.values = m.values[:0]
	m.calls = m.calls[:0]
	m.Reg = Registers{
		IP:  entry,
		BP:  bpInitial,
		SP:  bpInitial,
		Brk: brkInitial,
	}
	m.exited = false
	m.exitCode = 0
}

// VFSPut seeds a VFS entry before the first run, e.g. to provide program
// input.
func (m *VM) VFSPut(path string, data []byte) {
	m.vfs.put(path, data)
}

// VFSGet returns the current bytes stored at path, if any.
func (m *VM) VFSGet(path string) ([]byte, bool) {
	return m.vfs.get(path)
}

// PushStdin appends bytes to the stdin buffer; a subsequent READ of
// /dev/stdin will consume them in order.
func (m *VM) PushStdin(data []byte) {
	m.stdin = append(m.stdin, data...)
}

// DrainStdout returns and clears everything written to /dev/stdout so far.
func (m *VM) DrainStdout() []byte {
	out := m.stdout
	m.stdout = nil
	return out
}

// ExitCode reports the code passed to the EXIT syscall, or 0 if the program
// halted or returned from main without calling it.
func (m *VM) ExitCode() Word {
	return m.exitCode
}

// StackTop returns the value currently on top of the value stack without
// removing it, and whether the stack was non-empty. A RET at the outermost
// call frame — the normal way a program's return value surfaces — leaves
// that value here for an embedder to read.
func (m *VM) StackTop() (Word, bool) {
	if len(m.values) == 0 {
		return 0, false
	}
	return m.values[len(m.values)-1], true
}

func loadWord(b []byte) Word {
	return binary.LittleEndian.Uint64(b)
}

func storeWord(b []byte, w Word) {
	binary.LittleEndian.PutUint64(b, w)
}
