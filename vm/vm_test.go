package vm

import "testing"

func assert(t *testing.T, cond bool, msg string) {
	t.Helper()
	if !cond {
		t.Fatal(msg)
	}
}

func encode(entry uint32, code []byte, data []byte) []byte {
	img, err := EncodeImage(code, data, entry)
	if err != nil {
		panic(err)
	}
	return img
}

func push(w Word) []byte {
	b := make([]byte, 9)
	b[0] = byte(Push)
	storeWord(b[1:], w)
	return b
}

func cat(chunks ...[]byte) []byte {
	var out []byte
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

func mustRun(t *testing.T, m *VM) StepResult {
	t.Helper()
	r := m.Run()
	if r == Faulted {
		t.Fatalf("unexpected fault: %v", m.LastFault())
	}
	return r
}

func TestArithmetic(t *testing.T) {
	code := cat(
		push(10),
		push(20),
		[]byte{byte(Add)},
		[]byte{byte(Halt)},
	)
	img := encode(0, code, nil)

	m := New(DefaultMemorySize)
	if err := m.Load(img); err != nil {
		t.Fatalf("load: %v", err)
	}
	mustRun(t, m)

	got, err := m.pop()
	assert(t, err == nil, "expected a value on the stack")
	assert(t, got == 30, "10+20 should be 30")
}

func TestDivideByZero(t *testing.T) {
	code := cat(
		push(1),
		push(0),
		[]byte{byte(Div)},
		[]byte{byte(Halt)},
	)
	img := encode(0, code, nil)

	m := New(DefaultMemorySize)
	if err := m.Load(img); err != nil {
		t.Fatalf("load: %v", err)
	}
	r := m.Run()
	assert(t, r == Faulted, "dividing by zero should fault")
	assert(t, m.LastFault().Kind == KindDivideByZero, "wrong fault kind")
}

func TestStackUnderflow(t *testing.T) {
	code := []byte{byte(Add), byte(Halt)}
	img := encode(0, code, nil)

	m := New(DefaultMemorySize)
	if err := m.Load(img); err != nil {
		t.Fatalf("load: %v", err)
	}
	r := m.Run()
	assert(t, r == Faulted, "ADD with nothing on the stack should fault")
	assert(t, m.LastFault().Kind == KindStackUnderflow, "wrong fault kind")
}

func TestUnknownOpcode(t *testing.T) {
	code := []byte{0xEE}
	img := encode(0, code, nil)

	m := New(DefaultMemorySize)
	if err := m.Load(img); err != nil {
		t.Fatalf("load: %v", err)
	}
	r := m.Run()
	assert(t, r == Faulted, "undefined opcode byte should fault")
	assert(t, m.LastFault().Kind == KindUnknownOpcode, "wrong fault kind")
}

func TestSegmentationFault(t *testing.T) {
	code := cat(
		push(0xFFFFFFFF),
		[]byte{byte(Mload)},
		[]byte{byte(Halt)},
	)
	img := encode(0, code, nil)

	m := New(DefaultMemorySize)
	if err := m.Load(img); err != nil {
		t.Fatalf("load: %v", err)
	}
	r := m.Run()
	assert(t, r == Faulted, "reading far out of bounds should fault")
	assert(t, m.LastFault().Kind == KindSegmentationFault, "wrong fault kind")
}

func TestResourceExhaustion(t *testing.T) {
	// An infinite loop: JMP back to its own address.
	code := cat(
		[]byte{byte(Jmp)}, storeWordSlice(0),
	)
	img := encode(0, code, nil)

	m := New(DefaultMemorySize)
	if err := m.Load(img); err != nil {
		t.Fatalf("load: %v", err)
	}
	m.SetGas(100)
	r := m.Run()
	assert(t, r == Faulted, "exhausting gas should fault")
	assert(t, m.LastFault().Kind == KindResourceExhaustion, "wrong fault kind")
}

func storeWordSlice(w Word) []byte {
	b := make([]byte, 8)
	storeWord(b, w)
	return b
}

// TestCallReturn exercises the caller-pushes-args / LSTORE-pops-into-locals
// convention: a two-argument "function" at a fixed address adds its two
// locals and returns the sum in place on the value stack.
func TestCallReturn(t *testing.T) {
	// main: PUSH 3; PUSH 4; CALL add; HALT
	// add (at funcAddr): LSTORE 8; LSTORE 0; LLOAD 0; LLOAD 8; ADD; RET
	lstore := func(off Word) []byte {
		b := make([]byte, 9)
		b[0] = byte(Lstore)
		storeWord(b[1:], off)
		return b
	}
	lload := func(off Word) []byte {
		b := make([]byte, 9)
		b[0] = byte(Lload)
		storeWord(b[1:], off)
		return b
	}
	call := func(target Word) []byte {
		b := make([]byte, 9)
		b[0] = byte(Call)
		storeWord(b[1:], target)
		return b
	}

	addBody := cat(
		lstore(8),
		lstore(0),
		lload(0),
		lload(8),
		[]byte{byte(Add)},
		[]byte{byte(Ret)},
	)

	mainPrefix := cat(push(3), push(4))
	funcAddr := Word(len(mainPrefix) + len(call(0)) + 1) // +1 for main's HALT
	main := cat(mainPrefix, call(funcAddr), []byte{byte(Halt)})

	code := cat(main, addBody)
	img := encode(0, code, nil)

	m := New(DefaultMemorySize)
	if err := m.Load(img); err != nil {
		t.Fatalf("load: %v", err)
	}
	mustRun(t, m)

	got, err := m.pop()
	assert(t, err == nil, "expected a return value on the stack")
	assert(t, got == 7, "add(3,4) should be 7")
}

// TestVFSWriteRead exercises the OPEN/WRITE/READ syscalls against a VFS
// path, round-tripping a short string through it.
func TestVFSWriteRead(t *testing.T) {
	m := New(DefaultMemorySize)
	m.VFSPut("/tmp/echo.txt", nil)

	// Seed the string "hi" at a data address, then OPEN/WRITE it, then
	// reopen and READ it back into a different address.
	dataAddr := Word(dataSegmentOffset)
	pathAddr := dataAddr + 64

	data := []byte{'h', 'i'}
	path := append([]byte("/tmp/echo.txt"), 0)

	code := []byte{}
	pushb := func(w Word) []byte { return push(w) }
	syscall := []byte{byte(Syscall)}

	// OPEN(path) -> fd
	code = cat(code, pushb(pathAddr), pushb(SysOpen), syscall)
	// fd is now on the stack; WRITE(fd, dataAddr, len(data)) -> n
	// declared order is (fd, buf_ptr, count); caller pushes left to right.
	dupFd := []byte{byte(Dup)}
	code = cat(code,
		dupFd,                    // fd, fd
		pushb(dataAddr),          // fd, fd, dataAddr
		pushb(Word(len(data))),   // fd, fd, dataAddr, len
		pushb(SysWrite), syscall, // fd, n
	)
	code = cat(code, []byte{byte(Pop)}) // drop n
	code = cat(code, []byte{byte(Pop)}) // drop the write fd
	readBuf := dataAddr + 128
	// OPEN again: a fresh fd starts its cursor at 0, so the read sees the
	// bytes from the beginning regardless of where the write fd's cursor
	// ended up.
	code = cat(code, pushb(pathAddr), pushb(SysOpen), syscall)
	code = cat(code,
		pushb(readBuf),
		pushb(Word(len(data))),
		pushb(SysRead), syscall,
	)
	code = cat(code, []byte{byte(Halt)})

	img := encode(0, code, nil)
	if err := m.Load(img); err != nil {
		t.Fatalf("load: %v", err)
	}
	// seed memory after load (Load zeroes memory), then copy the bytes in.
	copy(m.Memory[dataAddr:], data)
	copy(m.Memory[pathAddr:], path)

	mustRun(t, m)

	n, err := m.pop()
	assert(t, err == nil, "expected a read count on the stack")
	assert(t, n == uint64(len(data)), "should have read back 2 bytes")
	assert(t, m.Memory[readBuf] == 'h' && m.Memory[readBuf+1] == 'i', "round-tripped bytes should match")
}

// TestSysExec writes a second binary image into the VFS, then has the
// running program EXEC it. A successful EXEC replaces the running image
// outright: the outer program's stack state is gone (resetExecutionState
// clears it) and only the inner program's effect is observable afterward.
func TestSysExec(t *testing.T) {
	inner := encode(0, cat(push(42), []byte{byte(Halt)}), nil)

	m := New(DefaultMemorySize)
	m.VFSPut("/bin/inner", inner)

	dataAddr := Word(dataSegmentOffset)
	path := append([]byte("/bin/inner"), 0)

	outer := cat(
		push(99), // outer stack state that EXEC must wipe out
		push(dataAddr),
		push(SysExec),
		[]byte{byte(Syscall)},
		[]byte{byte(Halt)}, // unreached: EXEC resets IP into the inner image
	)
	img := encode(0, outer, path)
	if err := m.Load(img); err != nil {
		t.Fatalf("load: %v", err)
	}

	mustRun(t, m)

	top, ok := m.StackTop()
	assert(t, ok, "expected a value on the stack after the inner program halted")
	assert(t, top == 42, "the inner program's PUSH 42 should be the only value left")
}
