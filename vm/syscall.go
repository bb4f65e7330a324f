package vm

// dispatchSyscall implements the syscall table from spec.md §4.3. The id has
// already been popped by the caller (Step's Syscall case); each service here
// pops its own arguments off the value stack in reverse declared order and,
// except for EXIT and a successful EXEC, pushes its result back.
func (m *VM) dispatchSyscall(id Word) *Fault {
	switch id {
	case SysOpen:
		return m.sysOpen()
	case SysRead:
		return m.sysRead()
	case SysWrite:
		return m.sysWrite()
	case SysSbrk:
		return m.sysSbrk()
	case SysExec:
		return m.sysExec()
	case SysExit:
		return m.sysExit()
	default:
		return faultUnknownSyscall(id)
	}
}

// readCString reads a NUL-terminated string starting at addr.
func (m *VM) readCString(addr uint64) (string, *Fault) {
	var buf []byte
	for i := uint64(0); ; i++ {
		b, err := m.readByte(addr + i)
		if err != nil {
			return "", err
		}
		if b == 0 {
			break
		}
		buf = append(buf, b)
	}
	return string(buf), nil
}

// sysOpen: declared (path_ptr) -> fd. path_ptr is a NUL-terminated string in
// memory; the file is created in the VFS if it doesn't already exist.
func (m *VM) sysOpen() *Fault {
	pathPtr, err := m.pop()
	if err != nil {
		return err
	}
	path, err := m.readCString(pathPtr)
	if err != nil {
		return err
	}
	m.vfs.openOrCreate(path)
	fd := m.fds.open(path)
	m.push(fd)
	return nil
}

// sysRead: declared (fd, buf_ptr, count) -> bytes_read. Args are pushed
// left-to-right by the caller, so they arrive on the stack in the reverse
// order and must be popped count, buf_ptr, fd.
func (m *VM) sysRead() *Fault {
	count, err := m.pop()
	if err != nil {
		return err
	}
	bufPtr, err := m.pop()
	if err != nil {
		return err
	}
	fd, err := m.pop()
	if err != nil {
		return err
	}

	entry, ok := m.fds.get(fd)
	if !ok {
		return faultUnknownSyscall(fd)
	}

	if entry.path == pathStdin {
		n := min64(count, uint64(len(m.stdin)))
		data := m.stdin[:n]
		m.stdin = m.stdin[n:]
		for i, b := range data {
			if werr := m.writeByte(bufPtr+uint64(i), b); werr != nil {
				return werr
			}
		}
		m.push(n)
		return nil
	}

	dst := make([]byte, count)
	n := m.vfs.readAt(entry.path, entry.cursor, dst)
	entry.cursor += uint64(n)
	for i := 0; i < n; i++ {
		if werr := m.writeByte(bufPtr+uint64(i), dst[i]); werr != nil {
			return werr
		}
	}
	m.push(uint64(n))
	return nil
}

// sysWrite: declared (fd, buf_ptr, count) -> bytes_written.
func (m *VM) sysWrite() *Fault {
	count, err := m.pop()
	if err != nil {
		return err
	}
	bufPtr, err := m.pop()
	if err != nil {
		return err
	}
	fd, err := m.pop()
	if err != nil {
		return err
	}

	entry, ok := m.fds.get(fd)
	if !ok {
		return faultUnknownSyscall(fd)
	}

	src := make([]byte, count)
	for i := range src {
		b, rerr := m.readByte(bufPtr + uint64(i))
		if rerr != nil {
			return rerr
		}
		src[i] = b
	}

	if entry.path == pathStdout {
		m.stdout = append(m.stdout, src...)
	}
	n := m.vfs.writeAt(entry.path, entry.cursor, src)
	entry.cursor += uint64(n)
	m.push(uint64(n))
	return nil
}

// sysSbrk: declared (increment) -> previous_break. The increment is added
// with wrapping, so a value with the top bit set acts as a negative increment
// and lowers the break; a resulting break past the end of memory (including
// one that wraps below zero) faults with KindSegmentationFault.
func (m *VM) sysSbrk() *Fault {
	inc, err := m.pop()
	if err != nil {
		return err
	}
	prev := m.Reg.Brk
	next := prev + inc
	if next > uint64(len(m.Memory)) {
		return faultSeg(next, 0)
	}
	m.Reg.Brk = next
	m.push(prev)
	return nil
}

// sysExec: declared (path_ptr) -> never returns on success. Loads a new
// binary image from the named VFS path and resets execution state, keeping
// the VFS and fd table intact. A missing path faults with
// KindExecTargetMissing and an image that fails to load faults with
// KindInvalidBinary; neither returns a value.
func (m *VM) sysExec() *Fault {
	pathPtr, err := m.pop()
	if err != nil {
		return err
	}
	path, err := m.readCString(pathPtr)
	if err != nil {
		return err
	}
	image, ok := m.vfs.get(path)
	if !ok {
		return faultExecMissing(path)
	}
	return m.loadImage(image)
}

// sysExit: declared (code). Terminates the run; the value stack is left as
// is since nothing after EXIT observes it.
func (m *VM) sysExit() *Fault {
	code, err := m.pop()
	if err != nil {
		return err
	}
	m.exitCode = code
	m.exited = true
	return nil
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
