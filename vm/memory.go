package vm

// readWord reads a little-endian u64 at addr, bounds-checking first.
func (m *VM) readWord(addr uint64) (Word, *Fault) {
	if addr >= uint64(len(m.Memory)) || addr+wordBytes > uint64(len(m.Memory)) {
		return 0, faultSeg(addr, wordBytes)
	}
	return loadWord(m.Memory[addr : addr+wordBytes]), nil
}

// writeWord writes a little-endian u64 at addr, bounds-checking first.
func (m *VM) writeWord(addr uint64, w Word) *Fault {
	if addr >= uint64(len(m.Memory)) || addr+wordBytes > uint64(len(m.Memory)) {
		return faultSeg(addr, wordBytes)
	}
	storeWord(m.Memory[addr:addr+wordBytes], w)
	return nil
}

// readByte reads a single byte at addr, bounds-checked.
func (m *VM) readByte(addr uint64) (byte, *Fault) {
	if addr >= uint64(len(m.Memory)) {
		return 0, faultSeg(addr, 1)
	}
	return m.Memory[addr], nil
}

// writeByte writes a single byte at addr, bounds-checked.
func (m *VM) writeByte(addr uint64, b byte) *Fault {
	if addr >= uint64(len(m.Memory)) {
		return faultSeg(addr, 1)
	}
	m.Memory[addr] = b
	return nil
}

// fetchByte reads the byte at IP and advances IP by 1.
func (m *VM) fetchByte() (byte, *Fault) {
	b, err := m.readByte(m.Reg.IP)
	if err != nil {
		return 0, err
	}
	m.Reg.IP++
	return b, nil
}

// fetchWord reads the u64 immediate at IP and advances IP by 8.
func (m *VM) fetchWord() (Word, *Fault) {
	w, err := m.readWord(m.Reg.IP)
	if err != nil {
		return 0, err
	}
	m.Reg.IP += wordBytes
	return w, nil
}

// push appends a word to the value stack.
func (m *VM) push(w Word) {
	m.values = append(m.values, w)
}

// pop removes and returns the top of the value stack.
func (m *VM) pop() (Word, *Fault) {
	if len(m.values) == 0 {
		return 0, errStackUnderflow
	}
	top := m.values[len(m.values)-1]
	m.values = m.values[:len(m.values)-1]
	return top, nil
}

// pop2 pops b then a, matching the "push a, push b, pop b first" order rule
// from spec.md §4.1, and returns (a, b) so callers compute a OP b.
func (m *VM) pop2() (a, b Word, fault *Fault) {
	b, fault = m.pop()
	if fault != nil {
		return 0, 0, fault
	}
	a, fault = m.pop()
	if fault != nil {
		return 0, 0, fault
	}
	return a, b, nil
}

// pushCall pushes a return frame.
func (m *VM) pushCall(returnIP, savedBP uint64) {
	m.calls = append(m.calls, CallFrame{ReturnIP: returnIP, SavedBP: savedBP})
}

// popCall pops a return frame; an empty call stack is reported via ok=false
// rather than as a fault, and Step's Ret case treats it as main returning.
func (m *VM) popCall() (CallFrame, bool) {
	if len(m.calls) == 0 {
		return CallFrame{}, false
	}
	top := m.calls[len(m.calls)-1]
	m.calls = m.calls[:len(m.calls)-1]
	return top, true
}

// bumpSP raises the locals high-water mark to at least addr, per spec.md
// §4.2 step 4 ("sp = max(sp, bp+off+8)").
func (m *VM) bumpSP(addr uint64) {
	if addr > m.Reg.SP {
		m.Reg.SP = addr
	}
}
