// Package asm implements the two-pass textual assembler for the GVM
// instruction set defined in package vm: source text in, a code section
// (plus an optional debug symbol map) out.
package asm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/BadFoxAI/vfs-core/vm"
)

var commentPattern = regexp.MustCompile(`//.*`)

// instrWidth is the number of bytes an instruction occupies in the code
// section: 1 for a bare opcode, 9 for one carrying a u64 immediate. Mirrors
// vm.Opcode.encodedSize, duplicated here since that method is unexported.
func instrWidth(mnemonic string) (uint64, bool) {
	if _, ok := opcodeByName[mnemonic]; !ok {
		return 0, false
	}
	if hasImmediate[mnemonic] {
		return 9, true
	}
	return 1, true
}

// opcodeByName and hasImmediate map mnemonics onto vm's exported opcode
// constants, so this package never re-declares the opcode byte values.
var opcodeByName = map[string]vm.Opcode{
	"HALT": vm.Halt, "PUSH": vm.Push, "POP": vm.Pop, "DUP": vm.Dup,
	"ADD": vm.Add, "SUB": vm.Sub, "MUL": vm.Mul, "DIV": vm.Div, "NOT": vm.Not,
	"LT": vm.Lt, "GT": vm.Gt, "JMP": vm.Jmp, "JZ": vm.Jz, "CALL": vm.Call,
	"RET": vm.Ret, "GETBP": vm.GetBP, "LLOAD": vm.Lload, "LSTORE": vm.Lstore,
	"MLOAD": vm.Mload, "MSTORE": vm.Mstore, "LOADB": vm.Loadb,
	"STOREB": vm.Storeb, "SYSCALL": vm.Syscall,
}

var hasImmediate = map[string]bool{
	"PUSH": true, "JMP": true, "JZ": true, "CALL": true,
	"LLOAD": true, "LSTORE": true,
}

// line is one preprocessed source line: a mnemonic and an optional raw
// argument token (number, char literal, or label reference).
type line struct {
	mnemonic string
	arg      string
	srcLine  int
}

// AssembleError reports a problem in the source text, with the 1-based
// source line it occurred on.
type AssembleError struct {
	Line   int
	Reason string
}

func (e *AssembleError) Error() string {
	return fmt.Sprintf("asm: line %d: %s", e.Line, e.Reason)
}

// Result is the output of a successful assembly.
type Result struct {
	Code       []byte
	DebugSym   map[uint64]string
	EntryPoint uint64
}

// Assemble runs the two-pass assembler over source, producing a code
// section. Pass one walks the preprocessed lines computing each
// instruction's address (resolving label declarations along the way);
// pass two emits bytes, resolving label references left in argument
// position.
func Assemble(source string) (*Result, error) {
	// Pass 1 (inside preprocess): walk the source, strip comments, split
	// each instruction line into (mnemonic, arg), and record each label
	// declaration's address by summing instrWidth over the lines seen so
	// far — exactly the address pass 2 will independently arrive at by
	// summing len(opcode)+len(immediate) as it emits bytes.
	lines, labels, err := preprocess(source)
	if err != nil {
		return nil, err
	}

	// Pass 2: emit bytes, resolving label references in argument position.
	code := make([]byte, 0, len(lines)*2)
	debugSym := make(map[uint64]string, len(lines))
	for _, ln := range lines {
		addr := uint64(len(code))
		op, ok := opcodeByName[ln.mnemonic]
		if !ok {
			return nil, &AssembleError{Line: ln.srcLine, Reason: fmt.Sprintf("unknown mnemonic %q", ln.mnemonic)}
		}
		debugSym[addr] = sourceText(ln)
		code = append(code, byte(op))

		if !hasImmediate[ln.mnemonic] {
			if ln.arg != "" {
				return nil, &AssembleError{Line: ln.srcLine, Reason: fmt.Sprintf("%s takes no argument", ln.mnemonic)}
			}
			continue
		}

		if ln.arg == "" {
			return nil, &AssembleError{Line: ln.srcLine, Reason: fmt.Sprintf("%s requires an argument", ln.mnemonic)}
		}

		val, err := resolveArg(ln.arg, labels)
		if err != nil {
			return nil, &AssembleError{Line: ln.srcLine, Reason: err.Error()}
		}
		buf := make([]byte, 8)
		putWord(buf, val)
		code = append(code, buf...)
	}

	entry := uint64(0)
	if a, ok := labels["start"]; ok {
		entry = a
	}

	return &Result{Code: code, DebugSym: debugSym, EntryPoint: entry}, nil
}

func sourceText(ln line) string {
	if ln.arg == "" {
		return ln.mnemonic
	}
	return ln.mnemonic + " " + ln.arg
}

// resolveArg turns an argument token into a concrete word: a label
// reference, a character literal, a hex literal, or a decimal integer.
func resolveArg(tok string, labels map[string]uint64) (uint64, error) {
	if a, ok := labels[tok]; ok {
		return a, nil
	}
	if strings.HasPrefix(tok, "'") && strings.HasSuffix(tok, "'") && len(tok) >= 3 {
		runes := []rune(tok)
		if len(runes) != 3 {
			return 0, fmt.Errorf("invalid character literal: %s", tok)
		}
		return uint64(runes[1]), nil
	}
	if strings.HasPrefix(tok, "0x") || strings.HasPrefix(tok, "0X") {
		v, err := strconv.ParseUint(tok[2:], 16, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid hex literal: %s", tok)
		}
		return v, nil
	}
	v, err := strconv.ParseUint(tok, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("undefined label or invalid integer: %s", tok)
	}
	return v, nil
}

func putWord(b []byte, w uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(w >> (8 * uint(i)))
	}
}
