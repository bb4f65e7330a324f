package asm

import (
	"fmt"
	"strings"
)

// preprocess strips comments and blank lines, splits each remaining line
// into a mnemonic and an optional argument, and resolves label
// declarations to addresses in the same pass — grounded on
// _examples/KTStephano-GVM/vm/compile.go's preprocessLine, which performs
// comment-stripping, label detection, and instruction/argument splitting
// in a single walk over the source before any bytes are emitted.
func preprocess(source string) ([]line, map[string]uint64, error) {
	var lines []line
	labels := make(map[string]uint64)
	var addr uint64

	for num, raw := range strings.Split(source, "\n") {
		srcLine := num + 1
		text := commentPattern.ReplaceAllString(raw, "")
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		if strings.HasSuffix(text, ":") {
			name := strings.TrimSuffix(text, ":")
			if name == "" || strings.ContainsAny(name, " \t") {
				return nil, nil, &AssembleError{Line: srcLine, Reason: fmt.Sprintf("invalid label: %q", text)}
			}
			if _, dup := labels[name]; dup {
				return nil, nil, &AssembleError{Line: srcLine, Reason: fmt.Sprintf("duplicate label: %s", name)}
			}
			labels[name] = addr
			continue
		}

		fields := strings.SplitN(text, " ", 2)
		mnemonic := strings.ToUpper(fields[0])
		arg := ""
		if len(fields) == 2 {
			arg = strings.TrimSpace(fields[1])
		}

		width, ok := instrWidth(mnemonic)
		if !ok {
			return nil, nil, &AssembleError{Line: srcLine, Reason: fmt.Sprintf("unknown mnemonic %q", mnemonic)}
		}
		lines = append(lines, line{mnemonic: mnemonic, arg: arg, srcLine: srcLine})
		addr += width
	}

	return lines, labels, nil
}
