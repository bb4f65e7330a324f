// Command gvm compiles, assembles, loads and runs GVM programs: C-subset
// source (.c), assembly source (.s/.asm), or an already-assembled binary
// image (anything else) all go through the same pipeline, stopping as
// early as the input format allows.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BadFoxAI/vfs-core/asm"
	"github.com/BadFoxAI/vfs-core/cc"
	"github.com/BadFoxAI/vfs-core/vm"
)

var (
	emitOnly = flag.Bool("emit", false, "assemble/compile only, writing the binary image to -o instead of running it")
	outPath  = flag.String("o", "", "output path for -emit; defaults to the input file with its extension replaced by .bin")
	gas      = flag.Uint64("gas", 0, "instruction quota for the run; 0 means unlimited")
	memSize  = flag.Int("mem", vm.DefaultMemorySize, "linear memory size in bytes")
)

func main() {
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 {
		fmt.Println("Usage: gvm [flags] <file.c|file.s|file.bin>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := run(args[0]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("gvm: %w", err)
	}

	image, err := toImage(path, string(src))
	if err != nil {
		return err
	}

	if *emitOnly {
		out := *outPath
		if out == "" {
			out = strings.TrimSuffix(path, filepath.Ext(path)) + ".bin"
		}
		if err := os.WriteFile(out, image, 0644); err != nil {
			return fmt.Errorf("gvm: %w", err)
		}
		return nil
	}

	return execute(image)
}

// toImage produces a loadable binary image from path's contents, compiling
// or assembling as needed based on the file extension.
func toImage(path, src string) ([]byte, error) {
	switch filepath.Ext(path) {
	case ".c":
		out, err := cc.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("gvm: %w", err)
		}
		return assembleAndEncode(out.Asm, out.Data)
	case ".s", ".asm":
		return assembleAndEncode(src, nil)
	default:
		return []byte(src), nil
	}
}

func assembleAndEncode(asmText string, data []byte) ([]byte, error) {
	res, err := asm.Assemble(asmText)
	if err != nil {
		return nil, fmt.Errorf("gvm: %w", err)
	}
	image, ferr := vm.EncodeImage(res.Code, data, uint32(res.EntryPoint))
	if ferr != nil {
		return nil, fmt.Errorf("gvm: %w", ferr)
	}
	return image, nil
}

// execute loads image into a fresh VM wired to the process's real stdout
// and runs it to completion, reporting any fault the way the rest of this
// toolchain reports errors: to stderr, without a stack trace.
func execute(image []byte) error {
	m := vm.New(*memSize)
	if *gas != 0 {
		m.SetGas(*gas)
	}
	if err := m.Load(image); err != nil {
		return fmt.Errorf("gvm: %s", err)
	}

	result := m.Run()
	os.Stdout.Write(m.DrainStdout())

	if result == vm.Faulted {
		return fmt.Errorf("gvm: %s", m.LastFault())
	}
	return nil
}
