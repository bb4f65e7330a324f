package asm

import (
	"testing"

	"github.com/BadFoxAI/vfs-core/vm"
)

func TestAssembleArithmetic(t *testing.T) {
	src := `
start:
	PUSH 10
	PUSH 20
	ADD
	HALT
`
	res, err := Assemble(src)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	m := vm.New(vm.DefaultMemorySize)
	img, ferr := vm.EncodeImage(res.Code, nil, uint32(res.EntryPoint))
	if ferr != nil {
		t.Fatalf("encode: %v", ferr)
	}
	if lerr := m.Load(img); lerr != nil {
		t.Fatalf("load: %v", lerr)
	}
	if r := m.Run(); r == vm.Faulted {
		t.Fatalf("run faulted: %v", m.LastFault())
	}
}

func TestAssembleLabelForwardReference(t *testing.T) {
	src := `
start:
	PUSH 1
	JZ skip
	PUSH 99
skip:
	HALT
`
	res, err := Assemble(src)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if len(res.Code) == 0 {
		t.Fatal("expected non-empty code")
	}
}

func TestAssembleUnknownMnemonic(t *testing.T) {
	_, err := Assemble("NOPE\n")
	if err == nil {
		t.Fatal("expected an error for an unknown mnemonic")
	}
	if _, ok := err.(*AssembleError); !ok {
		t.Fatalf("expected *AssembleError, got %T", err)
	}
}

func TestAssembleUndefinedLabel(t *testing.T) {
	_, err := Assemble("JMP nowhere\n")
	if err == nil {
		t.Fatal("expected an error for a reference to an undefined label")
	}
}
