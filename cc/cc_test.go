package cc

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/BadFoxAI/vfs-core/asm"
	"github.com/BadFoxAI/vfs-core/vm"
)

// run compiles, assembles and executes src, returning the machine so the
// caller can inspect its stack, memory or stdout.
func run(t *testing.T, src string) *vm.VM {
	t.Helper()
	out, err := Compile(src)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	asmRes, err := asm.Assemble(out.Asm)
	if err != nil {
		t.Fatalf("assemble: %v\n--- asm ---\n%s", err, out.Asm)
	}
	img, ferr := vm.EncodeImage(asmRes.Code, out.Data, uint32(asmRes.EntryPoint))
	if ferr != nil {
		t.Fatalf("encode: %v", ferr)
	}
	m := vm.New(vm.DefaultMemorySize)
	if lerr := m.Load(img); lerr != nil {
		t.Fatalf("load: %v", lerr)
	}
	if r := m.Run(); r != vm.Halted {
		t.Fatalf("run did not halt cleanly: %v (fault: %v)", r, m.LastFault())
	}
	return m
}

func TestPutcharHelloOK(t *testing.T) {
	src := `
#include <stdio.h>
int main() {
	putchar(79);
	putchar(75);
	return 0;
}
`
	m := run(t, src)
	got := m.DrainStdout()
	want := []byte{79, 75}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("stdout mismatch (-want +got):\n%s", diff)
	}
}

func TestArithmeticReturn(t *testing.T) {
	src := `
int main() {
	int a = 10;
	int b = 20;
	return a + b;
}
`
	m := run(t, src)
	top, ok := m.StackTop()
	if !ok {
		t.Fatalf("expected a return value on the stack")
	}
	if top != 30 {
		t.Fatalf("10+20 should be 30, got %d", top)
	}
}

func TestIfElse(t *testing.T) {
	src := `
int main() {
	int x = 5;
	if (x > 3) {
		return 1;
	} else {
		return 0;
	}
}
`
	m := run(t, src)
	top, ok := m.StackTop()
	if !ok || top != 1 {
		t.Fatalf("expected 1, got %d", top)
	}
}

func TestWhileLoopSum(t *testing.T) {
	src := `
int main() {
	int i = 0;
	int sum = 0;
	while (i < 5) {
		sum = sum + i;
		i = i + 1;
	}
	return sum;
}
`
	m := run(t, src)
	top, ok := m.StackTop()
	if !ok || top != 10 {
		t.Fatalf("sum of 0..4 should be 10, got %d", top)
	}
}

func TestFunctionCallWithLocals(t *testing.T) {
	src := `
int add(int a, int b) {
	return a + b;
}
int main() {
	return add(3, 4);
}
`
	m := run(t, src)
	top, ok := m.StackTop()
	if !ok || top != 7 {
		t.Fatalf("add(3,4) should be 7, got %d", top)
	}
}

func TestArrayReadWrite(t *testing.T) {
	src := `
int main() {
	int arr[4];
	arr[0] = 10;
	arr[1] = 20;
	arr[2] = arr[0] + arr[1];
	return arr[2];
}
`
	m := run(t, src)
	top, ok := m.StackTop()
	if !ok || top != 30 {
		t.Fatalf("arr[2] should be 30, got %d", top)
	}
}

func TestModulo(t *testing.T) {
	src := `
int main() {
	int a = 17;
	int b = 5;
	return a % b;
}
`
	m := run(t, src)
	top, ok := m.StackTop()
	if !ok || top != 2 {
		t.Fatalf("17%%5 should be 2, got %d", top)
	}
}

func TestStructPointerMember(t *testing.T) {
	src := `
struct Point {
	int x;
	int y;
};
int main() {
	struct Point p;
	(&p)->x = 10;
	(&p)->y = 20;
	return (&p)->x + (&p)->y;
}
`
	m := run(t, src)
	top, ok := m.StackTop()
	if !ok || top != 30 {
		t.Fatalf("p.x+p.y should be 30, got %d", top)
	}
}

func TestPointerDerefArithmetic(t *testing.T) {
	src := `
int main() {
	char buf[4];
	char *p;
	p = buf;
	*p = 65;
	*(p+1) = 66;
	return *p + *(p+1);
}
`
	m := run(t, src)
	top, ok := m.StackTop()
	if !ok || top != 131 {
		t.Fatalf("65+66 should be 131, got %d", top)
	}
}

func TestSizeofStruct(t *testing.T) {
	src := `
struct Pair {
	int a;
	int b;
};
int main() {
	return sizeof(struct Pair);
}
`
	m := run(t, src)
	top, ok := m.StackTop()
	if !ok || top != 16 {
		t.Fatalf("sizeof(struct Pair) should be 16, got %d", top)
	}
}

func TestSyscallExprWritesStdout(t *testing.T) {
	src := `
int main() {
	char buf[1];
	buf[0] = 65;
	syscall(3, 1, buf, 1);
	return 0;
}
`
	m := run(t, src)
	got := m.DrainStdout()
	want := []byte{65}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("stdout mismatch (-want +got):\n%s", diff)
	}
}

func TestGlobalVariable(t *testing.T) {
	src := `
int counter = 5;
int main() {
	counter = counter + 1;
	return counter;
}
`
	m := run(t, src)
	top, ok := m.StackTop()
	if !ok || top != 6 {
		t.Fatalf("expected 6, got %d", top)
	}
}

func TestStringLengthLoop(t *testing.T) {
	src := `
int main() {
	char *s;
	int c;
	s = "hello";
	c = 0;
	while (*s) {
		c = c + 1;
		s = s + 1;
	}
	return c;
}
`
	m := run(t, src)
	top, ok := m.StackTop()
	if !ok || top != 5 {
		t.Fatalf("strlen(\"hello\") should be 5, got %d", top)
	}
}

func TestParseProgramShape(t *testing.T) {
	src := `
int add(int a, int b) {
	return a + b;
}
int main() {
	return add(1, 2);
}
`
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(prog.Functions) != 2 {
		t.Fatalf("expected 2 functions, got %d", len(prog.Functions))
	}

	gotNames := make([]string, len(prog.Functions))
	for i, fn := range prog.Functions {
		gotNames[i] = fn.Name
	}
	want := []string{"add", "main"}
	if diff := cmp.Diff(want, gotNames, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("function order mismatch (-want +got):\n%s", diff)
	}
}
