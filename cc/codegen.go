package cc

import (
	"fmt"
	"strings"

	"github.com/BadFoxAI/vfs-core/vm"
)

// CompileError reports a problem found while parsing or generating code,
// with the 1-based source line it occurred on when known.
type CompileError struct {
	Line   int
	Reason string
}

func (e *CompileError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("cc: line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("cc: %s", e.Reason)
}

// Output is the result of compiling a translation unit: assembly text
// ready for asm.Assemble, plus the data segment bytes (string literals,
// global storage) that text's absolute-address PUSH immediates refer to.
type Output struct {
	Asm  string
	Data []byte
}

// scope tracks one function's locals: name -> byte offset from bp, plus
// each local's declared type so dereferences and indexes through it pick
// the right width. Grounded on original_source's MiniCC, which keeps
// exactly this (name -> offset, plus a running local_offset counter) for
// its flat, single-function subset; generalized here to one scope per
// function, to arrays occupying Size*stride bytes instead of always 8,
// and to carrying enough type information to distinguish byte- from
// word-addressed storage.
type scope struct {
	offsets map[string]int
	types   map[string]TypeSpec
	arrays  map[string]bool
	next    int
}

func newScope() *scope {
	return &scope{
		offsets: make(map[string]int),
		types:   make(map[string]TypeSpec),
		arrays:  make(map[string]bool),
	}
}

// declare reserves count*unitBytes bytes for name, starting at the next
// free offset. unitBytes is the width of one element: 8 for an ordinary
// scalar/pointer/array-of-words, 1 for a char array element, or a struct's
// own size for a struct-by-value local or an array of structs — spec.md's
// "stride 8 for scalars and pointers; 8*N for arrays" generalized to
// whichever unit width the declared type actually needs (see
// generator.unitSize).
func (s *scope) declare(name string, typ TypeSpec, count, unitBytes int, isArray bool) int {
	off := s.next
	s.offsets[name] = off
	s.types[name] = typ
	if isArray {
		s.arrays[name] = true
	}
	s.next += count * unitBytes
	return off
}

// temp allocates a hidden compiler-internal word-sized local, used by
// operators (like %) that need scratch storage because the ISA has no
// stack-swap instruction.
func (s *scope) temp() int {
	return s.declare(fmt.Sprintf("$t%d", s.next), TypeSpec{Base: "int"}, 1, 8, false)
}

// fieldInfo is one resolved struct member: its byte offset from the
// struct's base address and its declared type.
type fieldInfo struct {
	offset int
	typ    TypeSpec
}

// structInfo is a resolved struct definition: total size in bytes and its
// field table, per spec.md's "{size, field_name -> (offset, size)}".
type structInfo struct {
	size   int
	fields map[string]fieldInfo
}

// storageIsByte reports whether a value of this type, when NOT used as a
// pointer (a plain field or a byte-array element), occupies a single
// byte rather than a full word.
func storageIsByte(t TypeSpec) bool {
	return t.Base == "char" && !t.Pointer
}

// fieldStorageSize is a field's width within its enclosing struct: 1 byte
// for a bare char, 8 bytes (a full word) for everything else (int, any
// pointer, or a nested struct tag).
func fieldStorageSize(t TypeSpec) int {
	if storageIsByte(t) {
		return 1
	}
	return 8
}

// unitSize is the byte width of one unit of storage of type t: a struct
// tag's own size for a by-value struct, 1 for a bare char, 8 for
// everything else (int, any pointer). Used as an array's per-element stride
// and as a by-value struct local's size; genVarDecl gives a scalar char
// local a full word instead.
func (g *generator) unitSize(t TypeSpec) (int, error) {
	if t.IsStruct && !t.Pointer {
		info, ok := g.structs[t.Base]
		if !ok {
			return 0, &CompileError{Reason: fmt.Sprintf("undefined struct %s", t.Base)}
		}
		return info.size, nil
	}
	if storageIsByte(t) {
		return 1, nil
	}
	return 8, nil
}

// generator walks a Program and emits assembly text plus a data segment.
type generator struct {
	out      strings.Builder
	data     []byte
	labelNum int
	cur      *scope
	funcs    map[string]bool
	funcRet  map[string]TypeSpec

	structs map[string]*structInfo

	globalOff  map[string]int // name -> absolute address
	globalType map[string]TypeSpec
	globalArr  map[string]bool

	putcharAddr int // lazily allocated 1-byte staging cell for putchar
}

// Compile parses source and generates assembly + data for it.
func Compile(source string) (*Output, error) {
	prog, err := Parse(source)
	if err != nil {
		return nil, err
	}
	return Generate(prog)
}

// Generate turns an already-parsed Program into assembly text and a data
// segment.
func Generate(prog *Program) (*Output, error) {
	g := &generator{
		funcs:      make(map[string]bool),
		funcRet:    make(map[string]TypeSpec),
		structs:    make(map[string]*structInfo),
		globalOff:  make(map[string]int),
		globalType: make(map[string]TypeSpec),
		globalArr:  make(map[string]bool),
	}

	if err := g.collectStructs(prog.Structs); err != nil {
		return nil, err
	}
	for _, fn := range prog.Functions {
		g.funcs[fn.Name] = true
		g.funcRet[fn.Name] = fn.RetType
	}
	if !g.funcs["main"] {
		return nil, &CompileError{Reason: "no main function defined"}
	}
	if err := g.collectGlobals(prog.Globals); err != nil {
		return nil, err
	}

	g.emit("JMP func_main")
	for _, fn := range prog.Functions {
		if err := g.genFunction(fn); err != nil {
			return nil, err
		}
	}

	return &Output{Asm: g.out.String(), Data: g.data}, nil
}

// collectStructs resolves every struct definition's field offsets and
// total size before any function body is generated, so member access
// anywhere in the program can resolve regardless of declaration order.
func (g *generator) collectStructs(defs []*StructDef) error {
	for _, sd := range defs {
		if _, dup := g.structs[sd.Name]; dup {
			return &CompileError{Reason: fmt.Sprintf("struct %s redefined", sd.Name)}
		}
		info := &structInfo{fields: make(map[string]fieldInfo)}
		off := 0
		for _, f := range sd.Fields {
			info.fields[f.Name] = fieldInfo{offset: off, typ: f.Type}
			off += fieldStorageSize(f.Type)
		}
		info.size = off
		g.structs[sd.Name] = info
	}
	return nil
}

// collectGlobals lays out every global variable in the data segment ahead
// of any string literal a function body might allocate, giving each one a
// fixed absolute address. A constant integer initializer is written
// directly into the data bytes and a global without one is left
// zero-initialized; a non-constant initializer is a CompileError, since
// there is no program point before main where it could run.
func (g *generator) collectGlobals(decls []*VarDecl) error {
	for _, d := range decls {
		words := d.Size
		if !d.IsArray {
			words = 1
		}
		stride := 8
		if d.IsArray && storageIsByte(d.Type) {
			stride = 1
		}
		size := words * stride

		addr := vm.CodeReservedEnd + len(g.data)
		g.data = append(g.data, make([]byte, size)...)

		if !d.IsArray {
			if lit, ok := d.Init.(*IntLit); ok {
				putWordLE(g.data[addr-vm.CodeReservedEnd:], uint64(lit.Value), stride)
			} else if d.Init != nil {
				return &CompileError{Reason: fmt.Sprintf("global %s: only constant initializers are supported", d.Name)}
			}
		}

		g.globalOff[d.Name] = addr
		g.globalType[d.Name] = d.Type
		if d.IsArray {
			g.globalArr[d.Name] = true
		}
	}
	return nil
}

// putWordLE writes v into b as stride little-endian bytes (1 or 8).
func putWordLE(b []byte, v uint64, stride int) {
	if stride == 1 {
		b[0] = byte(v)
		return
	}
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}

func (g *generator) emit(line string) {
	g.out.WriteString(line)
	g.out.WriteByte('\n')
}

func (g *generator) emitf(format string, args ...interface{}) {
	g.emit(fmt.Sprintf(format, args...))
}

func (g *generator) newLabel(prefix string) string {
	g.labelNum++
	return fmt.Sprintf("%s%d", prefix, g.labelNum)
}

// allocString lays s's bytes (NUL-terminated) into the data segment, which
// always begins at vm.CodeReservedEnd regardless of code size, so the
// returned address is a compile-time constant the emitted PUSH can use
// directly — no relocation pass is needed.
func (g *generator) allocString(s string) int {
	addr := vm.CodeReservedEnd + len(g.data)
	g.data = append(g.data, []byte(s)...)
	g.data = append(g.data, 0)
	return addr
}

func (g *generator) genFunction(fn *Function) error {
	sc := newScope()
	g.cur = sc

	for _, p := range fn.Params {
		sc.declare(p.Name, p.Type, 1, 8, false)
	}

	g.emitf("func_%s:", fn.Name)

	// Prologue: pop args in reverse declared order into locals 0,1,...
	for i := len(fn.Params) - 1; i >= 0; i-- {
		g.emitf("LSTORE %d", i*8)
	}

	for _, s := range fn.Body {
		if err := g.genStmt(s); err != nil {
			return err
		}
	}

	// Implicit "return 0;" if control falls off the end.
	g.emit("PUSH 0")
	g.emit("RET")
	return nil
}

func (g *generator) genStmt(s Stmt) error {
	switch st := s.(type) {
	case *VarDecl:
		return g.genVarDecl(st)
	case *ExprStmt:
		if err := g.genExpr(st.Expr); err != nil {
			return err
		}
		g.emit("POP")
		return nil
	case *Return:
		if st.Expr == nil {
			g.emit("PUSH 0")
		} else if err := g.genExpr(st.Expr); err != nil {
			return err
		}
		g.emit("RET")
		return nil
	case *If:
		return g.genIf(st)
	case *While:
		return g.genWhile(st)
	default:
		return &CompileError{Reason: fmt.Sprintf("unhandled statement %T", s)}
	}
}

func (g *generator) genVarDecl(d *VarDecl) error {
	unit, err := g.unitSize(d.Type)
	if err != nil {
		return err
	}
	if d.IsArray {
		g.cur.declare(d.Name, d.Type, d.Size, unit, true)
		return nil
	}
	if storageIsByte(d.Type) {
		// A scalar char is read and written with LLOAD/LSTORE, which move
		// a full word, so it takes a word-sized slot like any other scalar.
		unit = 8
	}
	g.cur.declare(d.Name, d.Type, 1, unit, false)
	if d.Init != nil {
		if err := g.genExpr(d.Init); err != nil {
			return err
		}
		g.emitf("LSTORE %d", g.cur.offsets[d.Name])
	}
	return nil
}

func (g *generator) genIf(s *If) error {
	elseLabel := g.newLabel("Lelse")
	endLabel := g.newLabel("Lend")

	if err := g.genExpr(s.Cond); err != nil {
		return err
	}
	if len(s.Else) > 0 {
		g.emitf("JZ %s", elseLabel)
	} else {
		g.emitf("JZ %s", endLabel)
	}
	for _, st := range s.Then {
		if err := g.genStmt(st); err != nil {
			return err
		}
	}
	if len(s.Else) > 0 {
		g.emitf("JMP %s", endLabel)
		g.emitf("%s:", elseLabel)
		for _, st := range s.Else {
			if err := g.genStmt(st); err != nil {
				return err
			}
		}
	}
	g.emitf("%s:", endLabel)
	return nil
}

func (g *generator) genWhile(s *While) error {
	topLabel := g.newLabel("Lwhile")
	endLabel := g.newLabel("Lwhileend")

	g.emitf("%s:", topLabel)
	if err := g.genExpr(s.Cond); err != nil {
		return err
	}
	g.emitf("JZ %s", endLabel)
	for _, st := range s.Body {
		if err := g.genStmt(st); err != nil {
			return err
		}
	}
	g.emitf("JMP %s", topLabel)
	g.emitf("%s:", endLabel)
	return nil
}

// genExpr emits code that leaves exactly one value on top of the stack.
func (g *generator) genExpr(e Expr) error {
	switch ex := e.(type) {
	case *IntLit:
		g.emitf("PUSH %d", ex.Value)
		return nil
	case *StringLit:
		addr := g.allocString(ex.Value)
		g.emitf("PUSH %d", addr)
		return nil
	case *Ident:
		return g.genIdentLoad(ex)
	case *Unary:
		return g.genUnary(ex)
	case *Binary:
		return g.genBinary(ex)
	case *Assign:
		return g.genAssign(ex)
	case *Call:
		return g.genCall(ex)
	case *Index:
		return g.genIndexLoad(ex)
	case *Deref:
		return g.genDerefLoad(ex)
	case *Member:
		return g.genMemberLoad(ex)
	case *Syscall:
		return g.genSyscall(ex)
	case *SizeofStruct:
		info, ok := g.structs[ex.StructName]
		if !ok {
			return &CompileError{Reason: fmt.Sprintf("sizeof: undefined struct %s", ex.StructName)}
		}
		g.emitf("PUSH %d", info.size)
		return nil
	default:
		return &CompileError{Reason: fmt.Sprintf("unhandled expression %T", e)}
	}
}

// varType reports the declared type of a local or global, and whether it
// is an array, checking locals first so a local shadows a same-named
// global.
func (g *generator) varType(name string) (typ TypeSpec, isArray bool, found bool) {
	if g.cur != nil {
		if t, ok := g.cur.types[name]; ok {
			return t, g.cur.arrays[name], true
		}
	}
	if t, ok := g.globalType[name]; ok {
		return t, g.globalArr[name], true
	}
	return TypeSpec{}, false, false
}

// exprType is a best-effort static type inference used only to pick
// between word and byte memory operations (MLOAD/MSTORE vs LOADB/STOREB)
// at dereference and index sites. Anything it cannot classify defaults to
// a plain int, which resolves to the word-op path — the common case.
func (g *generator) exprType(e Expr) TypeSpec {
	switch ex := e.(type) {
	case *Ident:
		t, isArray, ok := g.varType(ex.Name)
		if !ok {
			return TypeSpec{Base: "int"}
		}
		if isArray {
			// Array-to-pointer decay: indexing/dereferencing an array
			// identifier sees the same pointee type as a pointer variable
			// of its element type would.
			return TypeSpec{Base: t.Base, IsStruct: t.IsStruct, Pointer: true}
		}
		return t
	case *Unary:
		if ex.Op == "&" {
			if id, ok := ex.Expr.(*Ident); ok {
				t, _, _ := g.varType(id.Name)
				return TypeSpec{Base: t.Base, IsStruct: t.IsStruct, Pointer: true}
			}
		}
		return TypeSpec{Base: "int"}
	case *Deref:
		inner := g.exprType(ex.Expr)
		return TypeSpec{Base: inner.Base, IsStruct: inner.IsStruct, Pointer: false}
	case *Member:
		baseTyp := g.exprType(ex.Base)
		info, ok := g.structs[baseTyp.Base]
		if !ok {
			return TypeSpec{Base: "int"}
		}
		f, ok := info.fields[ex.Field]
		if !ok {
			return TypeSpec{Base: "int"}
		}
		return f.typ
	case *Index:
		baseTyp := g.exprType(ex.Base)
		return TypeSpec{Base: baseTyp.Base, IsStruct: baseTyp.IsStruct, Pointer: false}
	case *Binary:
		// Pointer arithmetic ("p + i", "p - i") carries p's pointee type
		// through to the result, so *(p+1) picks the same byte/word op *p
		// would. A plain arithmetic expression falls through to int.
		if ex.Op == "+" || ex.Op == "-" {
			if lt := g.exprType(ex.Left); lt.Pointer {
				return lt
			}
			if rt := g.exprType(ex.Right); rt.Pointer {
				return rt
			}
		}
		return TypeSpec{Base: "int"}
	case *Call:
		if t, ok := g.funcRet[ex.Callee]; ok {
			return t
		}
		return TypeSpec{Base: "int"}
	default:
		return TypeSpec{Base: "int"}
	}
}

func (g *generator) genIdentLoad(id *Ident) error {
	if g.cur != nil {
		if off, ok := g.cur.offsets[id.Name]; ok {
			if g.cur.arrays[id.Name] {
				g.emit("GETBP")
				g.emitf("PUSH %d", off)
				g.emit("ADD")
				return nil
			}
			g.emitf("LLOAD %d", off)
			return nil
		}
	}
	if addr, ok := g.globalOff[id.Name]; ok {
		if g.globalArr[id.Name] {
			// A global array used as a value decays to its fixed address.
			g.emitf("PUSH %d", addr)
			return nil
		}
		g.emitf("PUSH %d", addr)
		if storageIsByte(g.globalType[id.Name]) {
			g.emit("LOADB")
		} else {
			g.emit("MLOAD")
		}
		return nil
	}
	return &CompileError{Reason: fmt.Sprintf("undefined variable: %s", id.Name)}
}

// genIndexAddr leaves the absolute address of base[offset] on top of the
// stack, for both loads and stores, and reports whether that address is
// byte-addressed (the element type is a bare char).
func (g *generator) genIndexAddr(ix *Index) (byteAddressed bool, err error) {
	// genExpr already decays an array identifier to its start address and
	// loads a pointer variable's value.
	if err := g.genExpr(ix.Base); err != nil {
		return false, err
	}
	if err := g.genExpr(ix.Offset); err != nil {
		return false, err
	}
	baseTyp := g.exprType(ix.Base)
	if baseTyp.Pointer && baseTyp.Base == "char" {
		g.emit("ADD")
		return true, nil
	}
	g.emit("PUSH 8")
	g.emit("MUL")
	g.emit("ADD")
	return false, nil
}

func (g *generator) genIndexLoad(ix *Index) error {
	byteAddressed, err := g.genIndexAddr(ix)
	if err != nil {
		return err
	}
	if byteAddressed {
		g.emit("LOADB")
	} else {
		g.emit("MLOAD")
	}
	return nil
}

// genBaseAddr leaves the address of a variable's own storage on the stack
// (for an array, its start address), as the & operator needs; any
// non-identifier expression is evaluated for its ordinary value.
func (g *generator) genBaseAddr(e Expr) error {
	if id, ok := e.(*Ident); ok {
		if g.cur != nil {
			if off, ok := g.cur.offsets[id.Name]; ok {
				g.emit("GETBP")
				g.emitf("PUSH %d", off)
				g.emit("ADD")
				return nil
			}
		}
		if addr, ok := g.globalOff[id.Name]; ok {
			g.emitf("PUSH %d", addr)
			return nil
		}
		return &CompileError{Reason: fmt.Sprintf("undefined variable: %s", id.Name)}
	}
	return g.genExpr(e)
}

func (g *generator) genDerefLoad(d *Deref) error {
	if err := g.genExpr(d.Expr); err != nil {
		return err
	}
	if g.exprType(d.Expr).BytePointer() {
		g.emit("LOADB")
	} else {
		g.emit("MLOAD")
	}
	return nil
}

// genMemberAddr leaves the absolute address of base->field on the stack
// and reports the field's own type, for both loads and stores.
func (g *generator) genMemberAddr(m *Member) (TypeSpec, error) {
	baseTyp := g.exprType(m.Base)
	info, ok := g.structs[baseTyp.Base]
	if !ok {
		return TypeSpec{}, &CompileError{Reason: fmt.Sprintf("member access on non-struct expression (field %q)", m.Field)}
	}
	f, ok := info.fields[m.Field]
	if !ok {
		return TypeSpec{}, &CompileError{Reason: fmt.Sprintf("struct %s has no field %s", baseTyp.Base, m.Field)}
	}
	if err := g.genExpr(m.Base); err != nil {
		return TypeSpec{}, err
	}
	if f.offset != 0 {
		g.emitf("PUSH %d", f.offset)
		g.emit("ADD")
	}
	return f.typ, nil
}

func (g *generator) genMemberLoad(m *Member) error {
	typ, err := g.genMemberAddr(m)
	if err != nil {
		return err
	}
	if storageIsByte(typ) {
		g.emit("LOADB")
	} else {
		g.emit("MLOAD")
	}
	return nil
}

func (g *generator) genUnary(u *Unary) error {
	switch u.Op {
	case "-":
		g.emit("PUSH 0")
		if err := g.genExpr(u.Expr); err != nil {
			return err
		}
		g.emit("SUB")
		return nil
	case "!":
		if err := g.genExpr(u.Expr); err != nil {
			return err
		}
		g.emit("NOT")
		return nil
	case "&":
		id, ok := u.Expr.(*Ident)
		if !ok {
			return &CompileError{Reason: "& can only be applied to a variable"}
		}
		return g.genBaseAddr(id)
	default:
		return &CompileError{Reason: fmt.Sprintf("unhandled unary operator %q", u.Op)}
	}
}

// boolify normalizes any word to a canonical 0/1, via the double-NOT trick
// (NOT is really "is this operand zero?").
func (g *generator) boolify() {
	g.emit("NOT")
	g.emit("NOT")
}

func (g *generator) genBinary(b *Binary) error {
	switch b.Op {
	case "+", "-", "*", "/":
		if err := g.genExpr(b.Left); err != nil {
			return err
		}
		if err := g.genExpr(b.Right); err != nil {
			return err
		}
		g.emit(map[string]string{"+": "ADD", "-": "SUB", "*": "MUL", "/": "DIV"}[b.Op])
		return nil
	case "<":
		return g.genCompare(b, "LT")
	case ">":
		return g.genCompare(b, "GT")
	case "<=":
		return g.genCompare(b, "GT", "NOT")
	case ">=":
		return g.genCompare(b, "LT", "NOT")
	case "==":
		if err := g.genExpr(b.Left); err != nil {
			return err
		}
		if err := g.genExpr(b.Right); err != nil {
			return err
		}
		g.emit("SUB")
		g.emit("NOT")
		return nil
	case "!=":
		if err := g.genExpr(b.Left); err != nil {
			return err
		}
		if err := g.genExpr(b.Right); err != nil {
			return err
		}
		g.emit("SUB")
		g.boolify()
		return nil
	case "&&":
		if err := g.genExpr(b.Left); err != nil {
			return err
		}
		g.boolify()
		if err := g.genExpr(b.Right); err != nil {
			return err
		}
		g.boolify()
		g.emit("MUL")
		return nil
	case "||":
		if err := g.genExpr(b.Left); err != nil {
			return err
		}
		g.boolify()
		if err := g.genExpr(b.Right); err != nil {
			return err
		}
		g.boolify()
		g.emit("ADD")
		g.boolify()
		return nil
	case "%":
		return g.genMod(b)
	default:
		return &CompileError{Reason: fmt.Sprintf("unhandled binary operator %q", b.Op)}
	}
}

func (g *generator) genCompare(b *Binary, ops ...string) error {
	if err := g.genExpr(b.Left); err != nil {
		return err
	}
	if err := g.genExpr(b.Right); err != nil {
		return err
	}
	for _, op := range ops {
		g.emit(op)
	}
	return nil
}

// genMod computes Left % Right as Left - (Left/Right)*Right. The ISA has
// no stack-swap instruction, so the two operands are stashed in hidden
// locals rather than re-evaluated (which would duplicate any side
// effects).
func (g *generator) genMod(b *Binary) error {
	tA := g.cur.temp()
	tB := g.cur.temp()
	tQ := g.cur.temp()

	if err := g.genExpr(b.Left); err != nil {
		return err
	}
	g.emitf("LSTORE %d", tA)
	if err := g.genExpr(b.Right); err != nil {
		return err
	}
	g.emitf("LSTORE %d", tB)

	g.emitf("LLOAD %d", tA)
	g.emitf("LLOAD %d", tB)
	g.emit("DIV")
	g.emitf("LSTORE %d", tQ)

	g.emitf("LLOAD %d", tA)
	g.emitf("LLOAD %d", tQ)
	g.emitf("LLOAD %d", tB)
	g.emit("MUL")
	g.emit("SUB")
	return nil
}

func (g *generator) genAssign(a *Assign) error {
	switch target := a.Target.(type) {
	case *Ident:
		if g.cur != nil {
			if off, ok := g.cur.offsets[target.Name]; ok {
				if err := g.genExpr(a.Value); err != nil {
					return err
				}
				g.emit("DUP")
				g.emitf("LSTORE %d", off)
				return nil
			}
		}
		if addr, ok := g.globalOff[target.Name]; ok {
			if err := g.genExpr(a.Value); err != nil {
				return err
			}
			g.emit("DUP")
			g.emitf("PUSH %d", addr)
			if storageIsByte(g.globalType[target.Name]) {
				g.emit("STOREB")
			} else {
				g.emit("MSTORE")
			}
			return nil
		}
		return &CompileError{Reason: fmt.Sprintf("undefined variable: %s", target.Name)}
	case *Index:
		if err := g.genExpr(a.Value); err != nil {
			return err
		}
		g.emit("DUP")
		byteAddressed, err := g.genIndexAddr(target)
		if err != nil {
			return err
		}
		if byteAddressed {
			g.emit("STOREB")
		} else {
			g.emit("MSTORE")
		}
		return nil
	case *Deref:
		if err := g.genExpr(a.Value); err != nil {
			return err
		}
		g.emit("DUP")
		if err := g.genExpr(target.Expr); err != nil {
			return err
		}
		if g.exprType(target.Expr).BytePointer() {
			g.emit("STOREB")
		} else {
			g.emit("MSTORE")
		}
		return nil
	case *Member:
		if err := g.genExpr(a.Value); err != nil {
			return err
		}
		g.emit("DUP")
		typ, err := g.genMemberAddr(target)
		if err != nil {
			return err
		}
		if storageIsByte(typ) {
			g.emit("STOREB")
		} else {
			g.emit("MSTORE")
		}
		return nil
	default:
		return &CompileError{Reason: "invalid assignment target"}
	}
}

// putcharFD is the reserved fd that /dev/stdout is bound to from the very
// start of any run (see vm.newFDTable), so putchar never needs to OPEN it.
const putcharFD = 1

func (g *generator) genCall(c *Call) error {
	if c.Callee == "putchar" {
		return g.genPutchar(c)
	}
	if !g.funcs[c.Callee] {
		return &CompileError{Reason: fmt.Sprintf("call to undefined function: %s", c.Callee)}
	}
	for _, arg := range c.Args {
		if err := g.genExpr(arg); err != nil {
			return err
		}
	}
	g.emitf("CALL func_%s", c.Callee)
	return nil
}

// genPutchar implements the POSIX putchar shim: stage the byte in a
// one-byte data cell, then WRITE(fd=1, cell_addr, 1). There is no dedicated
// character-emit syscall in this ISA (unlike the VFS-only original, whose
// syscall 4 did exactly this) — putchar is POSIX sugar over the general
// WRITE syscall, like libc itself implements it over write(2).
func (g *generator) genPutchar(c *Call) error {
	if len(c.Args) != 1 {
		return &CompileError{Reason: "putchar takes exactly one argument"}
	}
	if g.putcharAddr == 0 {
		g.putcharAddr = g.allocString("\x00")
	}

	if err := g.genExpr(c.Args[0]); err != nil {
		return err
	}
	g.emitf("PUSH %d", g.putcharAddr)
	g.emit("STOREB")

	g.emitf("PUSH %d", putcharFD)
	g.emitf("PUSH %d", g.putcharAddr)
	g.emit("PUSH 1")
	g.emitf("PUSH %d", vm.SysWrite)
	g.emit("SYSCALL")
	return nil
}

// genSyscall emits a direct syscall(id, args...) expression: each arg is
// pushed in declared order, then the id is pushed last, matching the
// interpreter's "id popped first" SYSCALL convention (vm.interp.go's
// Syscall case pops the id before dispatching). Whatever the syscall
// handler itself pushes (every handler but exit and a successful exec
// pushes exactly one result word) becomes this expression's value.
func (g *generator) genSyscall(s *Syscall) error {
	for _, arg := range s.Args {
		if err := g.genExpr(arg); err != nil {
			return err
		}
	}
	if err := g.genExpr(s.ID); err != nil {
		return err
	}
	g.emit("SYSCALL")
	return nil
}
