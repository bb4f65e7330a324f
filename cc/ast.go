package cc

// Expr is any expression node.
type Expr interface{ exprNode() }

// Stmt is any statement node.
type Stmt interface{ stmtNode() }

type (
	// IntLit is a bare integer or character literal.
	IntLit struct{ Value int64 }

	// StringLit is a double-quoted string literal; the code generator
	// lays its bytes into the data segment and substitutes the address.
	StringLit struct{ Value string }

	// Ident is a variable reference.
	Ident struct{ Name string }

	// Unary is a prefix operator: "-", "!", "&".
	Unary struct {
		Op   string
		Expr Expr
	}

	// Binary is an infix operator produced by precedence climbing.
	Binary struct {
		Op          string
		Left, Right Expr
	}

	// Assign is "lvalue = Expr". The code generator accepts an Ident, Index,
	// Deref or Member as Target and rejects anything else.
	Assign struct {
		Target Expr
		Value  Expr
	}

	// Call is a function call with positional arguments, evaluated
	// left-to-right and pushed in that order per the calling convention.
	Call struct {
		Callee string
		Args   []Expr
	}

	// Index is "base[offset]", used for array element access.
	Index struct {
		Base   Expr
		Offset Expr
	}

	// Deref is "*expr", a pointer dereference used as an rvalue (as an
	// assignment target it is the Target of an Assign instead).
	Deref struct{ Expr Expr }

	// Member is "base->field", struct field access through a pointer.
	Member struct {
		Base  Expr
		Field string
	}

	// Syscall is "syscall(idExpr, args...)": idExpr is pushed last (on
	// top) per the interpreter's "id popped first" convention, args are
	// pushed in declared order ahead of it.
	Syscall struct {
		ID   Expr
		Args []Expr
	}

	// SizeofStruct is "sizeof(struct Name)", a compile-time constant
	// resolved from the struct table.
	SizeofStruct struct{ StructName string }
)

func (*IntLit) exprNode()       {}
func (*StringLit) exprNode()    {}
func (*Ident) exprNode()        {}
func (*Unary) exprNode()        {}
func (*Binary) exprNode()       {}
func (*Assign) exprNode()       {}
func (*Call) exprNode()         {}
func (*Index) exprNode()        {}
func (*Deref) exprNode()        {}
func (*Member) exprNode()       {}
func (*Syscall) exprNode()      {}
func (*SizeofStruct) exprNode() {}

type (
	// VarDecl declares a local or global: "int name;", "int name = expr;",
	// "int name[size];", or any of those with a pointer Type ("T* name").
	VarDecl struct {
		Name    string
		Type    TypeSpec
		Size    int // 1 for a scalar, the element count for an array
		Init    Expr
		IsArray bool
	}

	// ExprStmt is an expression evaluated for its side effects, its
	// result discarded.
	ExprStmt struct{ Expr Expr }

	// Return is "return expr;" or a bare "return;" (Expr == nil), the
	// latter leaving 0 as the function's result.
	Return struct{ Expr Expr }

	// If is "if (Cond) Then [else Else]".
	If struct {
		Cond       Expr
		Then, Else []Stmt
	}

	// While is "while (Cond) Body".
	While struct {
		Cond Expr
		Body []Stmt
	}
)

func (*VarDecl) stmtNode()  {}
func (*ExprStmt) stmtNode() {}
func (*Return) stmtNode()   {}
func (*If) stmtNode()       {}
func (*While) stmtNode()    {}

// TypeSpec is a parsed type: a base keyword ("int" or "char") or a struct
// tag ("struct Name"), with an optional pointer level. A scalar local,
// param or global occupies one word regardless of Base; a char struct field
// or char array element occupies one byte, and a by-value struct occupies
// its struct's size. Type also decides which load/store opcode a
// dereference picks (LOADB/STOREB for a char pointer, MLOAD/MSTORE
// otherwise).
type TypeSpec struct {
	Base     string // "int", "char", or a struct tag name
	IsStruct bool
	Pointer  bool
}

// BytePointer reports whether a value of this type is a pointer whose
// pointee is byte-addressed (char*), the one case the code generator must
// treat differently from everything else.
func (t TypeSpec) BytePointer() bool { return t.Pointer && t.Base == "char" }

// Param is one function parameter.
type Param struct {
	Name string
	Type TypeSpec
}

// Function is a top-level function definition.
type Function struct {
	Name    string
	RetType TypeSpec
	Params  []Param
	Body    []Stmt
}

// FieldDecl is one member of a struct definition.
type FieldDecl struct {
	Name string
	Type TypeSpec
}

// StructDef is a top-level "struct Name { ... };" declaration.
type StructDef struct {
	Name   string
	Fields []FieldDecl
}

// Program is a fully parsed translation unit: struct definitions, global
// variable declarations, and function definitions, each in source order.
// main, if present among Functions, is the program's entry point.
type Program struct {
	Structs   []*StructDef
	Globals   []*VarDecl
	Functions []*Function
}
