package cc

import "fmt"

// Parser is a recursive-descent parser with precedence climbing for
// expressions, over the token stream produced by Lexer.
type Parser struct {
	lex  *Lexer
	tok  Token
	peek *Token
}

// Parse lexes and parses a full translation unit: a sequence of struct
// definitions, global declarations, and function definitions, per spec
// grammar "program = (struct_def | global_decl | func)*".
func Parse(source string) (*Program, error) {
	p := &Parser{lex: NewLexer(source)}
	if err := p.next(); err != nil {
		return nil, err
	}

	prog := &Program{}
	for p.tok.Kind != TokEOF {
		if p.isKeyword("struct") {
			la, err := p.lookahead()
			if err != nil {
				return nil, err
			}
			// "struct Name {" starts a definition; "struct Name *x ..." (a
			// type reference) falls through to the global/func path below.
			if la.Kind == TokIdent {
				la2Kind, la2Text, err := p.peekAfterIdent()
				if err != nil {
					return nil, err
				}
				if la2Kind == TokPunct && la2Text == "{" {
					sd, err := p.parseStructDef()
					if err != nil {
						return nil, err
					}
					prog.Structs = append(prog.Structs, sd)
					continue
				}
			}
		}

		typ, err := p.parseTypeSpec()
		if err != nil {
			return nil, err
		}
		if p.tok.Kind != TokIdent {
			return nil, p.errf("expected a name, got %q", p.tok.Text)
		}
		name := p.tok.Text
		if err := p.next(); err != nil {
			return nil, err
		}
		if p.isPunct("(") {
			fn, err := p.parseFunctionRest(typ, name)
			if err != nil {
				return nil, err
			}
			prog.Functions = append(prog.Functions, fn)
			continue
		}
		gd, err := p.parseVarDeclRest(typ, name)
		if err != nil {
			return nil, err
		}
		prog.Globals = append(prog.Globals, gd.(*VarDecl))
	}
	return prog, nil
}

// peekAfterIdent looks one token past p.peek (the struct tag identifier
// already buffered by a prior lookahead() call) to distinguish "struct
// Name {" (a definition) from "struct Name *x" / "struct Name x" (a type
// reference). It restores the lexer's read position afterward since this
// third token is not yet consumed by the parser.
func (p *Parser) peekAfterIdent() (TokenKind, string, error) {
	save := *p.lex
	defer func() { *p.lex = save }()

	nxt, err := p.lex.Next()
	if err != nil {
		return 0, "", err
	}
	return nxt.Kind, nxt.Text, nil
}

func (p *Parser) next() error {
	if p.peek != nil {
		p.tok = *p.peek
		p.peek = nil
		return nil
	}
	t, err := p.lex.Next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *Parser) lookahead() (Token, error) {
	if p.peek == nil {
		t, err := p.lex.Next()
		if err != nil {
			return Token{}, err
		}
		p.peek = &t
	}
	return *p.peek, nil
}

func (p *Parser) errf(format string, args ...interface{}) error {
	return &CompileError{Line: p.tok.Line, Reason: fmt.Sprintf(format, args...)}
}

func (p *Parser) expectPunct(s string) error {
	if p.tok.Kind != TokPunct || p.tok.Text != s {
		return p.errf("expected %q, got %q", s, p.tok.Text)
	}
	return p.next()
}

func (p *Parser) expectKeyword(s string) error {
	if p.tok.Kind != TokKeyword || p.tok.Text != s {
		return p.errf("expected keyword %q, got %q", s, p.tok.Text)
	}
	return p.next()
}

func (p *Parser) isPunct(s string) bool {
	return p.tok.Kind == TokPunct && p.tok.Text == s
}

func (p *Parser) isKeyword(s string) bool {
	return p.tok.Kind == TokKeyword && p.tok.Text == s
}

// parseTypeSpec parses "int", "char", or "struct Name", followed by zero
// or more "*" for pointer levels.
func (p *Parser) parseTypeSpec() (TypeSpec, error) {
	var t TypeSpec
	switch {
	case p.isKeyword("int"):
		t.Base = "int"
		if err := p.next(); err != nil {
			return t, err
		}
	case p.isKeyword("char"):
		t.Base = "char"
		if err := p.next(); err != nil {
			return t, err
		}
	case p.isKeyword("void"):
		t.Base = "void"
		if err := p.next(); err != nil {
			return t, err
		}
	case p.isKeyword("struct"):
		if err := p.next(); err != nil {
			return t, err
		}
		if p.tok.Kind != TokIdent {
			return t, p.errf("expected a struct tag, got %q", p.tok.Text)
		}
		t.Base = p.tok.Text
		t.IsStruct = true
		if err := p.next(); err != nil {
			return t, err
		}
	default:
		return t, p.errf("expected a type, got %q", p.tok.Text)
	}
	for p.isPunct("*") {
		t.Pointer = true
		if err := p.next(); err != nil {
			return t, err
		}
	}
	return t, nil
}

// parseStructDef parses "struct Name { type field; ... };".
func (p *Parser) parseStructDef() (*StructDef, error) {
	if err := p.next(); err != nil { // consume "struct"
		return nil, err
	}
	if p.tok.Kind != TokIdent {
		return nil, p.errf("expected a struct tag, got %q", p.tok.Text)
	}
	name := p.tok.Text
	if err := p.next(); err != nil {
		return nil, err
	}
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	var fields []FieldDecl
	for !p.isPunct("}") {
		ft, err := p.parseTypeSpec()
		if err != nil {
			return nil, err
		}
		if p.tok.Kind != TokIdent {
			return nil, p.errf("expected a field name, got %q", p.tok.Text)
		}
		fields = append(fields, FieldDecl{Name: p.tok.Text, Type: ft})
		if err := p.next(); err != nil {
			return nil, err
		}
		if err := p.expectPunct(";"); err != nil {
			return nil, err
		}
	}
	if err := p.next(); err != nil { // consume "}"
		return nil, err
	}
	return &StructDef{Name: name, Fields: fields}, p.expectPunct(";")
}

// parseFunctionRest parses the "( params ) { stmts }" tail of a function
// definition whose return type and name have already been consumed.
func (p *Parser) parseFunctionRest(retType TypeSpec, name string) (*Function, error) {
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var params []Param
	for !p.isPunct(")") {
		if len(params) > 0 {
			if err := p.expectPunct(","); err != nil {
				return nil, err
			}
		}
		pt, err := p.parseTypeSpec()
		if err != nil {
			return nil, err
		}
		if p.tok.Kind != TokIdent {
			return nil, p.errf("expected a parameter name, got %q", p.tok.Text)
		}
		params = append(params, Param{Name: p.tok.Text, Type: pt})
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	if err := p.next(); err != nil { // consume ")"
		return nil, err
	}

	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &Function{Name: name, RetType: retType, Params: params, Body: body}, nil
}

func (p *Parser) parseBlock() ([]Stmt, error) {
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	var stmts []Stmt
	for !p.isPunct("}") {
		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	return stmts, p.next() // consume "}"
}

func (p *Parser) parseStmt() (Stmt, error) {
	switch {
	case p.isKeyword("int") || p.isKeyword("char") || p.isKeyword("struct"):
		return p.parseVarDecl()
	case p.isKeyword("return"):
		return p.parseReturn()
	case p.isKeyword("if"):
		return p.parseIf()
	case p.isKeyword("while"):
		return p.parseWhile()
	case p.isPunct("{"):
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		return &If{Cond: &IntLit{Value: 1}, Then: body}, nil
	default:
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(";"); err != nil {
			return nil, err
		}
		return &ExprStmt{Expr: expr}, nil
	}
}

func (p *Parser) parseVarDecl() (Stmt, error) {
	typ, err := p.parseTypeSpec()
	if err != nil {
		return nil, err
	}
	if p.tok.Kind != TokIdent {
		return nil, p.errf("expected a variable name, got %q", p.tok.Text)
	}
	name := p.tok.Text
	if err := p.next(); err != nil {
		return nil, err
	}
	return p.parseVarDeclRest(typ, name)
}

// parseVarDeclRest parses the "('[' NUM ']' | '=' expr)? ';'" tail shared
// by local and global declarations; an array declaration takes no
// initializer.
func (p *Parser) parseVarDeclRest(typ TypeSpec, name string) (Stmt, error) {
	decl := &VarDecl{Name: name, Type: typ, Size: 1}

	if p.isPunct("[") {
		if err := p.next(); err != nil {
			return nil, err
		}
		if p.tok.Kind != TokInt {
			return nil, p.errf("expected an array size, got %q", p.tok.Text)
		}
		decl.IsArray = true
		decl.Size = int(p.tok.IVal)
		if err := p.next(); err != nil {
			return nil, err
		}
		if err := p.expectPunct("]"); err != nil {
			return nil, err
		}
	} else if p.isPunct("=") {
		if err := p.next(); err != nil {
			return nil, err
		}
		init, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		decl.Init = init
	}

	return decl, p.expectPunct(";")
}

func (p *Parser) parseReturn() (Stmt, error) {
	if err := p.next(); err != nil {
		return nil, err
	}
	if p.isPunct(";") {
		return &Return{}, p.next()
	}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &Return{Expr: expr}, p.expectPunct(";")
}

func (p *Parser) parseIf() (Stmt, error) {
	if err := p.next(); err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	var els []Stmt
	if p.isKeyword("else") {
		if err := p.next(); err != nil {
			return nil, err
		}
		els, err = p.parseBlock()
		if err != nil {
			return nil, err
		}
	}
	return &If{Cond: cond, Then: then, Else: els}, nil
}

func (p *Parser) parseWhile() (Stmt, error) {
	if err := p.next(); err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &While{Cond: cond, Body: body}, nil
}

// precedence climbing: higher number binds tighter.
var binPrec = map[string]int{
	"||": 1,
	"&&": 2,
	"==": 3, "!=": 3,
	"<": 4, ">": 4, "<=": 4, ">=": 4,
	"+": 5, "-": 5,
	"*": 6, "/": 6, "%": 6,
}

func (p *Parser) parseExpr() (Expr, error) {
	return p.parseAssign()
}

func (p *Parser) parseAssign() (Expr, error) {
	left, err := p.parseBinary(1)
	if err != nil {
		return nil, err
	}
	if p.isPunct("=") {
		if err := p.next(); err != nil {
			return nil, err
		}
		val, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		return &Assign{Target: left, Value: val}, nil
	}
	return left, nil
}

func (p *Parser) parseBinary(minPrec int) (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.tok.Kind == TokPunct {
		prec, ok := binPrec[p.tok.Text]
		if !ok || prec < minPrec {
			break
		}
		op := p.tok.Text
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseBinary(prec + 1)
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnary() (Expr, error) {
	if p.isPunct("*") {
		if err := p.next(); err != nil {
			return nil, err
		}
		expr, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Deref{Expr: expr}, nil
	}
	if p.isPunct("-") || p.isPunct("!") || p.isPunct("&") {
		op := p.tok.Text
		if err := p.next(); err != nil {
			return nil, err
		}
		expr, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: op, Expr: expr}, nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isPunct("["):
			if err := p.next(); err != nil {
				return nil, err
			}
			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct("]"); err != nil {
				return nil, err
			}
			expr = &Index{Base: expr, Offset: idx}
		case p.isPunct("->"):
			if err := p.next(); err != nil {
				return nil, err
			}
			if p.tok.Kind != TokIdent {
				return nil, p.errf("expected a field name after ->, got %q", p.tok.Text)
			}
			expr = &Member{Base: expr, Field: p.tok.Text}
			if err := p.next(); err != nil {
				return nil, err
			}
		default:
			return expr, nil
		}
	}
}

func (p *Parser) parsePrimary() (Expr, error) {
	switch {
	case p.tok.Kind == TokInt:
		v := p.tok.IVal
		return &IntLit{Value: v}, p.next()
	case p.tok.Kind == TokChar:
		v := p.tok.IVal
		return &IntLit{Value: v}, p.next()
	case p.tok.Kind == TokString:
		v := p.tok.Text
		return &StringLit{Value: v}, p.next()
	case p.isKeyword("sizeof"):
		return p.parseSizeof()
	case p.isKeyword("syscall"):
		return p.parseSyscall()
	case p.isPunct("("):
		if err := p.next(); err != nil {
			return nil, err
		}
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return expr, p.expectPunct(")")
	case p.tok.Kind == TokIdent:
		name := p.tok.Text
		if err := p.next(); err != nil {
			return nil, err
		}
		if p.isPunct("(") {
			return p.parseCall(name)
		}
		return &Ident{Name: name}, nil
	default:
		return nil, p.errf("unexpected token %q", p.tok.Text)
	}
}

// parseSizeof parses "sizeof ( struct NAME )".
func (p *Parser) parseSizeof() (Expr, error) {
	if err := p.next(); err != nil { // consume "sizeof"
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("struct"); err != nil {
		return nil, err
	}
	if p.tok.Kind != TokIdent {
		return nil, p.errf("expected a struct tag, got %q", p.tok.Text)
	}
	name := p.tok.Text
	if err := p.next(); err != nil {
		return nil, err
	}
	return &SizeofStruct{StructName: name}, p.expectPunct(")")
}

// parseSyscall parses "syscall ( args ) ", where args[0] is the syscall id.
func (p *Parser) parseSyscall() (Expr, error) {
	if err := p.next(); err != nil { // consume "syscall"
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var args []Expr
	for !p.isPunct(")") {
		if len(args) > 0 {
			if err := p.expectPunct(","); err != nil {
				return nil, err
			}
		}
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	if err := p.next(); err != nil { // consume ")"
		return nil, err
	}
	if len(args) == 0 {
		return nil, &CompileError{Line: p.tok.Line, Reason: "syscall() requires at least a syscall id argument"}
	}
	return &Syscall{ID: args[0], Args: args[1:]}, nil
}

func (p *Parser) parseCall(name string) (Expr, error) {
	if err := p.next(); err != nil { // consume "("
		return nil, err
	}
	var args []Expr
	for !p.isPunct(")") {
		if len(args) > 0 {
			if err := p.expectPunct(","); err != nil {
				return nil, err
			}
		}
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	return &Call{Callee: name, Args: args}, p.next()
}
