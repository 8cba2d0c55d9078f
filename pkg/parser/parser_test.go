package parser

import (
	"testing"

	"github.com/aspen-lang/aspen/pkg/ast"
)

func parse(t *testing.T, src string) *ast.Module {
	t.Helper()
	mod, errs := New(src).Parse()
	if len(errs) != 0 {
		t.Fatalf("unexpected parse errors: %v", errs)
	}
	return mod
}

func TestParseDeclAndAssign(t *testing.T) {
	mod := parse(t, "x := 1\nx += 2\n")
	if len(mod.Body) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(mod.Body))
	}
	decl, ok := mod.Body[0].(*ast.DeclStmt)
	if !ok || decl.Name != "x" {
		t.Fatalf("expected DeclStmt x, got %#v", mod.Body[0])
	}
	assign, ok := mod.Body[1].(*ast.AssignStmt)
	if !ok || assign.Op != "+" {
		t.Fatalf("expected AssignStmt '+', got %#v", mod.Body[1])
	}
}

func TestParseIfElifElse(t *testing.T) {
	src := "if a < 1:\n  print a\nelif a < 2:\n  print a\nelse:\n  print a\n"
	mod := parse(t, src)
	ifs, ok := mod.Body[0].(*ast.IfStmt)
	if !ok {
		t.Fatalf("expected IfStmt, got %#v", mod.Body[0])
	}
	if len(ifs.Elifs) != 1 {
		t.Fatalf("expected 1 elif clause, got %d", len(ifs.Elifs))
	}
	if ifs.Else == nil {
		t.Fatalf("expected an else body")
	}
}

func TestParseInlineBlock(t *testing.T) {
	mod := parse(t, "if true: print 1; print 2;;\nprint 3\n")
	ifs, ok := mod.Body[0].(*ast.IfStmt)
	if !ok {
		t.Fatalf("expected IfStmt, got %#v", mod.Body[0])
	}
	if len(ifs.Then) != 2 {
		t.Fatalf("expected 2 inline statements in then-body, got %d", len(ifs.Then))
	}
	if len(mod.Body) != 2 {
		t.Fatalf("expected the trailing print to be a top-level statement, got %d statements", len(mod.Body))
	}
}

func TestParseForRange(t *testing.T) {
	mod := parse(t, "for i in 0..10:\n  print i\n")
	fr, ok := mod.Body[0].(*ast.ForRangeStmt)
	if !ok {
		t.Fatalf("expected ForRangeStmt, got %#v", mod.Body[0])
	}
	if fr.Var != "i" || !fr.Excl {
		t.Fatalf("unexpected ForRangeStmt fields: %#v", fr)
	}
}

func TestParseForIn(t *testing.T) {
	mod := parse(t, "for x in items:\n  print x\n")
	fi, ok := mod.Body[0].(*ast.ForInStmt)
	if !ok {
		t.Fatalf("expected ForInStmt, got %#v", mod.Body[0])
	}
	if fi.Var != "x" {
		t.Fatalf("unexpected var name %q", fi.Var)
	}
}

func TestParseFuncDeclWithDefaults(t *testing.T) {
	mod := parse(t, "fn greet(name, greeting=\"hi\"):\n  print greeting\n")
	fn, ok := mod.Body[0].(*ast.FuncDecl)
	if !ok {
		t.Fatalf("expected FuncDecl, got %#v", mod.Body[0])
	}
	if fn.Name != "greet" || len(fn.Params) != 2 {
		t.Fatalf("unexpected FuncDecl: %#v", fn)
	}
	if fn.Params[1].Default == nil {
		t.Fatalf("expected a default for the second parameter")
	}
}

func TestParseGeneratorDetection(t *testing.T) {
	mod := parse(t, "fn counter():\n  yield 1\n  yield 2\n")
	fn := mod.Body[0].(*ast.FuncDecl)
	if !fn.IsGenerator {
		t.Fatalf("expected IsGenerator to be true")
	}
}

func TestParseClassWithFieldsAndMethods(t *testing.T) {
	src := "class Point(Base):\n  x = 0\n  y = 0\n  fn init(x, y):\n    super.init()\n    self.x = x\n    self.y = y\n"
	mod := parse(t, src)
	cd, ok := mod.Body[0].(*ast.ClassDecl)
	if !ok {
		t.Fatalf("expected ClassDecl, got %#v", mod.Body[0])
	}
	if cd.Parent != "Base" || len(cd.Fields) != 2 || len(cd.Methods) != 1 {
		t.Fatalf("unexpected ClassDecl: %#v", cd)
	}
}

func TestParseFieldAfterMethodIsError(t *testing.T) {
	src := "class Bad:\n  fn m():\n    pass\n  x = 1\n"
	_, errs := New(src).Parse()
	if len(errs) == 0 {
		t.Fatalf("expected a parse error for a field declared after a method")
	}
}

func TestParsePrecedence(t *testing.T) {
	mod := parse(t, "x := 1 + 2 * 3\n")
	decl := mod.Body[0].(*ast.DeclStmt)
	bin, ok := decl.X.(*ast.BinaryExpr)
	if !ok || bin.Op != "+" {
		t.Fatalf("expected top-level '+', got %#v", decl.X)
	}
	rhs, ok := bin.Right.(*ast.BinaryExpr)
	if !ok || rhs.Op != "*" {
		t.Fatalf("expected right-hand '*' operand, got %#v", bin.Right)
	}
}

func TestParsePowerIsRightAssociative(t *testing.T) {
	mod := parse(t, "x := 2 ** 3 ** 2\n")
	decl := mod.Body[0].(*ast.DeclStmt)
	bin := decl.X.(*ast.BinaryExpr)
	if bin.Op != "**" {
		t.Fatalf("expected '**' at top level, got %q", bin.Op)
	}
	if _, ok := bin.Right.(*ast.BinaryExpr); !ok {
		t.Fatalf("expected the right operand to itself be a '**' expression")
	}
	if _, ok := bin.Left.(*ast.IntLit); !ok {
		t.Fatalf("expected the left operand to be a literal, got %#v", bin.Left)
	}
}

func TestParseOptionalChain(t *testing.T) {
	mod := parse(t, "x := ?a.b.c\n")
	decl := mod.Body[0].(*ast.DeclStmt)
	opt, ok := decl.X.(*ast.OptionalExpr)
	if !ok {
		t.Fatalf("expected OptionalExpr, got %#v", decl.X)
	}
	if _, ok := opt.X.(*ast.FieldExpr); !ok {
		t.Fatalf("expected the optional chain body to be a field access, got %#v", opt.X)
	}
}

func TestParseCallWithKeywordArgs(t *testing.T) {
	mod := parse(t, "f(1, 2, x=3)\n")
	es := mod.Body[0].(*ast.ExprStmt)
	call, ok := es.X.(*ast.CallExpr)
	if !ok || len(call.Args) != 3 {
		t.Fatalf("expected a 3-arg call, got %#v", es.X)
	}
	if call.Args[2].Name != "x" {
		t.Fatalf("expected a keyword argument named x, got %#v", call.Args[2])
	}
}

func TestParsePositionalAfterKeywordIsError(t *testing.T) {
	_, errs := New("f(x=1, 2)\n").Parse()
	if len(errs) == 0 {
		t.Fatalf("expected a parse error for a positional argument after a keyword argument")
	}
}

func TestParseBreakOutsideLoopIsError(t *testing.T) {
	_, errs := New("break\n").Parse()
	if len(errs) == 0 {
		t.Fatalf("expected a parse error for 'break' outside a loop")
	}
}

func TestParseSelfOutsideMethodIsError(t *testing.T) {
	_, errs := New("x := self\n").Parse()
	if len(errs) == 0 {
		t.Fatalf("expected a parse error for 'self' outside a method")
	}
}

func TestParseSuperOutsideDerivedClassIsError(t *testing.T) {
	src := "class Base:\n  fn init():\n    super.init()\n"
	_, errs := New(src).Parse()
	if len(errs) == 0 {
		t.Fatalf("expected a parse error for 'super' in a non-derived class")
	}
}

func TestParseDerivedInitMustCallSuperFirst(t *testing.T) {
	src := "class Animal:\n  fn init():\n    pass\nclass Dog(Animal):\n  fn init():\n    self.name = \"rex\"\n    super.init()\n"
	_, errs := New(src).Parse()
	if len(errs) == 0 {
		t.Fatalf("expected a parse error for using self before calling super.init")
	}
}

func TestParseImportForms(t *testing.T) {
	mod := parse(t, "import a.b.c\nfrom x.y import z, w as v\n")
	if len(mod.Imports) != 2 {
		t.Fatalf("expected 2 imports, got %d", len(mod.Imports))
	}
	if len(mod.Imports[0].Path) != 3 {
		t.Fatalf("unexpected bare import path: %v", mod.Imports[0].Path)
	}
	if len(mod.Imports[1].Names) != 2 || mod.Imports[1].Names[1].Alias != "v" {
		t.Fatalf("unexpected from-import names: %#v", mod.Imports[1].Names)
	}
}

func TestParseListAndDictLiterals(t *testing.T) {
	mod := parse(t, "x := [1, 2, 3]\ny := {\"a\": 1, \"b\": 2}\n")
	list := mod.Body[0].(*ast.DeclStmt).X.(*ast.ListLit)
	if len(list.Elems) != 3 {
		t.Fatalf("expected 3 list elements, got %d", len(list.Elems))
	}
	dict := mod.Body[1].(*ast.DeclStmt).X.(*ast.DictLit)
	if len(dict.Entries) != 2 {
		t.Fatalf("expected 2 dict entries, got %d", len(dict.Entries))
	}
}
