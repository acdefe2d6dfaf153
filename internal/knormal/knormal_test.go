package knormal_test

import (
	"testing"

	"github.com/mincaml-go/mincaml/internal/knormal"
	"github.com/mincaml-go/mincaml/internal/mctypes"
	"github.com/mincaml-go/mincaml/internal/mcvar"
	"github.com/mincaml-go/mincaml/internal/parser"
	"github.com/mincaml-go/mincaml/internal/typecheck"
)

func normalize(t *testing.T, source string) *knormal.Program {
	t.Helper()
	expr, _, err := parser.Parse(source)
	if err != nil {
		t.Fatalf("Parse(%q) error: %v", source, err)
	}
	checker := typecheck.NewChecker()
	if _, err := typecheck.Infer(checker, expr); err != nil {
		t.Fatalf("Infer(%q) error: %v", source, err)
	}
	prog, err := knormal.Normalize(checker, mcvar.NewNamer(), expr)
	if err != nil {
		t.Fatalf("Normalize(%q) error: %v", source, err)
	}
	return prog
}

func TestNormalizeLiteralsPassThrough(t *testing.T) {
	prog := normalize(t, "42")
	if _, ok := prog.Main.(knormal.IntLit); !ok {
		t.Fatalf("Main = %#v, want IntLit", prog.Main)
	}
}

func TestNormalizeHoistsNestedAdditionOperands(t *testing.T) {
	// "(1 + 2) + 3" has a compound operand on the left of the outer
	// Add, so it must be forced into a temporary binding first.
	prog := normalize(t, "(1 + 2) + 3")

	outer, ok := prog.Main.(knormal.Let)
	if !ok {
		t.Fatalf("Main = %#v, want an inserted Let hoisting the nested addition", prog.Main)
	}
	// the inner addition's own operands are hoisted inside this Rhs, so
	// it is a Let chain ending in the inner Add (flattening that chain is
	// A-normalization's job, not this pass's).
	rhs1, ok := outer.Rhs.(knormal.Let)
	var rhs2 knormal.Let
	if ok {
		rhs2, ok = rhs1.Body.(knormal.Let)
	}
	if ok {
		_, ok = rhs2.Body.(knormal.Add)
	}
	if !ok {
		t.Fatalf("hoisted Let.Rhs = %#v, want the inner Add wrapped in its two operand Lets", outer.Rhs)
	}
	// the right operand (the literal 3) is hoisted too, since every
	// operand of a primitive is forced to a bare tag, literals included.
	inner, ok := outer.Body.(knormal.Let)
	if !ok {
		t.Fatalf("outer Let.Body = %#v, want a second Let hoisting the literal 3", outer.Body)
	}
	add, ok := inner.Body.(knormal.Add)
	if !ok {
		t.Fatalf("inner Let.Body = %#v, want the outer Add referencing both hoisted temporaries", inner.Body)
	}
	if add.Left != outer.Binder || add.Right != inner.Binder {
		t.Errorf("outer Add = %+v, want Left=%v Right=%v", add, outer.Binder, inner.Binder)
	}
}

func TestNormalizeVariableReferenceNeedsNoHoist(t *testing.T) {
	prog := normalize(t, "let x = 1 in x + 2")
	outerLet, ok := prog.Main.(knormal.Let)
	if !ok {
		t.Fatalf("Main = %#v, want the source-level Let for x", prog.Main)
	}
	// the left operand (x) is already a variable and needs no hoist; the
	// right operand (the literal 2) still needs one of its own.
	hoistLet, ok := outerLet.Body.(knormal.Let)
	if !ok {
		t.Fatalf("Let.Body = %#v, want a Let hoisting the literal 2", outerLet.Body)
	}
	add, ok := hoistLet.Body.(knormal.Add)
	if !ok {
		t.Fatalf("hoist Let.Body = %#v, want Add", hoistLet.Body)
	}
	if add.Left != outerLet.Binder {
		t.Errorf("Add.Left = %v, want the let-bound tag %v directly (no extra hoist)", add.Left, outerLet.Binder)
	}
	if add.Right != hoistLet.Binder {
		t.Errorf("Add.Right = %v, want the hoisted literal's tag %v", add.Right, hoistLet.Binder)
	}
}

func TestNormalizeTupleFlattensElementsToVariables(t *testing.T) {
	prog := normalize(t, "1 + 1, 2")
	// the first element is compound (1+1) so it must be hoisted; the
	// second element (2) is a literal and must also be hoisted, since
	// Tuple's operands are restricted to bare tags just like every
	// other primitive.
	let1, ok := prog.Main.(knormal.Let)
	if !ok {
		t.Fatalf("Main = %#v, want a Let hoisting the first tuple element", prog.Main)
	}
	let2, ok := let1.Body.(knormal.Let)
	if !ok {
		t.Fatalf("Let.Body = %#v, want a second Let hoisting the second tuple element", let1.Body)
	}
	tup, ok := let2.Body.(knormal.Tuple)
	if !ok || len(tup.Elems) != 2 {
		t.Fatalf("innermost body = %#v, want a two-element Tuple", let2.Body)
	}
}

func TestNormalizeLetRecAssignsParamAndFunctionTags(t *testing.T) {
	prog := normalize(t, "let rec f x = x + 1 in f 3")
	lr, ok := prog.Main.(knormal.LetRec)
	if !ok {
		t.Fatalf("Main = %#v, want LetRec", prog.Main)
	}
	if len(lr.Fun.Params) != 1 {
		t.Fatalf("Fun.Params = %v, want exactly one parameter tag", lr.Fun.Params)
	}
	paramTy, ok := prog.BinderTypes[lr.Fun.Params[0]]
	if !ok {
		t.Fatalf("no binder type recorded for the function parameter tag")
	}
	if _, ok := paramTy.(mctypes.Int); !ok {
		t.Errorf("param type = %v, want int", paramTy)
	}
	fnTy, ok := prog.BinderTypes[lr.Fun.Name].(mctypes.Fun)
	if !ok {
		t.Fatalf("function tag has no recorded Fun type: %v", prog.BinderTypes[lr.Fun.Name])
	}
	if _, ok := fnTy.Ret.(mctypes.Int); !ok {
		t.Errorf("function return type = %v, want int", fnTy.Ret)
	}
}

func TestNormalizeEveryBinderGetsADistinctTag(t *testing.T) {
	prog := normalize(t, "let x = 1 in let y = 2 in x + y")
	outer := prog.Main.(knormal.Let)
	inner := outer.Body.(knormal.Let)
	if outer.Binder == inner.Binder {
		t.Fatalf("two distinct let-binders share tag %v", outer.Binder)
	}
}
