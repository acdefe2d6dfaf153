package unify_test

import (
	"testing"

	"github.com/mincaml-go/mincaml/internal/mctypes"
	"github.com/mincaml-go/mincaml/internal/unify"
)

func TestUnifyBaseConstructors(t *testing.T) {
	cases := []struct {
		name string
		t1   mctypes.Type
		t2   mctypes.Type
	}{
		{"unit", mctypes.Unit{}, mctypes.Unit{}},
		{"bool", mctypes.Bool{}, mctypes.Bool{}},
		{"int", mctypes.Int{}, mctypes.Int{}},
		{"float", mctypes.Float{}, mctypes.Float{}},
		{"array", mctypes.Array{Elem: mctypes.Int{}}, mctypes.Array{Elem: mctypes.Int{}}},
		{
			"tuple",
			mctypes.Tuple{Elems: []mctypes.Type{mctypes.Int{}, mctypes.Bool{}}},
			mctypes.Tuple{Elems: []mctypes.Type{mctypes.Int{}, mctypes.Bool{}}},
		},
		{
			"fun",
			mctypes.Fun{Args: []mctypes.Type{mctypes.Int{}}, Ret: mctypes.Bool{}},
			mctypes.Fun{Args: []mctypes.Type{mctypes.Int{}}, Ret: mctypes.Bool{}},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := unify.Unify(mctypes.Subst{}, c.t1, c.t2); err != nil {
				t.Fatalf("Unify(%s, %s) = %v, want success", c.t1, c.t2, err)
			}
		})
	}
}

func TestUnifyBindsFreeVariable(t *testing.T) {
	n := mctypes.NewNamer()
	v := n.Fresh()

	subst, err := unify.Unify(mctypes.Subst{}, v, mctypes.Int{})
	if err != nil {
		t.Fatalf("Unify(v, Int) = %v, want success", err)
	}
	got := mctypes.Apply(v, subst)
	if _, ok := got.(mctypes.Int); !ok {
		t.Fatalf("after Unify(v, Int), Apply(v, subst) = %v, want Int", got)
	}
}

func TestUnifyThreadsSubstThroughFunArgs(t *testing.T) {
	n := mctypes.NewNamer()
	a := n.Fresh()
	b := n.Fresh()

	f1 := mctypes.Fun{Args: []mctypes.Type{a}, Ret: b}
	f2 := mctypes.Fun{Args: []mctypes.Type{mctypes.Int{}}, Ret: mctypes.Bool{}}

	subst, err := unify.Unify(mctypes.Subst{}, f1, f2)
	if err != nil {
		t.Fatalf("Unify(f1, f2) = %v, want success", err)
	}
	if _, ok := mctypes.Apply(a, subst).(mctypes.Int); !ok {
		t.Errorf("arg variable not resolved to Int: %v", mctypes.Apply(a, subst))
	}
	if _, ok := mctypes.Apply(b, subst).(mctypes.Bool); !ok {
		t.Errorf("return variable not resolved to Bool: %v", mctypes.Apply(b, subst))
	}
}

func TestUnifyOccursCheckRejectsInfiniteType(t *testing.T) {
	n := mctypes.NewNamer()
	v := n.Fresh()
	selfRef := mctypes.Array{Elem: v}

	if _, err := unify.Unify(mctypes.Subst{}, v, selfRef); err == nil {
		t.Fatalf("Unify(v, v array) succeeded, want an occurs-check error")
	}
}

func TestUnifyMismatchedConstructors(t *testing.T) {
	cases := []struct {
		name string
		t1   mctypes.Type
		t2   mctypes.Type
	}{
		{"int vs bool", mctypes.Int{}, mctypes.Bool{}},
		{"unit vs float", mctypes.Unit{}, mctypes.Float{}},
		{"array elem mismatch", mctypes.Array{Elem: mctypes.Int{}}, mctypes.Array{Elem: mctypes.Bool{}}},
		{
			"tuple arity mismatch",
			mctypes.Tuple{Elems: []mctypes.Type{mctypes.Int{}}},
			mctypes.Tuple{Elems: []mctypes.Type{mctypes.Int{}, mctypes.Bool{}}},
		},
		{
			"fun arity mismatch",
			mctypes.Fun{Args: []mctypes.Type{mctypes.Int{}}, Ret: mctypes.Unit{}},
			mctypes.Fun{Args: []mctypes.Type{mctypes.Int{}, mctypes.Int{}}, Ret: mctypes.Unit{}},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := unify.Unify(mctypes.Subst{}, c.t1, c.t2); err == nil {
				t.Fatalf("Unify(%s, %s) succeeded, want a mismatch error", c.t1, c.t2)
			}
		})
	}
}

func TestUnifySameVariableIsNoOp(t *testing.T) {
	n := mctypes.NewNamer()
	v := n.Fresh()
	subst, err := unify.Unify(mctypes.Subst{}, v, v)
	if err != nil {
		t.Fatalf("Unify(v, v) = %v, want success", err)
	}
	if len(subst) != 0 {
		t.Errorf("Unify(v, v) extended the substitution: %v, want unchanged", subst)
	}
}
