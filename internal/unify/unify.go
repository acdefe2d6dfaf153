// Package unify implements the unification algorithm used by the type
// inferencer: given two types and a substitution accumulated so far, it
// either extends the substitution to make the two types equal, or
// reports that they cannot be unified.
//
// Grounded on the teacher's typesystem.Unify/Bind/OccursCheck: the
// structural case analysis and the Bind-with-occurs-check shape are
// carried over almost unchanged, simplified to the eight-constructor
// algebra in mctypes (no kind checking, no kind kludge, no kind arrows).
// Per the documented occurs-check decision (see DESIGN.md), this unifier
// — unlike the original Rust compiler's type_check.rs, which has a
// literal "TODO occurs check" — does perform one, matching the teacher.
package unify

import (
	"fmt"

	"github.com/mincaml-go/mincaml/internal/mctypes"
)

// Error reports two types that cannot be made equal, or a cyclic type
// detected by the occurs check.
type Error struct {
	Msg string
}

func (e *Error) Error() string { return e.Msg }

func mismatch(t1, t2 mctypes.Type) error {
	return &Error{Msg: fmt.Sprintf("cannot unify %s with %s", t1.String(), t2.String())}
}

// Unify extends subst so that Apply(t1, subst) and Apply(t2, subst) are
// structurally equal, or returns an error. subst is never mutated in
// place; the returned substitution is the one to use going forward.
func Unify(subst mctypes.Subst, t1, t2 mctypes.Type) (mctypes.Subst, error) {
	t1 = mctypes.Apply(t1, subst)
	t2 = mctypes.Apply(t2, subst)

	if v1, ok := t1.(mctypes.Var); ok {
		if v2, ok := t2.(mctypes.Var); ok && v2.ID == v1.ID {
			return subst, nil
		}
		return bind(subst, v1, t2)
	}
	if v2, ok := t2.(mctypes.Var); ok {
		return bind(subst, v2, t1)
	}

	switch a := t1.(type) {
	case mctypes.Unit:
		if _, ok := t2.(mctypes.Unit); ok {
			return subst, nil
		}
	case mctypes.Bool:
		if _, ok := t2.(mctypes.Bool); ok {
			return subst, nil
		}
	case mctypes.Int:
		if _, ok := t2.(mctypes.Int); ok {
			return subst, nil
		}
	case mctypes.Float:
		if _, ok := t2.(mctypes.Float); ok {
			return subst, nil
		}
	case mctypes.Fun:
		b, ok := t2.(mctypes.Fun)
		if !ok || len(a.Args) != len(b.Args) {
			return nil, mismatch(t1, t2)
		}
		cur := subst
		var err error
		for i := range a.Args {
			cur, err = Unify(cur, a.Args[i], b.Args[i])
			if err != nil {
				return nil, err
			}
		}
		return Unify(cur, a.Ret, b.Ret)
	case mctypes.Tuple:
		b, ok := t2.(mctypes.Tuple)
		if !ok || len(a.Elems) != len(b.Elems) {
			return nil, mismatch(t1, t2)
		}
		cur := subst
		var err error
		for i := range a.Elems {
			cur, err = Unify(cur, a.Elems[i], b.Elems[i])
			if err != nil {
				return nil, err
			}
		}
		return cur, nil
	case mctypes.Array:
		b, ok := t2.(mctypes.Array)
		if !ok {
			return nil, mismatch(t1, t2)
		}
		return Unify(subst, a.Elem, b.Elem)
	}

	return nil, mismatch(t1, t2)
}

// bind extends subst with tv -> t, rejecting the binding if tv occurs
// free in t (which would otherwise construct an infinite type, e.g.
// 'a = 'a array).
func bind(subst mctypes.Subst, tv mctypes.Var, t mctypes.Type) (mctypes.Subst, error) {
	if rv, ok := t.(mctypes.Var); ok && rv.ID == tv.ID {
		return subst, nil
	}
	if occursCheck(tv, t) {
		return nil, &Error{Msg: fmt.Sprintf("infinite type: 't%d occurs in %s", tv.ID, t.String())}
	}
	next := make(mctypes.Subst, len(subst)+1)
	for k, v := range subst {
		next[k] = v
	}
	next[tv.ID] = t
	return next, nil
}

func occursCheck(tv mctypes.Var, t mctypes.Type) bool {
	for _, v := range t.FreeTyVars() {
		if v == tv.ID {
			return true
		}
	}
	return false
}
