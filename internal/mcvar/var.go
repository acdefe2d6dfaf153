// Package mcvar is the variable identity service: every binder in the
// pipeline, whether written by the programmer or introduced by a later
// pass, is given a single globally unique Tag the moment it is created.
// Downstream passes key every table (type environments, free-variable
// sets, binder-type tables) off Tag, never off the surface-syntax name,
// so shadowing and renaming can never cause two different binders to
// collide.
//
// Grounded on the original compiler's Var tagged union (User/Generated/
// Builtin/External, each carrying a Uniq) and its CompilerPhase enum used
// to label which pass introduced a generated name.
package mcvar

import "fmt"

// Tag is a unique, monotonically increasing identifier assigned to every
// variable the instant it is created. Tags are never reused and never
// compared across two different Namer instances.
type Tag uint32

// Phase names the pass that introduced a compiler-generated variable, so
// its display form records its provenance (e.g. "#knormal_7").
type Phase int

const (
	PhaseTypecheck Phase = iota
	PhaseKNormal
	PhaseANormal
	PhaseClosure
)

func (p Phase) String() string {
	switch p {
	case PhaseTypecheck:
		return "typecheck"
	case PhaseKNormal:
		return "knormal"
	case PhaseANormal:
		return "anormal"
	case PhaseClosure:
		return "closure"
	default:
		return "unknown"
	}
}

// Variable is one of four disjoint kinds: a name written by the
// programmer, a name synthesized by a later pass, a builtin (e.g. an
// intrinsic array operation), or an external symbol resolved outside the
// pipeline (e.g. a foreign function declared but not defined here).
type Variable interface {
	Tag() Tag
	// DisplayName is the name used in diagnostics and IR dumps. Only
	// User and External variables ever carry a programmer-chosen name;
	// Generated and Builtin variables always print a synthetic form.
	DisplayName() string
	variableMarker()
}

type UserVariable struct {
	TagValue Tag
	Name     string
}

func (v UserVariable) Tag() Tag { return v.TagValue }
func (v UserVariable) DisplayName() string {
	return fmt.Sprintf("%s_%d", v.Name, v.TagValue)
}
func (UserVariable) variableMarker() {}

type GeneratedVariable struct {
	TagValue Tag
	Origin   Phase
}

func (v GeneratedVariable) Tag() Tag            { return v.TagValue }
func (v GeneratedVariable) DisplayName() string { return fmt.Sprintf("#%s_%d", v.Origin, v.TagValue) }
func (GeneratedVariable) variableMarker()       {}

type BuiltinVariable struct {
	TagValue Tag
	Name     string
}

func (v BuiltinVariable) Tag() Tag { return v.TagValue }
func (v BuiltinVariable) DisplayName() string {
	return fmt.Sprintf("#builtin[%s]", v.Name)
}
func (BuiltinVariable) variableMarker() {}

type ExternalVariable struct {
	TagValue Tag
	Name     string
}

func (v ExternalVariable) Tag() Tag { return v.TagValue }
func (v ExternalVariable) DisplayName() string {
	return fmt.Sprintf("#ext[%s]", v.Name)
}
func (ExternalVariable) variableMarker() {}

// Namer is the fresh-tag counter threaded explicitly through the
// pipeline. It is never a package-level global: each compilation gets
// its own Namer so concurrent compilations (e.g. two REPL sessions)
// never share tag space, and tests can assert exact tag numbering by
// constructing a fresh Namer.
type Namer struct {
	next Tag
}

// NewNamer returns a Namer whose first issued tag is 0.
func NewNamer() *Namer {
	return &Namer{}
}

func (n *Namer) fresh() Tag {
	t := n.next
	n.next++
	return t
}

func (n *Namer) NewUser(name string) UserVariable {
	return UserVariable{TagValue: n.fresh(), Name: name}
}

func (n *Namer) NewGenerated(origin Phase) GeneratedVariable {
	return GeneratedVariable{TagValue: n.fresh(), Origin: origin}
}

func (n *Namer) NewBuiltin(name string) BuiltinVariable {
	return BuiltinVariable{TagValue: n.fresh(), Name: name}
}

func (n *Namer) NewExternal(name string) ExternalVariable {
	return ExternalVariable{TagValue: n.fresh(), Name: name}
}

// Surface names of the builtin array operations. These are plain name
// constants; no Namer registers a tag for them.
const (
	BuiltinArrayMake = "Array.make"
	BuiltinArrayGet  = "Array.get"
	BuiltinArrayPut  = "Array.put"
)
