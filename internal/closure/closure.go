// Package closure performs closure conversion: it classifies every
// `let rec` binding as either direct (callable by name, no captured
// environment) or closure (escapes into value position somewhere and so
// must carry an explicit record of the free variables its body needs),
// and rewrites the A-normal tree into a flat set of top-level function
// definitions plus a main expression in which every call site is
// resolved to either a direct call or an indirect call through a
// closure value.
//
// Grounded conceptually on the teacher's vm/compiler_scope.go upvalue
// resolution (the same direct-vs-escaping distinction the teacher draws
// between a local slot and a captured upvalue), adapted from a
// stack-slot bytecode compiler to a tree-rewriting IR pass: where the
// teacher marks a local IsCaptured and emits OP_CLOSE_UPVALUE, this pass
// marks a binding "escapes" and emits an explicit environment record at
// its definition site instead.
package closure

import (
	"github.com/mincaml-go/mincaml/internal/anormal"
	"github.com/mincaml-go/mincaml/internal/knormal"
	"github.com/mincaml-go/mincaml/internal/mctypes"
	"github.com/mincaml-go/mincaml/internal/mcvar"
)

// Expr is one node of closure-converted form. It mirrors K-normal form
// except App has been resolved into either a DirectCall or a
// ClosureCall, and LetRec has disappeared: a direct function becomes a
// TopLevelFun with nothing left at its old binding site, and a closure
// function becomes a TopLevelFun plus a MakeClosure at its old site.
type Expr interface{ closureNode() }

type Unit struct{}
type IntLit struct{ Value int64 }
type FloatLit struct{ Value float64 }
type BoolLit struct{ Value bool }

type Not struct{ Operand mcvar.Tag }
type Neg struct{ Operand mcvar.Tag }
type FNeg struct{ Operand mcvar.Tag }

type Add struct{ Left, Right mcvar.Tag }
type Sub struct{ Left, Right mcvar.Tag }
type FAdd struct{ Left, Right mcvar.Tag }
type FSub struct{ Left, Right mcvar.Tag }
type FMul struct{ Left, Right mcvar.Tag }
type FDiv struct{ Left, Right mcvar.Tag }
type Eq struct{ Left, Right mcvar.Tag }
type Le struct{ Left, Right mcvar.Tag }

type If struct {
	Cond       mcvar.Tag
	Then, Else Expr
}

type Let struct {
	Binder mcvar.Tag
	Rhs    Expr
	Body   Expr
}

type VarRef struct{ Ref mcvar.Tag }

// DirectCall invokes a top-level function by name: Fn resolves
// statically to a TopLevelFun with no environment parameters.
type DirectCall struct {
	Fn   mcvar.Tag
	Args []mcvar.Tag
}

// ClosureCall invokes a closure value: Closure names the variable
// holding the (code-label, environment) pair; the back end is expected
// to dispatch through its code label, passing the environment alongside
// Args.
type ClosureCall struct {
	Closure mcvar.Tag
	Args    []mcvar.Tag
}

// MakeClosure constructs the closure value for a closure-mode function
// at its original binding site, snapshotting FreeVars from the
// surrounding scope, then continues into Body. Binder is the same tag
// the function was originally named with (including within Body, every
// reference to that tag denotes this closure value).
type MakeClosure struct {
	Binder   mcvar.Tag
	FunName  mcvar.Tag
	FreeVars []mcvar.Tag
	Body     Expr
}

type Tuple struct{ Elems []mcvar.Tag }

type LetTuple struct {
	Binders []mcvar.Tag
	Rhs     mcvar.Tag
	Body    Expr
}

type ArrayMake struct{ Size, Init mcvar.Tag }
type Get struct{ Array, Index mcvar.Tag }
type Put struct{ Array, Index, Value mcvar.Tag }

func (Unit) closureNode()        {}
func (IntLit) closureNode()      {}
func (FloatLit) closureNode()    {}
func (BoolLit) closureNode()     {}
func (Not) closureNode()         {}
func (Neg) closureNode()         {}
func (FNeg) closureNode()        {}
func (Add) closureNode()         {}
func (Sub) closureNode()         {}
func (FAdd) closureNode()        {}
func (FSub) closureNode()        {}
func (FMul) closureNode()        {}
func (FDiv) closureNode()        {}
func (Eq) closureNode()          {}
func (Le) closureNode()          {}
func (If) closureNode()          {}
func (Let) closureNode()         {}
func (VarRef) closureNode()      {}
func (DirectCall) closureNode()  {}
func (ClosureCall) closureNode() {}
func (MakeClosure) closureNode() {}
func (Tuple) closureNode()       {}
func (LetTuple) closureNode()    {}
func (ArrayMake) closureNode()   {}
func (Get) closureNode()         {}
func (Put) closureNode()         {}

// TopLevelFun is one emitted function. Escapes records the direct/closure
// classification explicitly — it is the sole discriminator IsDirect
// reads, rather than inferring the classification from whether
// EnvParams happens to be empty, since a closure can legitimately
// capture no outer free variables at all (e.g. one whose only
// environment entry is its own self back-reference, see convertLetRec).
// EnvParams is unset for a direct function; for a closure function it
// lists the free variables captured at every MakeClosure site that
// constructs this function's closures, always including the function's
// own Name first as a self back-reference so a recursive call from
// within its own body has something to resolve against (the back end
// is expected to bind every entry, in order, alongside Params when it
// dispatches a ClosureCall).
type TopLevelFun struct {
	Name      mcvar.Tag
	Params    []mcvar.Tag
	EnvParams []mcvar.Tag
	Escapes   bool
	RetType   mctypes.Type
	Body      Expr
}

// IsDirect reports whether f was classified as a direct (non-escaping)
// function.
func (f TopLevelFun) IsDirect() bool { return !f.Escapes }

// Program is the result of closure conversion: the emitted top-level
// functions plus the closure-converted main expression.
type Program struct {
	Funcs []TopLevelFun
	Main  Expr
}

type funKind int

const (
	kindDirect funKind = iota
	kindClosure
)

type converter struct {
	binderTypes mctypesMap
	kinds       map[mcvar.Tag]funKind
	funcs       []TopLevelFun
}

type mctypesMap = map[mcvar.Tag]mctypes.Type

// Convert closure-converts an A-normalized program. It never returns an
// error: an unhandled node type panics. References to undefined binder
// tags are not checked; they are copied into the output unchanged.
func Convert(prog *anormal.Program) *Program {
	c := &converter{binderTypes: prog.BinderTypes, kinds: map[mcvar.Tag]funKind{}}
	main := c.convert(prog.Main)
	return &Program{Funcs: c.funcs, Main: main}
}

func (c *converter) convert(e knormal.Expr) Expr {
	switch n := e.(type) {
	case knormal.Unit:
		return Unit{}
	case knormal.BoolLit:
		return BoolLit{Value: n.Value}
	case knormal.IntLit:
		return IntLit{Value: n.Value}
	case knormal.FloatLit:
		return FloatLit{Value: n.Value}
	case knormal.Not:
		return Not{Operand: n.Operand}
	case knormal.Neg:
		return Neg{Operand: n.Operand}
	case knormal.FNeg:
		return FNeg{Operand: n.Operand}
	case knormal.Add:
		return Add{Left: n.Left, Right: n.Right}
	case knormal.Sub:
		return Sub{Left: n.Left, Right: n.Right}
	case knormal.FAdd:
		return FAdd{Left: n.Left, Right: n.Right}
	case knormal.FSub:
		return FSub{Left: n.Left, Right: n.Right}
	case knormal.FMul:
		return FMul{Left: n.Left, Right: n.Right}
	case knormal.FDiv:
		return FDiv{Left: n.Left, Right: n.Right}
	case knormal.Eq:
		return Eq{Left: n.Left, Right: n.Right}
	case knormal.Le:
		return Le{Left: n.Left, Right: n.Right}

	case knormal.If:
		return If{Cond: n.Cond, Then: c.convert(n.Then), Else: c.convert(n.Else)}

	case knormal.Let:
		rhs := c.convert(n.Rhs)
		// Copy propagation: `let g = f in ...` aliases g to whatever
		// kind f was classified as, so a later `g(...)` call resolves
		// the same way a direct call to `f(...)` would have.
		if vr, ok := n.Rhs.(knormal.VarRef); ok {
			if k, ok := c.kinds[vr.Ref]; ok {
				c.kinds[n.Binder] = k
			}
		}
		body := c.convert(n.Body)
		return Let{Binder: n.Binder, Rhs: rhs, Body: body}

	case knormal.VarRef:
		return VarRef{Ref: n.Ref}

	case knormal.LetRec:
		return c.convertLetRec(n)

	case knormal.App:
		return c.convertApp(n)

	case knormal.Tuple:
		return Tuple{Elems: n.Elems}

	case knormal.LetTuple:
		return LetTuple{Binders: n.Binders, Rhs: n.Rhs, Body: c.convert(n.Body)}

	case knormal.ArrayMake:
		return ArrayMake{Size: n.Size, Init: n.Init}

	case knormal.Get:
		return Get{Array: n.Array, Index: n.Index}

	case knormal.Put:
		return Put{Array: n.Array, Index: n.Index, Value: n.Value}
	}
	panic("closure: unhandled knormal node")
}

func (c *converter) convertApp(n knormal.App) Expr {
	if k, ok := c.kinds[n.Fn]; ok && k == kindDirect {
		return DirectCall{Fn: n.Fn, Args: n.Args}
	}
	// Either a known closure, or a tag whose kind can't be determined
	// statically (e.g. a higher-order function parameter): dispatch
	// indirectly through the closure value, which is always valid since
	// a direct function's identity is never itself passed around as a
	// value (if it were, escape analysis would have classified it as a
	// closure instead).
	return ClosureCall{Closure: n.Fn, Args: n.Args}
}

func (c *converter) convertLetRec(n knormal.LetRec) Expr {
	bound := map[mcvar.Tag]bool{n.Fun.Name: true}
	for _, p := range n.Fun.Params {
		bound[p] = true
	}

	escapes := occursEscaping(n.Fun.Name, n.Body)
	if escapes {
		c.kinds[n.Fun.Name] = kindClosure
	} else {
		c.kinds[n.Fun.Name] = kindDirect
	}

	free := freeVars(n.Fun.Body, bound)
	free = excludeDirectFuncs(free, c.kinds)
	if escapes {
		// A closure function's body is flattened out to a top-level
		// TopLevelFun with no enclosing let-rec scope, so a recursive
		// self-call inside it (lowered to ClosureCall{Closure: n.Fun.Name}
		// by convertApp, since c.kinds[n.Fun.Name] is already kindClosure
		// by the time c.convert(n.Fun.Body) runs below) would otherwise
		// reference a tag bound nowhere. freeVars excludes n.Fun.Name
		// from free because it's lexically bound within its own body,
		// not because it isn't referenced — so it must be threaded
		// through some other way. Per spec §4.6 ("the environment
		// carries a back-reference"), prepend it to the captured
		// environment unconditionally; the back end is expected to bind
		// this slot to the closure value currently being invoked (for a
		// self-call) or constructed (at the MakeClosure site below).
		free = append([]mcvar.Tag{n.Fun.Name}, free...)
	}

	bodyExpr := c.convert(n.Fun.Body)

	top := TopLevelFun{
		Name:    n.Fun.Name,
		Params:  n.Fun.Params,
		Escapes: escapes,
		RetType: c.retType(n.Fun.Name),
		Body:    bodyExpr,
	}
	if escapes {
		top.EnvParams = free
	}
	c.funcs = append(c.funcs, top)

	rest := c.convert(n.Body)
	if !escapes {
		return rest
	}
	return MakeClosure{Binder: n.Fun.Name, FunName: n.Fun.Name, FreeVars: free, Body: rest}
}

func (c *converter) retType(name mcvar.Tag) mctypes.Type {
	if ty, ok := c.binderTypes[name]; ok {
		if fn, ok := ty.(mctypes.Fun); ok {
			return fn.Ret
		}
	}
	return mctypes.Unit{}
}

// excludeDirectFuncs drops every tag known to name a direct top-level
// function: per spec, a let-rec's free variables exclude other direct
// functions in scope (they're globally nameable, not captured) but
// still include closure functions and ordinary values.
func excludeDirectFuncs(tags []mcvar.Tag, kinds map[mcvar.Tag]funKind) []mcvar.Tag {
	out := tags[:0:0]
	for _, t := range tags {
		if k, ok := kinds[t]; ok && k == kindDirect {
			continue
		}
		out = append(out, t)
	}
	return out
}

// occursEscaping reports whether tag appears anywhere in e other than
// as the callee (Fn) of an App: that is the definition of "escapes"
// used to classify a let-rec binding as a closure rather than direct.
func occursEscaping(tag mcvar.Tag, e knormal.Expr) bool {
	switch n := e.(type) {
	case knormal.Unit, knormal.IntLit, knormal.FloatLit, knormal.BoolLit:
		return false
	case knormal.Not:
		return n.Operand == tag
	case knormal.Neg:
		return n.Operand == tag
	case knormal.FNeg:
		return n.Operand == tag
	case knormal.Add:
		return n.Left == tag || n.Right == tag
	case knormal.Sub:
		return n.Left == tag || n.Right == tag
	case knormal.FAdd:
		return n.Left == tag || n.Right == tag
	case knormal.FSub:
		return n.Left == tag || n.Right == tag
	case knormal.FMul:
		return n.Left == tag || n.Right == tag
	case knormal.FDiv:
		return n.Left == tag || n.Right == tag
	case knormal.Eq:
		return n.Left == tag || n.Right == tag
	case knormal.Le:
		return n.Left == tag || n.Right == tag
	case knormal.If:
		return n.Cond == tag || occursEscaping(tag, n.Then) || occursEscaping(tag, n.Else)
	case knormal.Let:
		return occursEscaping(tag, n.Rhs) || occursEscaping(tag, n.Body)
	case knormal.VarRef:
		return n.Ref == tag
	case knormal.LetRec:
		return occursEscaping(tag, n.Fun.Body) || occursEscaping(tag, n.Body)
	case knormal.App:
		for _, a := range n.Args {
			if a == tag {
				return true
			}
		}
		return false
	case knormal.Tuple:
		for _, el := range n.Elems {
			if el == tag {
				return true
			}
		}
		return false
	case knormal.LetTuple:
		return n.Rhs == tag || occursEscaping(tag, n.Body)
	case knormal.ArrayMake:
		return n.Size == tag || n.Init == tag
	case knormal.Get:
		return n.Array == tag || n.Index == tag
	case knormal.Put:
		return n.Array == tag || n.Index == tag || n.Value == tag
	}
	panic("closure: unhandled knormal node in escape analysis")
}

// freeVars returns every tag referenced anywhere in e that is not in
// bound, each listed once, in first-occurrence order.
func freeVars(e knormal.Expr, bound map[mcvar.Tag]bool) []mcvar.Tag {
	seen := map[mcvar.Tag]bool{}
	var acc []mcvar.Tag
	collectFree(e, bound, seen, &acc)
	return acc
}

func collectFree(e knormal.Expr, bound, seen map[mcvar.Tag]bool, acc *[]mcvar.Tag) {
	use := func(t mcvar.Tag) {
		if bound[t] || seen[t] {
			return
		}
		seen[t] = true
		*acc = append(*acc, t)
	}
	switch n := e.(type) {
	case knormal.Unit, knormal.IntLit, knormal.FloatLit, knormal.BoolLit:
	case knormal.Not:
		use(n.Operand)
	case knormal.Neg:
		use(n.Operand)
	case knormal.FNeg:
		use(n.Operand)
	case knormal.Add:
		use(n.Left)
		use(n.Right)
	case knormal.Sub:
		use(n.Left)
		use(n.Right)
	case knormal.FAdd:
		use(n.Left)
		use(n.Right)
	case knormal.FSub:
		use(n.Left)
		use(n.Right)
	case knormal.FMul:
		use(n.Left)
		use(n.Right)
	case knormal.FDiv:
		use(n.Left)
		use(n.Right)
	case knormal.Eq:
		use(n.Left)
		use(n.Right)
	case knormal.Le:
		use(n.Left)
		use(n.Right)
	case knormal.If:
		use(n.Cond)
		collectFree(n.Then, bound, seen, acc)
		collectFree(n.Else, bound, seen, acc)
	case knormal.Let:
		collectFree(n.Rhs, bound, seen, acc)
		collectFree(n.Body, extendTagSet(bound, n.Binder), seen, acc)
	case knormal.VarRef:
		use(n.Ref)
	case knormal.LetRec:
		inner := extendTagSet(bound, n.Fun.Name)
		for _, p := range n.Fun.Params {
			inner = extendTagSet(inner, p)
		}
		collectFree(n.Fun.Body, inner, seen, acc)
		collectFree(n.Body, extendTagSet(bound, n.Fun.Name), seen, acc)
	case knormal.App:
		use(n.Fn)
		for _, a := range n.Args {
			use(a)
		}
	case knormal.Tuple:
		for _, el := range n.Elems {
			use(el)
		}
	case knormal.LetTuple:
		use(n.Rhs)
		inner := bound
		for _, b := range n.Binders {
			inner = extendTagSet(inner, b)
		}
		collectFree(n.Body, inner, seen, acc)
	case knormal.ArrayMake:
		use(n.Size)
		use(n.Init)
	case knormal.Get:
		use(n.Array)
		use(n.Index)
	case knormal.Put:
		use(n.Array)
		use(n.Index)
		use(n.Value)
	default:
		panic("closure: unhandled knormal node in free-variable computation")
	}
}

func extendTagSet(m map[mcvar.Tag]bool, t mcvar.Tag) map[mcvar.Tag]bool {
	next := make(map[mcvar.Tag]bool, len(m)+1)
	for k := range m {
		next[k] = true
	}
	next[t] = true
	return next
}
