// Package knormal lowers the type-checked surface AST into K-normal
// form: every operand of a primitive operation, a function call, a
// tuple, or an array operation is forced to be a plain variable
// reference. A subexpression that is not already a variable reference
// is evaluated into a fresh let-binding before the primitive that needs
// it, so evaluation order becomes explicit in the tree shape itself.
//
// This is also where every binder — user-written or compiler-inserted
// — is assigned its mcvar.Tag and recorded in the binder-type table, so
// every later pass can work purely in terms of tags.
//
// There is no direct teacher analogue for K-normalization (the teacher
// compiles straight from its typed AST to bytecode); this pass is
// grounded on the original compiler's own knormal.ml shape — relayed
// through the same g/insert_let structure described in spec.md — and
// written in the teacher's AST-walking, Visitor-free recursive style.
package knormal

import (
	"github.com/mincaml-go/mincaml/internal/ast"
	"github.com/mincaml-go/mincaml/internal/mctypes"
	"github.com/mincaml-go/mincaml/internal/mcvar"
	"github.com/mincaml-go/mincaml/internal/typecheck"
)

// Expr is one node of K-normal form.
type Expr interface{ knormalNode() }

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

// Let is both the source-level `let` and every compiler-inserted
// temporary binding introduced to force an operand to a variable.
type Let struct {
	Binder mcvar.Tag
	Rhs    Expr
	Body   Expr
}

type VarRef struct{ Ref mcvar.Tag }

// FunDef is a `let rec` definition in K-normal form.
type FunDef struct {
	Name   mcvar.Tag
	Params []mcvar.Tag
	Body   Expr
}

type LetRec struct {
	Fun  FunDef
	Body Expr
}

type App struct {
	Fn   mcvar.Tag
	Args []mcvar.Tag
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

func (Unit) knormalNode()      {}
func (IntLit) knormalNode()    {}
func (FloatLit) knormalNode()  {}
func (BoolLit) knormalNode()   {}
func (Not) knormalNode()       {}
func (Neg) knormalNode()       {}
func (FNeg) knormalNode()      {}
func (Add) knormalNode()       {}
func (Sub) knormalNode()       {}
func (FAdd) knormalNode()      {}
func (FSub) knormalNode()      {}
func (FMul) knormalNode()      {}
func (FDiv) knormalNode()      {}
func (Eq) knormalNode()        {}
func (Le) knormalNode()        {}
func (If) knormalNode()        {}
func (Let) knormalNode()       {}
func (VarRef) knormalNode()    {}
func (LetRec) knormalNode()    {}
func (App) knormalNode()       {}
func (Tuple) knormalNode()     {}
func (LetTuple) knormalNode()  {}
func (ArrayMake) knormalNode() {}
func (Get) knormalNode()       {}
func (Put) knormalNode()       {}

// Program is the result of K-normalization: the single main expression,
// plus the binder-type table recording every tag's resolved type.
type Program struct {
	Main        Expr
	BinderTypes map[mcvar.Tag]mctypes.Type
}

type normalizer struct {
	checker     *typecheck.Checker
	namer       *mcvar.Namer
	binderTypes map[mcvar.Tag]mctypes.Type
}

// Normalize K-normalizes expr, given the Checker that already type-checked
// it (so its substitution is final) and the Namer used to tag binders.
func Normalize(checker *typecheck.Checker, namer *mcvar.Namer, expr ast.Expr) (*Program, error) {
	n := &normalizer{checker: checker, namer: namer, binderTypes: map[mcvar.Tag]mctypes.Type{}}
	tagEnv := map[string]mcvar.Tag{}
	typeEnv := typecheck.BuiltinEnv()
	for name, ty := range typeEnv {
		v := namer.NewBuiltin(name)
		tagEnv[name] = v.Tag()
		n.binderTypes[v.Tag()] = ty
	}
	main, _, err := n.g(tagEnv, typeEnv, expr)
	if err != nil {
		return nil, err
	}
	return &Program{Main: main, BinderTypes: n.binderTypes}, nil
}

// insertLet forces e (of type ty) to be a variable: if e is already a
// VarRef it is used directly, otherwise a fresh binder is introduced
// around the continuation k.
func (n *normalizer) insertLet(e Expr, ty mctypes.Type, k func(mcvar.Tag) Expr) Expr {
	if v, ok := e.(VarRef); ok {
		return k(v.Ref)
	}
	tmp := n.namer.NewGenerated(mcvar.PhaseKNormal)
	n.binderTypes[tmp.Tag()] = ty
	return Let{Binder: tmp.Tag(), Rhs: e, Body: k(tmp.Tag())}
}

type tagEnv = map[string]mcvar.Tag

// g normalizes expr under the given tag and type environments, returning
// the K-normal form and its type.
func (n *normalizer) g(tags tagEnv, types typecheck.Env, expr ast.Expr) (Expr, mctypes.Type, error) {
	switch e := expr.(type) {
	case ast.UnitLit:
		return Unit{}, mctypes.Unit{}, nil
	case ast.BoolLit:
		return BoolLit{Value: e.Value}, mctypes.Bool{}, nil
	case ast.IntLit:
		return IntLit{Value: e.Value}, mctypes.Int{}, nil
	case ast.FloatLit:
		return FloatLit{Value: e.Value}, mctypes.Float{}, nil

	case ast.Not:
		oe, oty, err := n.g(tags, types, e.Operand)
		if err != nil {
			return nil, nil, err
		}
		return n.insertLet(oe, oty, func(x mcvar.Tag) Expr { return Not{Operand: x} }), mctypes.Bool{}, nil

	case ast.Neg:
		oe, oty, err := n.g(tags, types, e.Operand)
		if err != nil {
			return nil, nil, err
		}
		return n.insertLet(oe, oty, func(x mcvar.Tag) Expr { return Neg{Operand: x} }), mctypes.Int{}, nil

	case ast.FNeg:
		oe, oty, err := n.g(tags, types, e.Operand)
		if err != nil {
			return nil, nil, err
		}
		return n.insertLet(oe, oty, func(x mcvar.Tag) Expr { return FNeg{Operand: x} }), mctypes.Float{}, nil

	case ast.Binary:
		return n.gBinary(tags, types, e)

	case ast.If:
		ce, cty, err := n.g(tags, types, e.Cond)
		if err != nil {
			return nil, nil, err
		}
		thenE, thenTy, err := n.g(tags, types, e.Then)
		if err != nil {
			return nil, nil, err
		}
		elseE, _, err := n.g(tags, types, e.Else)
		if err != nil {
			return nil, nil, err
		}
		result := n.insertLet(ce, cty, func(x mcvar.Tag) Expr {
			return If{Cond: x, Then: thenE, Else: elseE}
		})
		return result, thenTy, nil

	case ast.Let:
		rhsE, rhsTy, err := n.g(tags, types, e.Rhs)
		if err != nil {
			return nil, nil, err
		}
		v := n.namer.NewUser(e.Name)
		n.binderTypes[v.Tag()] = rhsTy

		newTags := withTag(tags, e.Name, v.Tag())
		newTypes := withType(types, e.Name, rhsTy)
		bodyE, bodyTy, err := n.g(newTags, newTypes, e.Body)
		if err != nil {
			return nil, nil, err
		}
		return Let{Binder: v.Tag(), Rhs: rhsE, Body: bodyE}, bodyTy, nil

	case ast.Var:
		tag, ok := tags[e.Name]
		if !ok {
			return nil, nil, &typecheck.UnboundVar{Name: e.Name}
		}
		ty := n.binderTypes[tag]
		return VarRef{Ref: tag}, ty, nil

	case ast.LetRec:
		return n.gLetRec(tags, types, e)

	case ast.App:
		fnE, fnTy, err := n.g(tags, types, e.Fn)
		if err != nil {
			return nil, nil, err
		}
		funTy, _ := fnTy.(mctypes.Fun)

		type argResult struct {
			expr Expr
			ty   mctypes.Type
		}
		argResults := make([]argResult, len(e.Args))
		for i, a := range e.Args {
			ae, aty, err := n.g(tags, types, a)
			if err != nil {
				return nil, nil, err
			}
			argResults[i] = argResult{ae, aty}
		}

		var build func(int, []mcvar.Tag) Expr
		build = func(i int, acc []mcvar.Tag) Expr {
			if i == len(argResults) {
				return App{Fn: acc[0], Args: acc[1:]}
			}
			return n.insertLet(argResults[i].expr, argResults[i].ty, func(x mcvar.Tag) Expr {
				return build(i+1, append(acc, x))
			})
		}
		result := n.insertLet(fnE, fnTy, func(fn mcvar.Tag) Expr {
			return build(0, []mcvar.Tag{fn})
		})
		ret := mctypes.Type(mctypes.Unit{})
		if funTy.Ret != nil {
			ret = funTy.Ret
		}
		return result, ret, nil

	case ast.Tuple:
		type elemResult struct {
			expr Expr
			ty   mctypes.Type
		}
		elems := make([]elemResult, len(e.Elems))
		tys := make([]mctypes.Type, len(e.Elems))
		for i, el := range e.Elems {
			ee, ety, err := n.g(tags, types, el)
			if err != nil {
				return nil, nil, err
			}
			elems[i] = elemResult{ee, ety}
			tys[i] = ety
		}
		var build func(int, []mcvar.Tag) Expr
		build = func(i int, acc []mcvar.Tag) Expr {
			if i == len(elems) {
				return Tuple{Elems: acc}
			}
			return n.insertLet(elems[i].expr, elems[i].ty, func(x mcvar.Tag) Expr {
				return build(i+1, append(acc, x))
			})
		}
		return build(0, nil), mctypes.Tuple{Elems: tys}, nil

	case ast.LetTuple:
		rhsE, rhsTy, err := n.g(tags, types, e.Rhs)
		if err != nil {
			return nil, nil, err
		}
		tupleTy, _ := rhsTy.(mctypes.Tuple)
		binders := make([]mcvar.Tag, len(e.Names))
		newTags := tags
		newTypes := types
		for i, name := range e.Names {
			v := n.namer.NewUser(name)
			var elemTy mctypes.Type = mctypes.Unit{}
			if i < len(tupleTy.Elems) {
				elemTy = tupleTy.Elems[i]
			}
			n.binderTypes[v.Tag()] = elemTy
			binders[i] = v.Tag()
			newTags = withTag(newTags, name, v.Tag())
			newTypes = withType(newTypes, name, elemTy)
		}
		bodyE, bodyTy, err := n.g(newTags, newTypes, e.Body)
		if err != nil {
			return nil, nil, err
		}
		result := n.insertLet(rhsE, rhsTy, func(x mcvar.Tag) Expr {
			return LetTuple{Binders: binders, Rhs: x, Body: bodyE}
		})
		return result, bodyTy, nil

	case ast.ArrayMake:
		sizeE, sizeTy, err := n.g(tags, types, e.Size)
		if err != nil {
			return nil, nil, err
		}
		initE, initTy, err := n.g(tags, types, e.Init)
		if err != nil {
			return nil, nil, err
		}
		result := n.insertLet(sizeE, sizeTy, func(sz mcvar.Tag) Expr {
			return n.insertLet(initE, initTy, func(iv mcvar.Tag) Expr {
				return ArrayMake{Size: sz, Init: iv}
			})
		})
		return result, mctypes.Array{Elem: initTy}, nil

	case ast.Get:
		arrE, arrTy, err := n.g(tags, types, e.Array)
		if err != nil {
			return nil, nil, err
		}
		idxE, idxTy, err := n.g(tags, types, e.Index)
		if err != nil {
			return nil, nil, err
		}
		arrayTy, _ := arrTy.(mctypes.Array)
		result := n.insertLet(arrE, arrTy, func(arr mcvar.Tag) Expr {
			return n.insertLet(idxE, idxTy, func(idx mcvar.Tag) Expr {
				return Get{Array: arr, Index: idx}
			})
		})
		elemTy := mctypes.Type(mctypes.Unit{})
		if arrayTy.Elem != nil {
			elemTy = arrayTy.Elem
		}
		return result, elemTy, nil

	case ast.Put:
		arrE, arrTy, err := n.g(tags, types, e.Array)
		if err != nil {
			return nil, nil, err
		}
		idxE, idxTy, err := n.g(tags, types, e.Index)
		if err != nil {
			return nil, nil, err
		}
		valE, valTy, err := n.g(tags, types, e.Value)
		if err != nil {
			return nil, nil, err
		}
		result := n.insertLet(arrE, arrTy, func(arr mcvar.Tag) Expr {
			return n.insertLet(idxE, idxTy, func(idx mcvar.Tag) Expr {
				return n.insertLet(valE, valTy, func(val mcvar.Tag) Expr {
					return Put{Array: arr, Index: idx, Value: val}
				})
			})
		})
		return result, mctypes.Unit{}, nil
	}
	panic("knormal: unhandled AST node")
}

func (n *normalizer) gBinary(tags tagEnv, types typecheck.Env, e ast.Binary) (Expr, mctypes.Type, error) {
	le, lty, err := n.g(tags, types, e.Left)
	if err != nil {
		return nil, nil, err
	}
	re, rty, err := n.g(tags, types, e.Right)
	if err != nil {
		return nil, nil, err
	}
	build := func(mk func(l, r mcvar.Tag) Expr) Expr {
		return n.insertLet(le, lty, func(l mcvar.Tag) Expr {
			return n.insertLet(re, rty, func(r mcvar.Tag) Expr {
				return mk(l, r)
			})
		})
	}
	switch e.Op {
	case ast.Add:
		return build(func(l, r mcvar.Tag) Expr { return Add{l, r} }), mctypes.Int{}, nil
	case ast.Sub:
		return build(func(l, r mcvar.Tag) Expr { return Sub{l, r} }), mctypes.Int{}, nil
	case ast.FAdd:
		return build(func(l, r mcvar.Tag) Expr { return FAdd{l, r} }), mctypes.Float{}, nil
	case ast.FSub:
		return build(func(l, r mcvar.Tag) Expr { return FSub{l, r} }), mctypes.Float{}, nil
	case ast.FMul:
		return build(func(l, r mcvar.Tag) Expr { return FMul{l, r} }), mctypes.Float{}, nil
	case ast.FDiv:
		return build(func(l, r mcvar.Tag) Expr { return FDiv{l, r} }), mctypes.Float{}, nil
	case ast.Eq:
		return build(func(l, r mcvar.Tag) Expr { return Eq{l, r} }), mctypes.Bool{}, nil
	case ast.Le:
		return build(func(l, r mcvar.Tag) Expr { return Le{l, r} }), mctypes.Bool{}, nil
	}
	panic("knormal: unhandled binary operator")
}

// gLetRec re-derives the function's monomorphic type the same way
// typecheck.inferLetRec originally did — fresh type variables for each
// parameter and the return type, inserted into a scoped environment
// before walking the body, so recursive self-calls unify against the
// same placeholders — then reads the resolved result back out of the
// Checker's (already-settled) substitution.
func (n *normalizer) gLetRec(tags tagEnv, types typecheck.Env, e ast.LetRec) (Expr, mctypes.Type, error) {
	funTag := n.namer.NewUser(e.Fun.Name)
	argTag := make([]mcvar.Tag, len(e.Fun.Params))
	argTyVars := make([]mctypes.Type, len(e.Fun.Params))
	for i, p := range e.Fun.Params {
		argTag[i] = n.namer.NewUser(p).Tag()
		argTyVars[i] = n.checker.Namer.Fresh()
	}
	retTyVar := n.checker.Namer.Fresh()
	placeholderFunTy := mctypes.Fun{Args: argTyVars, Ret: retTyVar}

	scopedTypes := withType(types, e.Fun.Name, placeholderFunTy)
	for i, p := range e.Fun.Params {
		scopedTypes = withType(scopedTypes, p, argTyVars[i])
	}

	bodyTy, err := n.checker.TypeOf(scopedTypes, e.Fun.Body)
	if err != nil {
		return nil, nil, err
	}

	paramTys := make([]mctypes.Type, len(e.Fun.Params))
	for i := range e.Fun.Params {
		paramTys[i] = n.checker.Resolve(argTyVars[i])
		n.binderTypes[argTag[i]] = paramTys[i]
	}
	funTy := mctypes.Fun{Args: paramTys, Ret: bodyTy}
	n.binderTypes[funTag.Tag()] = funTy

	newTags := withTag(tags, e.Fun.Name, funTag.Tag())
	newTypes := withType(types, e.Fun.Name, funTy)
	for i, p := range e.Fun.Params {
		newTags = withTag(newTags, p, argTag[i])
		newTypes = withType(newTypes, p, paramTys[i])
	}
	bodyE, _, err := n.g(newTags, newTypes, e.Fun.Body)
	if err != nil {
		return nil, nil, err
	}

	restTags := withTag(tags, e.Fun.Name, funTag.Tag())
	restTypes := withType(types, e.Fun.Name, funTy)
	restE, restTy, err := n.g(restTags, restTypes, e.Body)
	if err != nil {
		return nil, nil, err
	}
	return LetRec{
		Fun:  FunDef{Name: funTag.Tag(), Params: argTag, Body: bodyE},
		Body: restE,
	}, restTy, nil
}

func withTag(m tagEnv, name string, tag mcvar.Tag) tagEnv {
	next := make(tagEnv, len(m)+1)
	for k, v := range m {
		next[k] = v
	}
	next[name] = tag
	return next
}

func withType(m typecheck.Env, name string, ty mctypes.Type) typecheck.Env {
	next := make(typecheck.Env, len(m)+1)
	for k, v := range m {
		next[k] = v
	}
	next[name] = ty
	return next
}
