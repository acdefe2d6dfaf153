// Package anormal flattens K-normal form into A-normal form: the
// right-hand side of a Let is never itself a Let, LetTuple, or LetRec.
// K-normalization already forces every primitive operand to a
// variable, but a compound subexpression can still appear as the Rhs of
// an outer Let whenever it is bound directly, e.g.
// `let y = (let x = 1 in x + 1) in y`. This pass re-associates every
// such nesting into the equivalent sequential chain
// `let x = 1 in let y = x + 1 in y`
// so every later pass (closure conversion, and any code generator built
// on top of it) can assume no Let's Rhs is itself a binding form. An If
// in Rhs position is left where it is:
// `let z = (if c then 1 else 2) in z` comes out unchanged.
//
// There is no teacher analogue for this rewrite (MinCaml-family
// compilers are the only place it comes up); grounded on the same
// flatten/assoc idiom the original compiler's knormal.ml box uses for
// its own insert_let, applied here as a dedicated second pass so
// internal/knormal can stay a straightforward syntax-directed
// translation without also tracking flattening.
package anormal

import (
	"github.com/mincaml-go/mincaml/internal/knormal"
	"github.com/mincaml-go/mincaml/internal/mctypes"
	"github.com/mincaml-go/mincaml/internal/mcvar"
)

// Program is K-normal form's Program after flattening: the binder-type
// table carries over unchanged (flattening only reshapes Let nesting,
// it introduces no new binders and deletes none).
type Program struct {
	Main        knormal.Expr
	BinderTypes map[mcvar.Tag]mctypes.Type
}

// Normalize flattens kp.Main into A-normal form.
func Normalize(kp *knormal.Program) *Program {
	return &Program{Main: flatten(kp.Main), BinderTypes: kp.BinderTypes}
}

// Flatten rewrites e into A-normal form. Exposed standalone for tests
// that want to check the rewrite in isolation from a full Program.
func Flatten(e knormal.Expr) knormal.Expr {
	return flatten(e)
}

func flatten(e knormal.Expr) knormal.Expr {
	switch n := e.(type) {
	case knormal.If:
		return knormal.If{Cond: n.Cond, Then: flatten(n.Then), Else: flatten(n.Else)}

	case knormal.Let:
		rhs := flatten(n.Rhs)
		body := flatten(n.Body)
		return assoc(rhs, func(continued knormal.Expr) knormal.Expr {
			return knormal.Let{Binder: n.Binder, Rhs: continued, Body: body}
		})

	case knormal.LetRec:
		return knormal.LetRec{
			Fun:  knormal.FunDef{Name: n.Fun.Name, Params: n.Fun.Params, Body: flatten(n.Fun.Body)},
			Body: flatten(n.Body),
		}

	case knormal.LetTuple:
		return knormal.LetTuple{Binders: n.Binders, Rhs: n.Rhs, Body: flatten(n.Body)}

	default:
		return e
	}
}

// assoc rebuilds `continue(rhs)` (typically a Let, LetTuple, or similar
// wrapper whose Rhs slot rhs fills) so that if rhs is itself a compound
// binding form, that form ends up on the outside instead:
//
//	continue(let b = r in body)   ~>  let b = r in continue(body)
//
// LetTuple and LetRec are moved outward the same way. Any other rhs,
// including an If, is passed to continue unchanged.
//
// This is the classic MinCaml "insert_let" re-association, applied as a
// standalone rewrite instead of being threaded through K-normalization.
func assoc(rhs knormal.Expr, continue_ func(knormal.Expr) knormal.Expr) knormal.Expr {
	switch n := rhs.(type) {
	case knormal.Let:
		return knormal.Let{Binder: n.Binder, Rhs: n.Rhs, Body: assoc(n.Body, continue_)}

	case knormal.LetTuple:
		return knormal.LetTuple{Binders: n.Binders, Rhs: n.Rhs, Body: assoc(n.Body, continue_)}

	case knormal.LetRec:
		return knormal.LetRec{Fun: n.Fun, Body: assoc(n.Body, continue_)}

	default:
		return continue_(rhs)
	}
}
