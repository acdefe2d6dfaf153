// Package parser is a hand-written recursive-descent parser for MinCaml
// surface syntax, producing the ast.Expr the rest of the pipeline
// consumes plus a binder count (the number of distinct program-written
// binding occurrences: let-names, let-rec function names and
// parameters, and let-tuple component names).
//
// Grounded on the teacher's internal/parser package: a Parser struct
// holding the token stream and a current-token cursor, one method per
// grammar rule, and a single *Error struct returned on the first parse
// failure — no error recovery, matching the "first error aborts"
// handling spec.md mandates for the stages downstream of this one.
package parser

import (
	"fmt"
	"strconv"

	"github.com/mincaml-go/mincaml/internal/ast"
	"github.com/mincaml-go/mincaml/internal/lexer"
	"github.com/mincaml-go/mincaml/internal/token"
)

// Error reports a parse failure at a source position.
type Error struct {
	Line, Col int
	Msg       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Col, e.Msg)
}

type Parser struct {
	toks        []token.Token
	pos         int
	binderCount int
}

// Parse lexes and parses source, returning the root expression and the
// number of binder occurrences the parser issued.
func Parse(source string) (ast.Expr, int, error) {
	toks, err := lexer.Tokenize(source)
	if err != nil {
		return nil, 0, err
	}
	p := &Parser{toks: toks}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, 0, err
	}
	if p.cur().Kind != token.EOF {
		return nil, 0, p.errorf("unexpected trailing input %q", p.cur().Lexeme)
	}
	return expr, p.binderCount, nil
}

func (p *Parser) cur() token.Token {
	return p.toks[p.pos]
}

func (p *Parser) advance() token.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) errorf(format string, args ...interface{}) error {
	t := p.cur()
	return &Error{Line: t.Line, Col: t.Col, Msg: fmt.Sprintf(format, args...)}
}

func (p *Parser) expect(k token.Kind) (token.Token, error) {
	if p.cur().Kind != k {
		return token.Token{}, p.errorf("expected %s, got %q", k, p.cur().Lexeme)
	}
	return p.advance(), nil
}

func pos(t token.Token) ast.Pos { return ast.Pos{Line: t.Line, Col: t.Col} }

// parseExpr is the top of the grammar: if/let bind looser than every
// operator, so they are tried first and otherwise fall through to the
// tuple level.
func (p *Parser) parseExpr() (ast.Expr, error) {
	switch p.cur().Kind {
	case token.IF:
		return p.parseIf()
	case token.LET:
		return p.parseLet()
	default:
		return p.parseTuple()
	}
}

func (p *Parser) parseIf() (ast.Expr, error) {
	start := p.advance() // IF
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.THEN); err != nil {
		return nil, err
	}
	thenE, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.ELSE); err != nil {
		return nil, err
	}
	elseE, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return ast.If{Pos: pos(start), Cond: cond, Then: thenE, Else: elseE}, nil
}

func (p *Parser) parseLet() (ast.Expr, error) {
	start := p.advance() // LET
	switch {
	case p.cur().Kind == token.REC:
		p.advance()
		nameTok, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		p.binderCount++
		var params []string
		for p.cur().Kind == token.IDENT {
			params = append(params, p.advance().Lexeme)
			p.binderCount++
		}
		if len(params) == 0 {
			return nil, p.errorf("let rec %s requires at least one parameter", nameTok.Lexeme)
		}
		if _, err := p.expect(token.EQUAL); err != nil {
			return nil, err
		}
		body, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.IN); err != nil {
			return nil, err
		}
		rest, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return ast.LetRec{
			Pos:  pos(start),
			Fun:  ast.FunDef{Name: nameTok.Lexeme, Params: params, Body: body},
			Body: rest,
		}, nil

	case p.cur().Kind == token.LPAREN:
		p.advance()
		first, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		p.binderCount++
		names := []string{first.Lexeme}
		for p.cur().Kind == token.COMMA {
			p.advance()
			nt, err := p.expect(token.IDENT)
			if err != nil {
				return nil, err
			}
			p.binderCount++
			names = append(names, nt.Lexeme)
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		if _, err := p.expect(token.EQUAL); err != nil {
			return nil, err
		}
		rhs, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.IN); err != nil {
			return nil, err
		}
		body, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return ast.LetTuple{Pos: pos(start), Names: names, Rhs: rhs, Body: body}, nil

	default:
		nameTok, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		p.binderCount++
		if _, err := p.expect(token.EQUAL); err != nil {
			return nil, err
		}
		rhs, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.IN); err != nil {
			return nil, err
		}
		body, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return ast.Let{Pos: pos(start), Name: nameTok.Lexeme, Rhs: rhs, Body: body}, nil
	}
}

func (p *Parser) parseTuple() (ast.Expr, error) {
	first, err := p.parseAssign()
	if err != nil {
		return nil, err
	}
	if p.cur().Kind != token.COMMA {
		return first, nil
	}
	elems := []ast.Expr{first}
	start := p.cur()
	for p.cur().Kind == token.COMMA {
		p.advance()
		e, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
	}
	return ast.Tuple{Pos: pos(start), Elems: elems}, nil
}

func (p *Parser) parseAssign() (ast.Expr, error) {
	lhs, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	if p.cur().Kind != token.ASSIGN {
		return lhs, nil
	}
	start := p.advance()
	get, ok := lhs.(ast.Get)
	if !ok {
		return nil, &Error{Line: start.Line, Col: start.Col, Msg: "'<-' may only follow an array index expression"}
	}
	rhs, err := p.parseAssign()
	if err != nil {
		return nil, err
	}
	return ast.Put{Pos: get.Pos, Array: get.Array, Index: get.Index, Value: rhs}, nil
}

func (p *Parser) parseComparison() (ast.Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.cur().Kind == token.EQUAL || p.cur().Kind == token.LE {
		opTok := p.advance()
		op := ast.Eq
		if opTok.Kind == token.LE {
			op = ast.Le
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = ast.Binary{Pos: pos(opTok), Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAdditive() (ast.Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		var op ast.BinOp
		switch p.cur().Kind {
		case token.PLUS:
			op = ast.Add
		case token.MINUS:
			op = ast.Sub
		case token.PLUS_DOT:
			op = ast.FAdd
		case token.MINUS_DOT:
			op = ast.FSub
		default:
			return left, nil
		}
		opTok := p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = ast.Binary{Pos: pos(opTok), Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseMultiplicative() (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op ast.BinOp
		switch p.cur().Kind {
		case token.STAR_DOT:
			op = ast.FMul
		case token.SLASH_DOT:
			op = ast.FDiv
		default:
			return left, nil
		}
		opTok := p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = ast.Binary{Pos: pos(opTok), Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseUnary() (ast.Expr, error) {
	switch p.cur().Kind {
	case token.NOT:
		start := p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return ast.Not{Pos: pos(start), Operand: operand}, nil
	case token.MINUS:
		start := p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if _, ok := operand.(ast.FloatLit); ok {
			return ast.FNeg{Pos: pos(start), Operand: operand}, nil
		}
		return ast.Neg{Pos: pos(start), Operand: operand}, nil
	case token.MINUS_DOT:
		start := p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return ast.FNeg{Pos: pos(start), Operand: operand}, nil
	default:
		return p.parseApp()
	}
}

func startsSimple(k token.Kind) bool {
	switch k {
	case token.LPAREN, token.TRUE, token.FALSE, token.INT, token.FLOAT, token.IDENT, token.ARRAY_MAKE:
		return true
	default:
		return false
	}
}

func (p *Parser) parseApp() (ast.Expr, error) {
	first, err := p.parseSimple()
	if err != nil {
		return nil, err
	}
	var args []ast.Expr
	for startsSimple(p.cur().Kind) {
		a, err := p.parseSimple()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
	}
	if len(args) == 0 {
		return first, nil
	}
	return ast.App{Pos: first.Position(), Fn: first, Args: args}, nil
}

func (p *Parser) parseSimple() (ast.Expr, error) {
	prim, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.cur().Kind == token.DOT {
		p.advance()
		if _, err := p.expect(token.LPAREN); err != nil {
			return nil, err
		}
		idx, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		prim = ast.Get{Pos: prim.Position(), Array: prim, Index: idx}
	}
	return prim, nil
}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	t := p.cur()
	switch t.Kind {
	case token.LPAREN:
		p.advance()
		if p.cur().Kind == token.RPAREN {
			p.advance()
			return ast.UnitLit{Pos: pos(t)}, nil
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		return e, nil
	case token.TRUE:
		p.advance()
		return ast.BoolLit{Pos: pos(t), Value: true}, nil
	case token.FALSE:
		p.advance()
		return ast.BoolLit{Pos: pos(t), Value: false}, nil
	case token.INT:
		p.advance()
		v, err := strconv.ParseInt(t.Lexeme, 10, 64)
		if err != nil {
			return nil, &Error{Line: t.Line, Col: t.Col, Msg: fmt.Sprintf("invalid integer literal %q", t.Lexeme)}
		}
		return ast.IntLit{Pos: pos(t), Value: v}, nil
	case token.FLOAT:
		p.advance()
		v, err := strconv.ParseFloat(t.Lexeme, 64)
		if err != nil {
			return nil, &Error{Line: t.Line, Col: t.Col, Msg: fmt.Sprintf("invalid float literal %q", t.Lexeme)}
		}
		return ast.FloatLit{Pos: pos(t), Value: v}, nil
	case token.IDENT:
		p.advance()
		return ast.Var{Pos: pos(t), Name: t.Lexeme}, nil
	case token.ARRAY_MAKE:
		p.advance()
		size, err := p.parseSimple()
		if err != nil {
			return nil, err
		}
		init, err := p.parseSimple()
		if err != nil {
			return nil, err
		}
		return ast.ArrayMake{Pos: pos(t), Size: size, Init: init}, nil
	default:
		return nil, p.errorf("unexpected token %q", t.Lexeme)
	}
}
