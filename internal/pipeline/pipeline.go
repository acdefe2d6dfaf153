// Package pipeline wires the lexer, parser, type inferencer, and the
// three IR-lowering passes into a single ordered chain, and collects
// diagnostics from whichever stage first fails.
//
// Grounded on the teacher's internal/pipeline/pipeline.go: the same
// Processor-chain shape (a Pipeline holding an ordered []Processor, a
// shared mutable context threaded through Run). Unlike the teacher's
// semantic analyzer, each of this repository's stages only does useful
// work when every earlier stage succeeded (K-normalization assumes a
// type-checked AST), so a stage given a context that already failed is
// a no-op pass-through rather than an independent diagnostic source.
package pipeline

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/mincaml-go/mincaml/internal/anormal"
	"github.com/mincaml-go/mincaml/internal/ast"
	"github.com/mincaml-go/mincaml/internal/closure"
	"github.com/mincaml-go/mincaml/internal/knormal"
	"github.com/mincaml-go/mincaml/internal/mctypes"
	"github.com/mincaml-go/mincaml/internal/mcvar"
	"github.com/mincaml-go/mincaml/internal/parser"
	"github.com/mincaml-go/mincaml/internal/typecheck"
)

// Diagnostic is one reported failure, tagged with the stage that raised
// it and the correlation id of the compilation run it came from
// (NewContext stamps a fresh one on every Run, so each REPL turn in
// cmd/mincaml gets its own).
type Diagnostic struct {
	Stage         string
	Message       string
	CorrelationID uuid.UUID
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s (run %s)", d.Stage, d.Message, d.CorrelationID)
}

// PipelineContext is threaded through every Processor. Each stage reads
// the fields the previous stage populated and either populates its own
// or appends a Diagnostic and leaves the rest of the context untouched.
type PipelineContext struct {
	Source        string
	CorrelationID uuid.UUID

	AST         ast.Expr
	BinderCount int

	Checker *typecheck.Checker
	Type    mctypes.Type

	KNormal *knormal.Program
	ANormal *anormal.Program
	Closure *closure.Program

	Errors []Diagnostic
}

// NewContext starts a fresh compilation of source, stamped with a new
// correlation id.
func NewContext(source string) *PipelineContext {
	return &PipelineContext{Source: source, CorrelationID: uuid.New()}
}

func (c *PipelineContext) fail(stage string, err error) {
	c.Errors = append(c.Errors, Diagnostic{Stage: stage, Message: err.Error(), CorrelationID: c.CorrelationID})
}

// Failed reports whether any earlier stage already recorded an error.
func (c *PipelineContext) Failed() bool { return len(c.Errors) > 0 }

// Processor is one pipeline stage.
type Processor interface {
	Process(ctx *PipelineContext) *PipelineContext
}

// Pipeline is an ordered chain of Processors.
type Pipeline struct {
	processors []Processor
}

// New builds a Pipeline running processors in order.
func New(processors ...Processor) *Pipeline {
	return &Pipeline{processors: processors}
}

// Run threads initialCtx through every stage in order.
func (p *Pipeline) Run(initialCtx *PipelineContext) *PipelineContext {
	ctx := initialCtx
	for _, proc := range p.processors {
		ctx = proc.Process(ctx)
	}
	return ctx
}

type parseStage struct{}

func (parseStage) Process(ctx *PipelineContext) *PipelineContext {
	if ctx.Failed() {
		return ctx
	}
	expr, binderCount, err := parser.Parse(ctx.Source)
	if err != nil {
		ctx.fail("parse", err)
		return ctx
	}
	ctx.AST = expr
	ctx.BinderCount = binderCount
	return ctx
}

type typecheckStage struct{}

func (typecheckStage) Process(ctx *PipelineContext) *PipelineContext {
	if ctx.Failed() {
		return ctx
	}
	checker := typecheck.NewChecker()
	ty, err := typecheck.Infer(checker, ctx.AST)
	if err != nil {
		ctx.fail("typecheck", err)
		return ctx
	}
	ctx.Checker = checker
	ctx.Type = ty
	return ctx
}

type knormalStage struct{}

func (knormalStage) Process(ctx *PipelineContext) *PipelineContext {
	if ctx.Failed() {
		return ctx
	}
	prog, err := knormal.Normalize(ctx.Checker, mcvar.NewNamer(), ctx.AST)
	if err != nil {
		ctx.fail("knormal", err)
		return ctx
	}
	ctx.KNormal = prog
	return ctx
}

type anormalStage struct{}

func (anormalStage) Process(ctx *PipelineContext) *PipelineContext {
	if ctx.Failed() {
		return ctx
	}
	ctx.ANormal = anormal.Normalize(ctx.KNormal)
	return ctx
}

type closureStage struct{}

func (closureStage) Process(ctx *PipelineContext) *PipelineContext {
	if ctx.Failed() {
		return ctx
	}
	ctx.Closure = closure.Convert(ctx.ANormal)
	return ctx
}

// Stages returns the fixed lex/parse -> typecheck -> knormal -> anormal
// -> closure chain this repository always runs.
func Stages() []Processor {
	return []Processor{parseStage{}, typecheckStage{}, knormalStage{}, anormalStage{}, closureStage{}}
}

// Run compiles source end to end. On success it returns the
// closure-converted program and a nil diagnostic slice; on failure it
// returns a nil program and exactly one Diagnostic (the first stage
// that failed — there is no multi-error recovery, per the type
// checker's own abort-on-first-error semantics).
func Run(source string) (*closure.Program, []Diagnostic) {
	ctx := NewContext(source)
	ctx = New(Stages()...).Run(ctx)
	if ctx.Failed() {
		return nil, ctx.Errors
	}
	return ctx.Closure, nil
}
