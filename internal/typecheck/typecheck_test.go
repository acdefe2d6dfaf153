package typecheck_test

import (
	_ "embed"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/mincaml-go/mincaml/internal/config"
	"github.com/mincaml-go/mincaml/internal/mctypes"
	"github.com/mincaml-go/mincaml/internal/parser"
	"github.com/mincaml-go/mincaml/internal/typecheck"
)

//go:embed testdata/cases.yaml
var casesYAML []byte

type fixtureFile struct {
	Cases []struct {
		Name   string `yaml:"name"`
		Source string `yaml:"source"`
		Want   string `yaml:"want"`
	} `yaml:"cases"`
}

func TestInferFixtures(t *testing.T) {
	var f fixtureFile
	if err := yaml.Unmarshal(casesYAML, &f); err != nil {
		t.Fatalf("parsing testdata/cases.yaml: %v", err)
	}
	if len(f.Cases) == 0 {
		t.Fatal("testdata/cases.yaml loaded zero cases")
	}

	for _, c := range f.Cases {
		t.Run(c.Name, func(t *testing.T) {
			expr, _, err := parser.Parse(c.Source)
			if err != nil {
				if c.Want == "error" {
					return
				}
				t.Fatalf("Parse(%q) error: %v", c.Source, err)
			}
			ty, err := typecheck.Infer(typecheck.NewChecker(), expr)
			if c.Want == "error" {
				if err == nil {
					t.Fatalf("Infer(%q) = %v, want a type error", c.Source, ty)
				}
				return
			}
			if err != nil {
				t.Fatalf("Infer(%q) error: %v", c.Source, err)
			}
			if got := ty.String(); got != c.Want {
				t.Fatalf("Infer(%q) = %q, want %q", c.Source, got, c.Want)
			}
		})
	}
}

func TestInferUnboundVariable(t *testing.T) {
	expr, _, err := parser.Parse("y")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	_, err = typecheck.Infer(typecheck.NewChecker(), expr)
	if err == nil {
		t.Fatal("Infer succeeded on an unbound variable, want UnboundVar")
	}
	if _, ok := err.(*typecheck.UnboundVar); !ok {
		t.Fatalf("Infer error = %T, want *typecheck.UnboundVar", err)
	}
}

func TestInferLetRecFunctionType(t *testing.T) {
	expr, _, err := parser.Parse("let rec f x = x + 1 in f")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	ty, err := typecheck.Infer(typecheck.NewChecker(), expr)
	if err != nil {
		t.Fatalf("Infer error: %v", err)
	}
	fn, ok := ty.(mctypes.Fun)
	if !ok || len(fn.Args) != 1 {
		t.Fatalf("Infer(let rec f x = x+1 in f) = %#v, want a one-arg Fun", ty)
	}
	if _, ok := fn.Args[0].(mctypes.Int); !ok {
		t.Errorf("param type = %v, want int", fn.Args[0])
	}
	if _, ok := fn.Ret.(mctypes.Int); !ok {
		t.Errorf("return type = %v, want int", fn.Ret)
	}
}

func TestInferResidualVariableDefaultsToUnit(t *testing.T) {
	prev := config.IsTestMode
	config.IsTestMode = true
	defer func() { config.IsTestMode = prev }()

	expr, _, err := parser.Parse("let rec f x = f x in f")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	ty, err := typecheck.Infer(typecheck.NewChecker(), expr)
	if err != nil {
		t.Fatalf("Infer error: %v", err)
	}
	fn, ok := ty.(mctypes.Fun)
	if !ok || len(fn.Args) != 1 {
		t.Fatalf("Infer(let rec f x = f x in f) = %#v, want a one-arg Fun", ty)
	}
	if _, ok := fn.Args[0].(mctypes.Unit); !ok {
		t.Errorf("unconstrained param type = %v, want it defaulted to unit", fn.Args[0])
	}
	if _, ok := fn.Ret.(mctypes.Unit); !ok {
		t.Errorf("unconstrained return type = %v, want it defaulted to unit", fn.Ret)
	}
}
