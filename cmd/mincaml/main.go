// Command mincaml drives the compiler front end: with no arguments it
// runs an interactive read-eval-print loop over stdin, one expression
// per line; with a single filename argument it compiles that file once.
//
// Grounded on the original compiler's main.rs (repl/do_expr/do_file
// split) and the teacher's cmd/funxy/main.go panic-recovery and
// config.IsTestMode startup conventions, trimmed to this repository's
// much smaller surface: there is no build/compile/embed subcommand
// set here, just the two modes spec.md §6 names.
package main

import (
	"bufio"
	"fmt"
	"log"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/mincaml-go/mincaml/internal/pipeline"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "internal error: %v\n", r)
			os.Exit(1)
		}
	}()

	switch len(os.Args) {
	case 1:
		repl()
	case 2:
		os.Exit(runFile(os.Args[1]))
	default:
		fmt.Println("usage: mincaml [file]")
		os.Exit(1)
	}
}

func repl() {
	prompt := isatty.IsTerminal(os.Stdin.Fd())
	scanner := bufio.NewScanner(os.Stdin)
	for {
		if prompt {
			fmt.Print("mincaml> ")
		}
		if !scanner.Scan() {
			return
		}
		runTurn(scanner.Text())
	}
}

func runTurn(source string) int {
	prog, diags := pipeline.Run(source)
	if len(diags) > 0 {
		for _, d := range diags {
			fmt.Println(d.String())
		}
		return 1
	}
	fmt.Printf("%+v\n", prog)
	return 0
}

func runFile(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("mincaml: %v", err)
	}
	return runTurn(string(data))
}
