// Package interp connects the evaluation service to a language
// implementation. The server depends only on the Frontend and Runtime
// interfaces; Monkey is the implementation shipped with ronkey.
package interp

import (
	"context"

	"github.com/codefionn/ronkey/internal/monkey/ast"
	"github.com/codefionn/ronkey/internal/monkey/evaluator"
	"github.com/codefionn/ronkey/internal/monkey/lexer"
	"github.com/codefionn/ronkey/internal/monkey/object"
	"github.com/codefionn/ronkey/internal/monkey/parser"
)

// Frontend turns source text into a program. A non-empty error list means
// the program must not be evaluated.
type Frontend interface {
	Parse(source string) (*ast.Program, []string)
}

// Runtime evaluates programs against a mutable environment
type Runtime interface {
	NewEnvironment() *object.Environment
	Eval(ctx context.Context, program *ast.Program, env *object.Environment) object.Object
}

// Monkey implements Frontend and Runtime with the bundled Monkey interpreter
type Monkey struct{}

var (
	_ Frontend = Monkey{}
	_ Runtime  = Monkey{}
)

// Parse lexes and parses source in one pass
func (Monkey) Parse(source string) (*ast.Program, []string) {
	p := parser.New(lexer.New(source))
	program := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		return nil, errs
	}
	return program, nil
}

// NewEnvironment returns an empty top-level scope
func (Monkey) NewEnvironment() *object.Environment {
	return object.NewEnvironment()
}

// Eval evaluates program in env
func (Monkey) Eval(ctx context.Context, program *ast.Program, env *object.Environment) object.Object {
	return evaluator.Eval(ctx, program, env)
}
