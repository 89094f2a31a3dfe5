// Package expression wraps the expr-lang engine with the small surface the
// simulation engine needs: parse once, list free variables, rebind variable
// names on the parsed tree, and evaluate against a name -> number table.
package expression

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
)

var (
	// ErrSyntax is returned when the expression text cannot be parsed or compiled.
	ErrSyntax = errors.New("expression syntax error")

	// ErrUnresolvedVariable is returned when a free variable has no binding.
	ErrUnresolvedVariable = errors.New("unresolved expression variable")

	// ErrNotNumeric is returned when evaluation yields a non-numeric value.
	ErrNotNumeric = errors.New("expression result is not numeric")
)

// Expression is a parsed, compiled arithmetic expression. It is immutable and
// safe for concurrent evaluation.
type Expression struct {
	text      string
	program   *vm.Program
	variables []string
}

// Parse parses infix text into an Expression.
func Parse(text string) (*Expression, error) {
	tree, err := parser.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	return compile(text, tree.Node)
}

func compile(text string, root ast.Node) (*Expression, error) {
	program, err := expr.Compile(text, append(functions(), expr.Patch(modPatcher{}))...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	return &Expression{
		text:      text,
		program:   program,
		variables: freeVariables(&root),
	}, nil
}

// String returns the expression text.
func (e *Expression) String() string {
	return e.text
}

// Variables returns the sorted free variable names.
func (e *Expression) Variables() []string {
	return slices.Clone(e.variables)
}

// References reports whether name appears as a variable token.
func (e *Expression) References(name string) bool {
	_, found := slices.BinarySearch(e.variables, name)
	return found
}

// Rename returns a copy of the expression with every reference to oldName
// rebound to newName. Only identifier nodes are touched, so names that merely
// contain oldName as a substring are left alone.
func (e *Expression) Rename(oldName, newName string) (*Expression, error) {
	if oldName == newName || !e.References(oldName) {
		return e, nil
	}

	tree, err := parser.Parse(e.text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}

	callees := calleeSet(&tree.Node)
	ast.Walk(&tree.Node, visitor(func(node *ast.Node) {
		id, ok := (*node).(*ast.IdentifierNode)
		if !ok || callees[id] {
			return
		}
		if id.Value == oldName {
			id.Value = newName
		}
	}))

	return compile(tree.Node.String(), tree.Node)
}

// Evaluate runs the expression against bindings.
func (e *Expression) Evaluate(bindings map[string]float64) (float64, error) {
	env := make(map[string]any, len(bindings))
	for _, name := range e.variables {
		v, ok := bindings[name]
		if !ok {
			return 0, fmt.Errorf("%w: %q in %q", ErrUnresolvedVariable, name, e.text)
		}
		env[name] = v
	}

	out, err := expr.Run(e.program, env)
	if err != nil {
		return 0, fmt.Errorf("evaluate %q: %w", e.text, err)
	}
	return toFloat(out)
}

// modPatcher rewrites a % b into mod(a, b). Every binding is a float64 and
// expr's % operator only accepts integers.
type modPatcher struct{}

func (modPatcher) Visit(node *ast.Node) {
	if b, ok := (*node).(*ast.BinaryNode); ok && b.Operator == "%" {
		ast.Patch(node, &ast.CallNode{
			Callee:    &ast.IdentifierNode{Value: "mod"},
			Arguments: []ast.Node{b.Left, b.Right},
		})
	}
}

type visitor func(node *ast.Node)

func (v visitor) Visit(node *ast.Node) { v(node) }

// calleeSet collects identifier nodes used as function names.
func calleeSet(root *ast.Node) map[*ast.IdentifierNode]bool {
	callees := make(map[*ast.IdentifierNode]bool)
	ast.Walk(root, visitor(func(node *ast.Node) {
		call, ok := (*node).(*ast.CallNode)
		if !ok {
			return
		}
		if id, ok := call.Callee.(*ast.IdentifierNode); ok {
			callees[id] = true
		}
	}))
	return callees
}

func freeVariables(root *ast.Node) []string {
	callees := calleeSet(root)
	seen := make(map[string]bool)
	var names []string
	ast.Walk(root, visitor(func(node *ast.Node) {
		id, ok := (*node).(*ast.IdentifierNode)
		if !ok || callees[id] || seen[id.Value] {
			return
		}
		seen[id.Value] = true
		names = append(names, id.Value)
	}))
	slices.Sort(names)
	return names
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: got %T", ErrNotNumeric, v)
	}
}

func functions() []expr.Option {
	unary := func(name string, fn func(float64) float64) expr.Option {
		return expr.Function(name, func(params ...any) (any, error) {
			if len(params) != 1 {
				return nil, fmt.Errorf("%s expects 1 argument, got %d", name, len(params))
			}
			x, err := toFloat(params[0])
			if err != nil {
				return nil, err
			}
			return fn(x), nil
		})
	}

	binary := func(name string, fn func(x, y float64) float64) expr.Option {
		return expr.Function(name, func(params ...any) (any, error) {
			if len(params) != 2 {
				return nil, fmt.Errorf("%s expects 2 arguments, got %d", name, len(params))
			}
			x, err := toFloat(params[0])
			if err != nil {
				return nil, err
			}
			y, err := toFloat(params[1])
			if err != nil {
				return nil, err
			}
			return fn(x, y), nil
		})
	}

	return []expr.Option{
		unary("sqrt", math.Sqrt),
		unary("exp", math.Exp),
		unary("log", math.Log),
		binary("pow", math.Pow),
		// The result takes the sign of x; mod(x, 0) is NaN.
		binary("mod", math.Mod),
	}
}
