// Package calculator provides arithmetic tools. Every result is returned as
// {"operation": ..., "result": ...}.
package calculator

import (
	"errors"
	"math"
	"math/big"

	"github.com/hupe1980/assistmesh/core"
	"github.com/hupe1980/assistmesh/tool"
)

// Tool names.
const (
	Add          = "add"
	Subtract     = "subtract"
	Multiply     = "multiply"
	Divide       = "divide"
	Exponentiate = "exponentiate"
	Factorial    = "factorial"
	IsPrime      = "is_prime"
	SquareRoot   = "square_root"
)

// Result is the payload returned by every calculator tool.
type Result struct {
	Operation string `json:"operation"`
	Result    any    `json:"result"`
}

type binaryArgs struct {
	A float64 `json:"a" jsonschema:"description=The first number"`
	B float64 `json:"b" jsonschema:"description=The second number"`
}

type unaryArgs struct {
	N float64 `json:"n" jsonschema:"description=The number"`
}

var (
	errDivideByZero = errors.New("division by zero is undefined")
	errNegative     = errors.New("undefined for negative numbers")
	errNotInteger   = errors.New("requires a non-negative integer")
)

// Tools returns all calculator tools in a fixed order.
func Tools() []tool.Tool {
	return []tool.Tool{
		binary(Add, "Add two numbers and return the result.", "addition", func(a, b float64) (float64, error) {
			return a + b, nil
		}),
		binary(Subtract, "Subtract the second number from the first and return the result.", "subtraction", func(a, b float64) (float64, error) {
			return a - b, nil
		}),
		binary(Multiply, "Multiply two numbers and return the result.", "multiplication", func(a, b float64) (float64, error) {
			return a * b, nil
		}),
		binary(Divide, "Divide the first number by the second and return the result.", "division", func(a, b float64) (float64, error) {
			if b == 0 {
				return 0, errDivideByZero
			}
			return a / b, nil
		}),
		binary(Exponentiate, "Raise the first number to the power of the second number and return the result.", "exponentiation", func(a, b float64) (float64, error) {
			return math.Pow(a, b), nil
		}),
		tool.NewTypedTool(Factorial, "Calculate the factorial of a non-negative integer.", func(_ *core.ToolContext, args unaryArgs) (any, error) {
			n, err := wholeNumber(args.N)
			if err != nil {
				return nil, err
			}
			return Result{Operation: "factorial", Result: factorial(n)}, nil
		}),
		tool.NewTypedTool(IsPrime, "Check if a number is prime.", func(_ *core.ToolContext, args unaryArgs) (any, error) {
			n, err := wholeNumber(args.N)
			if err != nil {
				return nil, err
			}
			return Result{Operation: "prime_check", Result: isPrime(n)}, nil
		}),
		tool.NewTypedTool(SquareRoot, "Calculate the square root of a number.", func(_ *core.ToolContext, args unaryArgs) (any, error) {
			if args.N < 0 {
				return nil, errNegative
			}
			return Result{Operation: "square_root", Result: math.Sqrt(args.N)}, nil
		}),
	}
}

// Register adds all calculator tools to set.
func Register(set *tool.Set) error {
	for _, t := range Tools() {
		if err := set.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func binary(name, description, operation string, fn func(a, b float64) (float64, error)) tool.Tool {
	return tool.NewTypedTool(name, description, func(_ *core.ToolContext, args binaryArgs) (any, error) {
		result, err := fn(args.A, args.B)
		if err != nil {
			return nil, err
		}
		if math.IsInf(result, 0) || math.IsNaN(result) {
			return nil, errors.New("result is not a finite number")
		}
		return Result{Operation: operation, Result: result}, nil
	})
}

func wholeNumber(f float64) (int64, error) {
	if f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, errNotInteger
	}
	return int64(f), nil
}

// factorial returns a uint64 while it fits and a decimal string beyond that.
func factorial(n int64) any {
	if n <= 20 {
		r := uint64(1)
		for i := uint64(2); i <= uint64(n); i++ {
			r *= i
		}
		return r
	}
	return new(big.Int).MulRange(1, n).String()
}

func isPrime(n int64) bool {
	if n < 2 {
		return false
	}
	return big.NewInt(n).ProbablyPrime(20)
}
