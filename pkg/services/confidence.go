package services

import (
	"fmt"
	"math"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// DefaultConfidenceFormula weights intent confidence, the best retrieval
// similarity and whether a repair pass was needed.
const DefaultConfidenceFormula = "0.5*intent + 0.3*retrieval + 0.2*(repaired ? 0.4 : 1.0)"

// ConfidenceInputs are the variables visible to a confidence formula.
type ConfidenceInputs struct {
	Intent    float64 `expr:"intent"`
	Retrieval float64 `expr:"retrieval"`
	Repaired  bool    `expr:"repaired"`
}

// ConfidenceScorer evaluates a compiled confidence formula.
type ConfidenceScorer struct {
	formula string
	program *vm.Program
}

// NewConfidenceScorer compiles formula (DefaultConfidenceFormula when empty).
// The formula must evaluate to a number over intent, retrieval and repaired.
func NewConfidenceScorer(formula string) (*ConfidenceScorer, error) {
	if formula == "" {
		formula = DefaultConfidenceFormula
	}
	program, err := expr.Compile(formula, expr.Env(ConfidenceInputs{}), expr.AsFloat64())
	if err != nil {
		return nil, fmt.Errorf("compile confidence formula %q: %w", formula, err)
	}
	return &ConfidenceScorer{formula: formula, program: program}, nil
}

// MustNewConfidenceScorer is NewConfidenceScorer that panics on error.
func MustNewConfidenceScorer(formula string) *ConfidenceScorer {
	s, err := NewConfidenceScorer(formula)
	if err != nil {
		panic(err)
	}
	return s
}

// Formula returns the source of the compiled formula.
func (s *ConfidenceScorer) Formula() string { return s.formula }

// Score evaluates the formula and clamps the result to [0, 1]. A runtime
// error or a non-finite result scores 0.
func (s *ConfidenceScorer) Score(in ConfidenceInputs) float64 {
	out, err := expr.Run(s.program, in)
	if err != nil {
		return 0
	}
	v, ok := out.(float64)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
