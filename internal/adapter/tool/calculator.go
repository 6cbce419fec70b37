package tool

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/itchyny/gojq"

	"lumen-agent/internal/domain"
)

const defaultCalcTimeout = 2 * time.Second

var (
	// arithmeticOnly is the whole accepted alphabet after normalisation.
	arithmeticOnly = regexp.MustCompile(`^[0-9+\-*/%().\s]+$`)
	decimalComma   = regexp.MustCompile(`(\d),(\d)`)
	exprNormalizer = strings.NewReplacer("×", "*", "·", "*", "÷", "/", "−", "-")
)

// Calculator evaluates arithmetic with gojq. Input is restricted to
// numbers, operators and parentheses, so no jq filter beyond arithmetic
// can run.
type Calculator struct {
	timeout time.Duration
}

// NewCalculator creates a calculator; timeout <= 0 uses two seconds.
func NewCalculator(timeout time.Duration) *Calculator {
	if timeout <= 0 {
		timeout = defaultCalcTimeout
	}
	return &Calculator{timeout: timeout}
}

// Evaluate returns the formatted result of expr.
func (c *Calculator) Evaluate(ctx context.Context, expr string) (string, error) {
	expr = decimalComma.ReplaceAllString(exprNormalizer.Replace(strings.TrimSpace(expr)), "$1.$2")
	if expr == "" || !arithmeticOnly.MatchString(expr) {
		return "", fmt.Errorf("%w: only numbers, + - * / %% and parentheses are supported", domain.ErrInvalidInput)
	}

	query, err := gojq.Parse(expr)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	iter := code.RunWithContext(ctx, nil)
	v, ok := iter.Next()
	if !ok {
		return "", fmt.Errorf("expression produced no value")
	}
	if err, isErr := v.(error); isErr {
		return "", err
	}
	return formatNumber(v)
}

func formatNumber(v any) (string, error) {
	switch n := v.(type) {
	case int:
		return strconv.Itoa(n), nil
	case float64:
		if math.IsInf(n, 0) || math.IsNaN(n) {
			return "", fmt.Errorf("result is not a finite number")
		}
		return strconv.FormatFloat(n, 'g', 15, 64), nil
	case *big.Int:
		return n.String(), nil
	default:
		return "", fmt.Errorf("result is not a number")
	}
}
