// Package mathtools provides the builtin "math" toolset: trigonometry,
// powers, roots, logarithms and angle conversion.
//
// Every tool takes named float arguments and returns a finite float64.
// Domain errors (square root of a negative number, logarithm of zero) and
// overflow are returned as errors rather than NaN or ±Inf.
package mathtools

import (
	"context"
	"fmt"
	"math"

	"github.com/MrWong99/toolhub/internal/sources/builtin"
	"github.com/MrWong99/toolhub/pkg/tool"
)

// Origin is the name the toolset is registered under.
const Origin = "math"

type angleArgs struct {
	X float64 `json:"x" jsonschema:"required,description=Angle in radians"`
}

type valueArgs struct {
	X float64 `json:"x" jsonschema:"required,description=Input value"`
}

type powArgs struct {
	Base     float64 `json:"base" jsonschema:"required,description=Base"`
	Exponent float64 `json:"exponent" jsonschema:"required,description=Exponent"`
}

type hypotArgs struct {
	X float64 `json:"x" jsonschema:"required,description=Length of the first leg"`
	Y float64 `json:"y" jsonschema:"required,description=Length of the second leg"`
}

type logArgs struct {
	X    float64 `json:"x" jsonschema:"required,description=Positive input value"`
	Base float64 `json:"base,omitempty" jsonschema:"description=Logarithm base; natural logarithm when omitted"`
}

type degreesArgs struct {
	Degrees float64 `json:"degrees" jsonschema:"required,description=Angle in degrees"`
}

// finite rejects results JSON cannot carry.
func finite(op string, r float64) (float64, error) {
	switch {
	case math.IsNaN(r):
		return 0, fmt.Errorf("mathtools: %s is not a real number", op)
	case math.IsInf(r, 0):
		return 0, fmt.Errorf("mathtools: %s overflows", op)
	}
	return r, nil
}

func unary(name string, f func(float64) float64) func(context.Context, angleArgs) (float64, error) {
	return func(_ context.Context, a angleArgs) (float64, error) {
		return finite(fmt.Sprintf("%s(%g)", name, a.X), f(a.X))
	}
}

func sqrt(_ context.Context, a valueArgs) (float64, error) {
	if a.X < 0 {
		return 0, fmt.Errorf("mathtools: sqrt of negative number %g", a.X)
	}
	return math.Sqrt(a.X), nil
}

func pow(_ context.Context, a powArgs) (float64, error) {
	return finite(fmt.Sprintf("%g^%g", a.Base, a.Exponent), math.Pow(a.Base, a.Exponent))
}

func hypot(_ context.Context, a hypotArgs) (float64, error) {
	return finite(fmt.Sprintf("hypot(%g, %g)", a.X, a.Y), math.Hypot(a.X, a.Y))
}

func logarithm(_ context.Context, a logArgs) (float64, error) {
	if a.X <= 0 {
		return 0, fmt.Errorf("mathtools: log of non-positive number %g", a.X)
	}
	switch {
	case a.Base == 0:
		return math.Log(a.X), nil
	case a.Base <= 0 || a.Base == 1:
		return 0, fmt.Errorf("mathtools: invalid logarithm base %g", a.Base)
	default:
		return math.Log(a.X) / math.Log(a.Base), nil
	}
}

func exp(_ context.Context, a valueArgs) (float64, error) {
	return finite(fmt.Sprintf("exp(%g)", a.X), math.Exp(a.X))
}

func degrees(_ context.Context, a angleArgs) (float64, error) {
	return finite(fmt.Sprintf("degrees(%g)", a.X), a.X*180/math.Pi)
}

func radians(_ context.Context, a degreesArgs) (float64, error) {
	return finite(fmt.Sprintf("radians(%g)", a.Degrees), a.Degrees*math.Pi/180)
}

// Tools returns the descriptors of the toolset, unprefixed.
func Tools() []tool.Descriptor {
	return []tool.Descriptor{
		builtin.Func("sin", "Compute the sine of an angle given in radians.", unary("sin", math.Sin)),
		builtin.Func("cos", "Compute the cosine of an angle given in radians.", unary("cos", math.Cos)),
		builtin.Func("tan", "Compute the tangent of an angle given in radians.", unary("tan", math.Tan)),
		builtin.Func("sqrt", "Compute the square root of a non-negative number.", sqrt),
		builtin.Func("pow", "Raise a base to the power of an exponent.", pow),
		builtin.Func("hypot", "Compute the hypotenuse of a right triangle from the lengths of its two legs.", hypot),
		builtin.Func("degrees", "Convert an angle from radians to degrees.", degrees),
		builtin.Func("radians", "Convert an angle from degrees to radians.", radians),
		builtin.Func("log", "Compute the logarithm of a positive number, natural by default or to a given base.", logarithm),
		builtin.Func("exp", "Compute e raised to the power of a number.", exp),
	}
}

// Source returns the toolset as a source whose tools are named math__<tool>.
func Source() *builtin.Source {
	return builtin.NewSource(Origin, Tools()...)
}
