// Copyright 2024 Partisia Blockchain Applications
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package poly implements degree-bounded polynomials over GF(2^8), with
// evaluation and Lagrange interpolation through partially defined points.
package poly

import (
	"fmt"

	"github.com/partisiablockchain/offchain-secret-sharing/client/internal/secretsharing/gf256"
)

// Polynomial is an ordered sequence of coefficients; index 0 is the constant
// term. For a share-generating polynomial the constant term is the embedded
// secret.
type Polynomial struct {
	coefficients []gf256.Element
}

// New creates a polynomial from its coefficients, constant term first.
func New(coefficients []gf256.Element) Polynomial {
	return Polynomial{coefficients: coefficients}
}

// Random creates a polynomial of the given degree with the given constant
// term and uniformly random remaining coefficients.
func Random(constantTerm gf256.Element, degree int) (Polynomial, error) {
	coefficients := make([]gf256.Element, degree+1)
	coefficients[0] = constantTerm
	for i := 1; i <= degree; i++ {
		var err error
		if coefficients[i], err = gf256.Random(); err != nil {
			return Polynomial{}, err
		}
	}
	return Polynomial{coefficients: coefficients}, nil
}

// ConstantTerm returns the coefficient of x^0.
func (p Polynomial) ConstantTerm() gf256.Element {
	if len(p.coefficients) == 0 {
		return gf256.Zero
	}
	return p.coefficients[0]
}

// Evaluate computes p(x) using Horner's method.
func (p Polynomial) Evaluate(x gf256.Element) gf256.Element {
	sum := gf256.Zero
	for i := len(p.coefficients) - 1; i >= 0; i-- {
		sum = sum.Multiply(x).Add(p.coefficients[i])
	}
	return sum
}

// Point is a defined evaluation (alpha, value) of a polynomial.
type Point struct {
	X gf256.Element
	Y gf256.Element
}

// Interpolate recovers the unique polynomial of degree at most len(points)-1
// passing through the given points, using Lagrange interpolation. The X
// values must be pairwise distinct.
func Interpolate(points []Point) (Polynomial, error) {
	if len(points) == 0 {
		return Polynomial{}, fmt.Errorf("cannot interpolate without points")
	}

	coefficients := make([]gf256.Element, len(points))
	for i, point := range points {
		// Build the Lagrange basis polynomial for point i:
		//   L_i(x) = prod_{j != i} (x - x_j) / (x_i - x_j)
		// In GF(2^8) subtraction equals addition.
		basis := []gf256.Element{gf256.One}
		denominator := gf256.One
		for j, other := range points {
			if j == i {
				continue
			}
			basis = multiplyByBinomial(basis, other.X)
			denominator = denominator.Multiply(point.X.Add(other.X))
		}
		inverse, err := denominator.ModInverse()
		if err != nil {
			return Polynomial{}, fmt.Errorf("interpolation points must have distinct x values")
		}

		scale := point.Y.Multiply(inverse)
		for k, c := range basis {
			coefficients[k] = coefficients[k].Add(c.Multiply(scale))
		}
	}
	return Polynomial{coefficients: coefficients}, nil
}

// multiplyByBinomial multiplies the polynomial by (x + root).
func multiplyByBinomial(coefficients []gf256.Element, root gf256.Element) []gf256.Element {
	result := make([]gf256.Element, len(coefficients)+1)
	for k, c := range coefficients {
		result[k+1] = result[k+1].Add(c)
		result[k] = result[k].Add(c.Multiply(root))
	}
	return result
}
