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

// Package gf256 implements arithmetic in the finite field GF(2^8).
package gf256

import (
	"crypto/rand"
	"fmt"
)

// Element is an element of GF(2^8), represented as a single byte.
type Element byte

// Zero is the additive identity of the field.
const Zero Element = 0

// One is the multiplicative identity of the field.
const One Element = 1

// irreducible polynomial (x^8 + x^4 + x^3 + x + 1)
// (x^8 + x^4 + x^3 + x + 1) = {0x01 0x1B}
// we deal with uint8 so we only need 0x1B
const irreduciblePolynomial = 0x1B

// Add returns the sum of the two elements. Addition in GF(2^8) is XOR, and is
// identical to subtraction.
func (e Element) Add(a Element) Element {
	return e ^ a
}

// Multiply returns the product of the two elements.
func (e Element) Multiply(a Element) Element {
	// This function tries to defend against side-channel attacks
	// (timing, cache), hence avoiding pre-computed tables and branches.
	x := byte(e)
	y := byte(a)

	var product uint8 = 0

	// Similar steps to:
	// https://en.wikipedia.org/wiki/Finite_field_arithmetic#Multiplication
	// This code avoids branching by negating values (ex:`-foo`)
	// negating values produces a mask of either all zeros or ones
	// which allows AND operations without branching.
	for i := 7; i >= 0; i-- {

		// if MSB in current product is set, mod is irreduciblePolynomial, else 0
		mod := (-(product >> 7)) & irreduciblePolynomial

		// multiply coefficient x[i] with every coefficient in y
		xiTimesY := -((x >> i) & 1) & y

		// reduce the multiplication by irreduciblePolynomial if MSB in product
		// was set and left shift product
		product = xiTimesY ^ mod ^ (product << 1)
	}
	return Element(product)
}

// ModInverse returns the multiplicative inverse of the element. The zero
// element has no inverse; asking for it is a programming error and fails.
func (e Element) ModInverse() (Element, error) {
	if e == Zero {
		return Zero, fmt.Errorf("inverse of zero is not defined")
	}
	// we calculate the multiplicative inverse (e^-1) by computing:
	//  e^254, which in GF(2^8) is (e^-1)
	// multiplication chain reference: https://crypto.stackexchange.com/a/40140

	b := e.Multiply(e) // e^2
	c := e.Multiply(b) // e^3

	b = c.Multiply(c)        // e^6   = (e^3)^2
	b = b.Multiply(b)        // e^12  = (e^6)^2
	c = b.Multiply(c)        // e^15  = (e^12) * (e^3)
	b = b.Multiply(b)        // e^30  = (e^15)^2
	b = b.Multiply(b)        // e^60  = (e^30)^2
	b = b.Multiply(c)        // e^63  = (e^60) * (e^3)
	b = b.Multiply(b)        // e^126 = (e^63)^2
	b = e.Multiply(b)        // e^127 = (e^126) * e
	return b.Multiply(b), nil // e^254 = (e^127)^2
}

// Random returns a uniformly random field element.
// The randomness is assumed to be good enough for cryptographic purposes.
func Random() (Element, error) {
	b := make([]byte, 1)
	if _, err := rand.Read(b); err != nil {
		return Zero, fmt.Errorf("rand.Read failed: %v", err)
	}
	return Element(b[0]), nil
}

// Alphas returns the first numNodes canonical evaluation points: the nonzero
// elements 1..numNodes in order. Every party derives the same node-to-alpha
// mapping from the node index alone.
func Alphas(numNodes int) ([]Element, error) {
	if numNodes < 1 || numNodes > 255 {
		return nil, fmt.Errorf("number of nodes must be between 1 and 255, got %d", numNodes)
	}
	alphas := make([]Element, numNodes)
	for i := range alphas {
		alphas[i] = Element(i + 1)
	}
	return alphas, nil
}
