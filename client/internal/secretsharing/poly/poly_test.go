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

package poly

import (
	"testing"

	"github.com/partisiablockchain/offchain-secret-sharing/client/internal/secretsharing/gf256"
)

func TestEvaluateConstantPolynomial(t *testing.T) {
	p := New([]gf256.Element{42})
	for x := 0; x < 256; x++ {
		if got := p.Evaluate(gf256.Element(x)); got != 42 {
			t.Fatalf("p(%d) = %d, want 42", x, got)
		}
	}
}

func TestEvaluateAtZeroIsConstantTerm(t *testing.T) {
	p, err := Random(17, 5)
	if err != nil {
		t.Fatalf("Random failed: %v", err)
	}
	if got := p.Evaluate(gf256.Zero); got != 17 {
		t.Fatalf("p(0) = %d, want 17", got)
	}
	if got := p.ConstantTerm(); got != 17 {
		t.Fatalf("ConstantTerm() = %d, want 17", got)
	}
}

func TestEvaluateKnownPolynomial(t *testing.T) {
	// p(x) = 3 + 2x: over GF(2^8), p(1) = 3 xor 2 = 1.
	p := New([]gf256.Element{3, 2})
	if got := p.Evaluate(gf256.One); got != 1 {
		t.Fatalf("p(1) = %d, want 1", got)
	}
	if got := p.Evaluate(gf256.Zero); got != 3 {
		t.Fatalf("p(0) = %d, want 3", got)
	}
}

func TestInterpolateRecoversPolynomial(t *testing.T) {
	original, err := Random(99, 3)
	if err != nil {
		t.Fatalf("Random failed: %v", err)
	}

	points := make([]Point, 4)
	for i := range points {
		x := gf256.Element(i + 1)
		points[i] = Point{X: x, Y: original.Evaluate(x)}
	}

	recovered, err := Interpolate(points)
	if err != nil {
		t.Fatalf("Interpolate failed: %v", err)
	}
	if got := recovered.ConstantTerm(); got != 99 {
		t.Fatalf("recovered constant term = %d, want 99", got)
	}
	for x := 0; x < 256; x++ {
		if recovered.Evaluate(gf256.Element(x)) != original.Evaluate(gf256.Element(x)) {
			t.Fatalf("recovered polynomial differs from original at x = %d", x)
		}
	}
}

func TestInterpolateSubsetOfPoints(t *testing.T) {
	// A degree-1 polynomial is determined by any 2 of its points.
	original, err := Random(211, 1)
	if err != nil {
		t.Fatalf("Random failed: %v", err)
	}

	points := []Point{
		{X: 2, Y: original.Evaluate(2)},
		{X: 7, Y: original.Evaluate(7)},
	}
	recovered, err := Interpolate(points)
	if err != nil {
		t.Fatalf("Interpolate failed: %v", err)
	}
	if got := recovered.ConstantTerm(); got != 211 {
		t.Fatalf("recovered constant term = %d, want 211", got)
	}
}

func TestInterpolateFailsOnDuplicateX(t *testing.T) {
	points := []Point{{X: 1, Y: 2}, {X: 1, Y: 3}}
	if _, err := Interpolate(points); err == nil {
		t.Fatalf("Interpolate with duplicate x values succeeded, expected failure")
	}
}

func TestInterpolateFailsWithoutPoints(t *testing.T) {
	if _, err := Interpolate(nil); err == nil {
		t.Fatalf("Interpolate(nil) succeeded, expected failure")
	}
}
