// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package platform

import (
	"fmt"
	"math"

	"github.com/casbin/govaluate"
	"github.com/pkg/errors"

	"nodepower/internal/topology"
)

// Combinator merges the decoded values of a signal's sources.
type Combinator int

const (
	CombineSum        Combinator = iota // sum of all sources
	CombineDifference                   // first source minus the sum of the rest
	CombineRatio                        // first source divided by the second
	CombineExpression                   // expression over the sources' Var names
)

func (c Combinator) String() string {
	switch c {
	case CombineSum:
		return "sum"
	case CombineDifference:
		return "difference"
	case CombineRatio:
		return "ratio"
	case CombineExpression:
		return "expression"
	}
	return fmt.Sprintf("combinator(%d)", int(c))
}

// Aggregation merges the values of the native domain instances nested in a
// coarser requested domain.
type Aggregation int

const (
	AggregateSum Aggregation = iota
	AggregateAverage
)

func (a Aggregation) String() string {
	if a == AggregateAverage {
		return "average"
	}
	return "sum"
}

// ScaleKind selects the multiplier applied to a decoded field. Kinds other
// than ScaleConstant are resolved from the calibration at bind time.
type ScaleKind int

const (
	ScaleConstant   ScaleKind = iota // Source.Factor
	ScaleEnergy                      // joules per count
	ScaleDramEnergy                  // joules per count of the DRAM domain
	ScalePower                       // watts per count
)

// Source is one bit field of one register.
type Source struct {
	Register   string
	Var        string // name used by CombineExpression
	RightShift uint
	BitWidth   uint
	LeftShift  uint
	Mask       uint64 // applied after the left shift when non-zero
	Scale      ScaleKind
	Factor     float64 // multiplier for ScaleConstant, 0 means 1
}

// Signal is a named physical quantity derived from one or more register
// fields.
type Signal struct {
	Name        string
	Description string
	Units       string
	Domain      topology.DomainType // native domain
	Aggregation Aggregation
	Combinator  Combinator
	Expression  string
	Sources     []Source
}

// boundSource is a Source with its register and scale resolved
type boundSource struct {
	Source
	offset uint64
	scale  float64
}

type boundSignal struct {
	Signal
	sources    []boundSource
	expression *govaluate.EvaluableExpression
}

func bindSignal(sig Signal, regs *RegisterMap, cal Calibration) (*boundSignal, error) {
	b := &boundSignal{Signal: sig}
	for _, src := range sig.Sources {
		reg, err := regs.Lookup(src.Register)
		if err != nil {
			return nil, errors.Wrapf(err, "signal %s", sig.Name)
		}
		b.sources = append(b.sources, boundSource{Source: src, offset: reg.Offset, scale: cal.scale(src)})
	}
	switch sig.Combinator {
	case CombineRatio:
		if len(sig.Sources) != 2 {
			return nil, &LogicError{Msg: fmt.Sprintf("ratio signal %s needs 2 sources, has %d", sig.Name, len(sig.Sources))}
		}
	case CombineExpression:
		expr, err := govaluate.NewEvaluableExpression(sig.Expression)
		if err != nil {
			return nil, errors.Wrapf(err, "signal %s expression %q", sig.Name, sig.Expression)
		}
		b.expression = expr
	}
	if len(sig.Sources) == 0 {
		return nil, &LogicError{Msg: fmt.Sprintf("signal %s has no sources", sig.Name)}
	}
	return b, nil
}

// field extracts and scales the bit field of src from raw.
func (s boundSource) field(raw uint64) float64 {
	field := raw >> s.RightShift
	if s.BitWidth < 64 {
		field &= (uint64(1) << s.BitWidth) - 1
	}
	field <<= s.LeftShift
	if s.Mask != 0 {
		field &= s.Mask
	}
	return float64(field) * s.scale
}

// decode converts one raw value per source into the signal value.
func (b *boundSignal) decode(raw []uint64) (float64, error) {
	if len(raw) != len(b.sources) {
		return 0, &LogicError{Msg: fmt.Sprintf("signal %s needs %d raw values, got %d", b.Name, len(b.sources), len(raw))}
	}
	values := make([]float64, len(raw))
	for i, src := range b.sources {
		values[i] = src.field(raw[i])
	}
	switch b.Combinator {
	case CombineDifference:
		result := values[0]
		for _, v := range values[1:] {
			result -= v
		}
		return result, nil
	case CombineRatio:
		if values[1] == 0 {
			return math.NaN(), nil
		}
		return values[0] / values[1], nil
	case CombineExpression:
		variables := make(map[string]any, len(values))
		for i, src := range b.sources {
			variables[src.Var] = values[i]
		}
		result, err := b.expression.Evaluate(variables)
		if err != nil {
			return 0, errors.Wrapf(err, "signal %s", b.Name)
		}
		value, ok := result.(float64)
		if !ok {
			return 0, &LogicError{Msg: fmt.Sprintf("signal %s expression produced %T", b.Name, result)}
		}
		return value, nil
	}
	result := 0.0
	for _, v := range values {
		result += v
	}
	return result, nil
}
