package simulation

import (
	"context"
	"fmt"
	"slices"

	"mcs-engine/internal/distribution"
)

func (e *Engine) resolveConstant(p *Constant, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = p.value
	}
	return out
}

// pickIndices draws n uniforms in [0,1) and maps each to the first outcome
// whose cumulative threshold is >= the draw.
func (e *Engine) pickIndices(thresholds []float64, n int) []int {
	idx := make([]int, n)
	for i := range idx {
		u := e.rng.Float64()
		j := 0
		for j < len(thresholds)-1 && thresholds[j] < u {
			j++
		}
		idx[i] = j
	}
	return idx
}

func (e *Engine) resolveDiscrete(thresholds []float64, value func(int) float64, n int) []float64 {
	out := make([]float64, n)
	for i, j := range e.pickIndices(thresholds, n) {
		out[i] = value(j)
	}
	return out
}

func (e *Engine) resolveDistribution(p *Distribution, n int) ([]float64, error) {
	if p.sampler == nil {
		return nil, fmt.Errorf("%w: distribution has no sampler", ErrInvalidParameter)
	}
	values := p.sampler.Samples(e.rng, n)
	err := repair(p.Name(), p.constraint, values, func() (float64, error) {
		return p.sampler.Sample(e.rng), nil
	})
	return values, err
}

func (e *Engine) resolveDistributionFunction(ctx context.Context, p *DistributionFunction, n int) ([]float64, error) {
	if p.sampler == nil {
		return nil, fmt.Errorf("%w: distribution function has no sampler", ErrInvalidParameter)
	}
	locations, err := e.Resolve(ctx, p.location, n)
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i, x := range locations {
		v, err := distribution.Apply(p.function, p.sampler, x)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
		}
		out[i] = v
	}
	return out, nil
}

func (e *Engine) resolvePrecomputed(p *Precomputed, n int) ([]float64, error) {
	if len(p.values) != n {
		return nil, fmt.Errorf("%w: have %d values, need %d", ErrPrecomputedValueCount, len(p.values), n)
	}
	return slices.Clone(p.values), nil
}

func (e *Engine) resolveConditional(ctx context.Context, p *Conditional, n int) ([]float64, error) {
	reference, err := e.Resolve(ctx, p.reference, n)
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i, v := range reference {
		out[i] = p.pick(v)
	}
	return out, nil
}

func (e *Engine) resolveRandomBag(p *RandomBag, n int) ([]float64, error) {
	size := p.Size()
	if size == 0 {
		return nil, ErrEmptyBag
	}

	switch p.policy {
	case AfterEachPick:
		probs := make([]float64, len(p.items))
		for i, it := range p.items {
			if it.Count > 0 {
				probs[i] = float64(it.Count) / float64(size)
			}
		}
		thresholds, err := cumulative(probs)
		if err != nil {
			return nil, err
		}
		return e.resolveDiscrete(thresholds, func(i int) float64 { return p.items[i].Value }, n), nil

	case Never:
		if n > size {
			return nil, fmt.Errorf("%w: bag holds %d items, %d requested", ErrRandomBagItemCount, size, n)
		}
		contents := p.contents()
		perm := e.rng.Perm(size)
		out := make([]float64, n)
		for i := range out {
			out[i] = contents[perm[i]]
		}
		return out, nil

	case WhenEmpty:
		contents := p.contents()
		indices := make([]int, 0, n+size)
		for len(indices) < n {
			indices = append(indices, e.rng.Perm(size)...)
		}
		out := make([]float64, n)
		for i := range out {
			out[i] = contents[indices[i]]
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrRandomBagReplacementRule, p.policy)
}

func (e *Engine) resolveQualitativeInterpretation(ctx context.Context, p *QualitativeInterpretation, n int) ([]float64, error) {
	categories, err := e.ResolveQualitative(ctx, p.qualitative, n)
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i, c := range categories {
		if v, ok := p.dictionary[c]; ok {
			out[i] = v
		} else {
			out[i] = p.defaultValue
		}
	}
	return out, nil
}
