package simulation

import (
	"context"
	"fmt"

	"mcs-engine/internal/metrics"
	"mcs-engine/internal/stats"

	"github.com/rs/zerolog/log"
)

func (e *Engine) resolveNested(ctx context.Context, p *NestedSimulation, n int) ([]float64, error) {
	if p.simulation == nil {
		return nil, fmt.Errorf("%w: nil simulation", ErrInvalidParameter)
	}
	inner := func(ctx context.Context, eng *Engine, size int) ([]float64, error) {
		res, err := eng.run(ctx, p.simulation, size)
		if err != nil {
			return nil, err
		}
		return res.values, nil
	}
	return e.resolveSimulationBacked(ctx, p.Name(), p.nestedSpec, n, inner)
}

func (e *Engine) resolveDependentParameter(ctx context.Context, p *DependentSimulationParameter, n int) ([]float64, error) {
	if p.simulation == nil {
		return nil, fmt.Errorf("%w: nil simulation", ErrInvalidParameter)
	}
	inner := func(ctx context.Context, eng *Engine, size int) ([]float64, error) {
		res, err := eng.runDependent(ctx, p.simulation, size)
		if err != nil {
			return nil, err
		}
		return res.values, nil
	}
	return e.resolveSimulationBacked(ctx, p.Name(), p.nestedSpec, n, inner)
}

// resolveSimulationBacked runs inner once at n for ReturnResults. For a
// summary statistic it fans out one inner run of innerRuns trials per outer
// trial and repairs each statistic independently.
func (e *Engine) resolveSimulationBacked(
	ctx context.Context,
	name string,
	spec nestedSpec,
	n int,
	inner func(ctx context.Context, eng *Engine, size int) ([]float64, error),
) ([]float64, error) {
	if spec.statistic == ReturnResults {
		return inner(ctx, e, n)
	}

	log.Debug().
		Str("parameter", name).
		Str("statistic", spec.statistic.String()).
		Int("trials", n).
		Int("inner_runs", spec.innerRuns).
		Int("workers", e.workers).
		Msg("Nested simulation fan-out")

	return e.fanOut(ctx, n, func(ctx context.Context, child *Engine) (float64, error) {
		draw := func() (float64, error) {
			values, err := inner(ctx, child, spec.innerRuns)
			if err != nil {
				return 0, err
			}
			return stats.Summarize(values).Scalar(spec.statistic)
		}

		v, err := draw()
		if err != nil {
			return 0, err
		}
		if spec.constraint == nil {
			return v, nil
		}
		fixed, changed, err := spec.constraint.Apply(v, draw)
		if err != nil {
			return 0, err
		}
		if changed {
			metrics.ConstraintRepairsTotal.WithLabelValues(spec.constraint.Policy.String()).Inc()
		}
		return fixed, nil
	})
}
