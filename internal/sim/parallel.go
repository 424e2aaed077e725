package sim

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/motorsync/internal/config"
	"github.com/san-kum/motorsync/internal/dynamo"
)

// Ensemble runs one configuration under several noise seeds.
type Ensemble struct {
	cfg       *config.Config
	numRuns   int
	seedStart int64
	opts      []Option
}

func NewEnsemble(cfg *config.Config, numRuns int, seedStart int64, opts ...Option) *Ensemble {
	return &Ensemble{cfg: cfg, numRuns: numRuns, seedStart: seedStart, opts: opts}
}

// Run simulates every seed concurrently. Results are in seed order.
func (e *Ensemble) Run(ctx context.Context) ([]*dynamo.Result, error) {
	results := make([]*dynamo.Result, e.numRuns)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < e.numRuns; i++ {
		g.Go(func() error {
			cfg := e.cfg.Clone()
			cfg.Sim.Seed = e.seedStart + int64(i)

			rig, err := New(cfg, e.opts...)
			if err != nil {
				return err
			}
			results[i], err = rig.Run(ctx)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Mean averages each metric over results.
func Mean(results []*dynamo.Result) map[string]float64 {
	out := make(map[string]float64)
	if len(results) == 0 {
		return out
	}
	for _, r := range results {
		for k, v := range r.Metrics {
			out[k] += v
		}
	}
	for k := range out {
		out[k] /= float64(len(results))
	}
	return out
}
