// Package optim searches controller gains against simulated runs.
package optim

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Evaluate scores one parameter set and returns its metrics.
type Evaluate func(ctx context.Context, params map[string]float64) (map[string]float64, error)

type Trial struct {
	Params map[string]float64
	Score  float64
	Err    error
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	workers    int
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges, workers: runtime.GOMAXPROCS(0)}
}

// SetWorkers bounds how many evaluations run at once.
func (g *GridSearch) SetWorkers(n int) {
	if n > 0 {
		g.workers = n
	}
}

// Search evaluates every point of the grid and returns the parameters with
// the lowest metricName. Points whose evaluation fails are reported in the
// trials but never win.
func (g *GridSearch) Search(ctx context.Context, eval Evaluate, metricName string) (map[string]float64, float64, []Trial, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, 0, nil, fmt.Errorf("%d parameter names for %d ranges", len(g.paramNames), len(g.ranges))
	}

	points := make([]map[string]float64, 0)
	g.enumerate(0, make(map[string]float64), &points)

	trials := make([]Trial, len(points))
	var mu sync.Mutex
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)
	for i, params := range points {
		eg.Go(func() error {
			metrics, err := eval(ctx, params)
			t := Trial{Params: params, Score: math.Inf(1), Err: err}
			if err == nil {
				v, ok := metrics[metricName]
				if !ok {
					t.Err = fmt.Errorf("metric %q not reported", metricName)
				} else {
					t.Score = v
				}
			}
			mu.Lock()
			trials[i] = t
			mu.Unlock()
			return ctx.Err()
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, 0, trials, err
	}

	best := math.Inf(1)
	var bestParams map[string]float64
	for _, t := range trials {
		if t.Err == nil && t.Score < best {
			best = t.Score
			bestParams = t.Params
		}
	}
	if bestParams == nil {
		return nil, best, trials, fmt.Errorf("no grid point could be evaluated")
	}

	sort.SliceStable(trials, func(i, j int) bool { return trials[i].Score < trials[j].Score })
	return bestParams, best, trials, nil
}

func (g *GridSearch) enumerate(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.paramNames) {
		*out = append(*out, current)
		return
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		g.enumerate(depth+1, newParams, out)
	}
}

// Linspace returns n evenly spaced values from lo to hi inclusive.
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + step*float64(i)
	}
	return out
}
