package optim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/san-kum/motorsync/internal/config"
)

func TestGridSearchFindsMinimum(t *testing.T) {
	g := NewGridSearch([]string{"a", "b"}, [][]float64{{0, 1, 2, 3}, {-1, 0, 1}})
	g.SetWorkers(2)

	eval := func(ctx context.Context, p map[string]float64) (map[string]float64, error) {
		a, b := p["a"]-2, p["b"]-1
		return map[string]float64{"cost": a*a + b*b}, nil
	}
	best, score, trials, err := g.Search(context.Background(), eval, "cost")
	if err != nil {
		t.Fatal(err)
	}
	if best["a"] != 2 || best["b"] != 1 || score != 0 {
		t.Errorf("got %v with %f", best, score)
	}
	if len(trials) != 12 {
		t.Errorf("expected 12 trials, got %d", len(trials))
	}
	if trials[0].Score != 0 {
		t.Errorf("trials should be sorted by score, first is %f", trials[0].Score)
	}
}

func TestGridSearchSkipsFailedPoints(t *testing.T) {
	g := NewGridSearch([]string{"x"}, [][]float64{{1, 2, 3}})
	eval := func(ctx context.Context, p map[string]float64) (map[string]float64, error) {
		if p["x"] == 1 {
			return nil, errors.New("diverged")
		}
		return map[string]float64{"cost": p["x"]}, nil
	}
	best, score, _, err := g.Search(context.Background(), eval, "cost")
	if err != nil {
		t.Fatal(err)
	}
	if best["x"] != 2 || score != 2 {
		t.Errorf("got %v with %f", best, score)
	}
}

func TestGridSearchMissingMetric(t *testing.T) {
	g := NewGridSearch([]string{"x"}, [][]float64{{1}})
	eval := func(ctx context.Context, p map[string]float64) (map[string]float64, error) {
		return map[string]float64{}, nil
	}
	if _, _, _, err := g.Search(context.Background(), eval, "cost"); err == nil {
		t.Error("expected error when no point reports the metric")
	}
}

func TestLinspace(t *testing.T) {
	got := Linspace(0, 1, 5)
	want := []float64{0, 0.25, 0.5, 0.75, 1}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("got %v, want %v", got, want)
			break
		}
	}
	if len(Linspace(3, 4, 1)) != 1 {
		t.Error("n=1 should give one value")
	}
}

func TestEqualizerObjective(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Sim.Duration = 2
	cfg.Sim.Setpoints = []config.Setpoint{{At: 0, Goal: 400}}

	g := NewGridSearch([]string{"kp"}, [][]float64{{0, 0.4}})
	best, _, trials, err := g.Search(context.Background(), EqualizerObjective(cfg, 1), "sync_rms")
	if err != nil {
		t.Fatal(err)
	}
	if best["kp"] != 0.4 {
		t.Errorf("expected the active equalizer to win, trials %+v", trials)
	}

	if _, err := EqualizerObjective(cfg, 1)(context.Background(), map[string]float64{"kf": 1}); err == nil {
		t.Error("expected error for unknown parameter")
	}
}
