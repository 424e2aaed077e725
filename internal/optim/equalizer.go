package optim

import (
	"context"
	"fmt"

	"github.com/san-kum/motorsync/internal/config"
	"github.com/san-kum/motorsync/internal/sim"
)

// EqualizerObjective scores equalizer gains ("kp", "ki", "kd") by the mean
// metrics of seeds simulated runs of base.
func EqualizerObjective(base *config.Config, seeds int) Evaluate {
	return func(ctx context.Context, params map[string]float64) (map[string]float64, error) {
		cfg := base.Clone()
		for name, v := range params {
			switch name {
			case "kp":
				cfg.Pair.Equalizer.Kp = v
			case "ki":
				cfg.Pair.Equalizer.Ki = v
			case "kd":
				cfg.Pair.Equalizer.Kd = v
			default:
				return nil, fmt.Errorf("unknown equalizer parameter %q", name)
			}
		}
		results, err := sim.NewEnsemble(cfg, max(seeds, 1), cfg.Sim.Seed).Run(ctx)
		if err != nil {
			return nil, err
		}
		return sim.Mean(results), nil
	}
}
