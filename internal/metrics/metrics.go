// Package metrics scores lift runs from their recorded samples.
package metrics

import "github.com/san-kum/motorsync/internal/dynamo"

// Standard returns the metrics reported for every run. band is the settle
// band in sensor units.
func Standard(band int) []dynamo.Metric {
	return []dynamo.Metric{
		NewSyncError(),
		NewMaxGap(),
		NewTrackingError(),
		NewControlEffort(),
		NewSettleTime(band),
	}
}

// Collect returns the current value of each metric by name.
func Collect(ms []dynamo.Metric) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		out[m.Name()] = m.Value()
	}
	return out
}
