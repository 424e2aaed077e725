// Package export writes recorded runs as JSON, PNG charts or SVG traces.
package export

import (
	"encoding/json"
	"io"

	"github.com/san-kum/motorsync/internal/dynamo"
	"github.com/san-kum/motorsync/internal/storage"
)

type Sample struct {
	T            float64 `json:"t"`
	Mode         string  `json:"mode"`
	MasterGoal   int     `json:"master_goal"`
	SlaveGoal    int     `json:"slave_goal"`
	MasterPos    int     `json:"master_pos"`
	SlavePos     int     `json:"slave_pos"`
	MasterHeight float64 `json:"master_height"`
	SlaveHeight  float64 `json:"slave_height"`
	Correction   int     `json:"correction"`
	MasterOut    int     `json:"master_out"`
	SlaveOut     int     `json:"slave_out"`
	Applied      []int   `json:"applied,omitempty"`
}

type ExportData struct {
	ID       string             `json:"id"`
	Preset   string             `json:"preset"`
	Source   string             `json:"source"`
	Dt       float64            `json:"dt"`
	Duration float64            `json:"duration"`
	Cycles   int                `json:"cycles"`
	Metrics  map[string]float64 `json:"metrics"`
	Samples  []Sample           `json:"samples"`
}

func NewExportData(meta storage.RunMetadata, samples []dynamo.Sample) ExportData {
	data := ExportData{
		ID:       meta.ID,
		Preset:   meta.Preset,
		Source:   meta.Source,
		Dt:       meta.Dt,
		Duration: meta.Duration,
		Cycles:   meta.Cycles,
		Metrics:  meta.Metrics,
		Samples:  make([]Sample, len(samples)),
	}
	for i, s := range samples {
		data.Samples[i] = Sample(s)
	}
	return data
}

func JSON(w io.Writer, meta storage.RunMetadata, samples []dynamo.Sample) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(NewExportData(meta, samples))
}
