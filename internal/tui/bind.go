package tui

import (
	"github.com/san-kum/motorsync/internal/dynamo"
	"github.com/san-kum/motorsync/internal/lift"
	"github.com/san-kum/motorsync/internal/motor"
	"github.com/san-kum/motorsync/internal/recorder"
)

type bound struct {
	*lift.Lift
	rec *recorder.Recorder
}

func (b bound) Latest() (dynamo.Sample, bool) { return b.rec.Latest() }

func (b bound) Channels() []motor.ChannelState { return b.Manager.Snapshot() }

// Bind adapts a running lift and the recorder observing it.
func Bind(l *lift.Lift, rec *recorder.Recorder) Target {
	return bound{Lift: l, rec: rec}
}

// SidePorts labels every port of l with its side.
func SidePorts(l *lift.Lift) map[int]string {
	out := make(map[int]string)
	for _, p := range l.MasterPorts() {
		out[p] = "master"
	}
	for _, p := range l.SlavePorts() {
		out[p] = "slave"
	}
	return out
}
