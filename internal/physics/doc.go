// Package physics provides the plant models driven by the simulator.
//
// [Lift] is a two-sided lift: each side is a carriage pushed by its motors,
// pulled down by its load and tied to the other side by a stiff crossbar.
// Positions and velocities are in sensor units, so the controller sees the
// same numbers it would read from a potentiometer or an encoder.
//
// Models implement [dynamo.System] for integration and [dynamo.Configurable]
// for runtime parameter adjustment.
package physics
