// Package dynamo holds the primitives shared by the lift simulation and the
// run recorder.
//
//   - [State] and [Control]: plant state and input vectors
//   - [System]: an ODE plant, dX/dt = f(X, u, t)
//   - [Integrator]: one fixed step of a numerical method
//   - [Sample]: one recorded row of a run, simulated or on hardware
//   - [Metric] and [Observer]: consumers of samples
//
// Nothing in this package is safe for concurrent use unless stated.
package dynamo
