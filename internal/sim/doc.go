// Package sim runs a configured lift against a simulated plant.
//
// A [Rig] wires the real motor Manager and master-slave controller to an
// in-memory bus, reads the bus back as plant input, integrates the
// [physics.Lift] model and feeds noisy, filtered heights to the sensors.
// Run steps everything in virtual time and is deterministic for a seed;
// Start runs the same rig in real time for the live monitor.
package sim
