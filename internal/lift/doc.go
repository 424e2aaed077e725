// Package lift assembles a two-sided lift from a configuration: one motor
// Manager for every port, a side output per side that fans out to that
// side's ports, and a master-slave controller over the two side sensors.
//
// The same assembly runs against the in-memory bus in simulation and
// against the serial bridge on hardware.
package lift
