// Package masterslave keeps two mechanically linked motor groups moving
// together.
//
// A [Controller] owns three PID loops. The master and slave loops each track
// a goal from their own sensor. The equalizer loop reads the difference
// between the two sensors (slave minus master) against a goal of zero, and
// its output is applied symmetrically: added to the slave and subtracted from
// the master, so the pair closes the gap without changing its combined
// effort. The two outputs are then scaled together so neither exceeds the
// actuation bound while their ratio is preserved.
//
// In manual override both sides receive the same operator supplied output
// and the equalizer keeps them level on top of it.
package masterslave
