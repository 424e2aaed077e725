// Package motor owns the commanded output of every motor port and ramps the
// applied output toward it.
//
// Callers command a port with [Manager.Set]; a background task started by
// [Manager.Start] moves the value written to the [Bus] toward the command by
// at most the port's ramp rate per millisecond, so the drivetrain never sees
// a step change unless the caller asks for one with immediate=true.
//
// Each port has its own timed lock. The ramp task skips a port for one tick
// when its lock is busy instead of stalling the other ports.
package motor
