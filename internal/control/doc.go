// Package control provides the single-loop PID controller used by every
// closed-loop mechanism.
//
// A [PID] reads its measured value through an [Input] and drives its
// actuator through an [Output]:
//
//	arm := control.NewPID(
//		control.OutputFunc(func(v int, immediate bool) { mgr.Set(1, v, immediate) }),
//		control.InputFunc(pot.Read),
//		1.0, 0.1, 0.01, 50, -50, 4,
//	)
//	arm.SetGoal(800)
//	for !arm.ExecuteContinuous() {
//		time.Sleep(control.DefaultInterval)
//	}
//
// # Thread Safety
//
// PID is NOT thread-safe. Owners that share a PID between goroutines
// (see package masterslave) must serialize access themselves.
package control
