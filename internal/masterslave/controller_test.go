package masterslave

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/motorsync/internal/control"
	"github.com/san-kum/motorsync/internal/filter"
)

type side struct {
	mu  sync.Mutex
	pos int
	out []int
}

func (s *side) Read() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

func (s *side) Write(v int, _ bool) {
	s.mu.Lock()
	s.out = append(s.out, v)
	s.mu.Unlock()
}

func (s *side) set(pos int) {
	s.mu.Lock()
	s.pos = pos
	s.mu.Unlock()
}

func (s *side) lastOut() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.out) == 0 {
		return 0
	}
	return s.out[len(s.out)-1]
}

func newLoop(s *side, kp float64, tolerance int) *control.PID {
	return control.NewPID(s, s, kp, 0, 0, 100, -100, tolerance)
}

var _ = Describe("Controller", func() {
	var (
		master, slave *side
		eq            *control.PID
		ctrl          *Controller
	)

	BeforeEach(func() {
		master, slave = &side{}, &side{}
		eq = control.NewPID(nil, nil, 1, 0, 0, 50, -50, 1)
		ctrl = New(newLoop(master, 1, 5), newLoop(slave, 1, 5), eq, WithLockTimeout(5*time.Millisecond))
	})

	Describe("equalizer correction", func() {
		It("slows the side that is ahead and speeds the one behind", func() {
			Expect(ctrl.SetGoal(50)).To(BeTrue())
			master.set(20)
			slave.set(30)

			Expect(ctrl.Cycle()).To(BeTrue())
			cyc := ctrl.Last()

			// Uncorrected outputs would be 30 and 20.
			Expect(cyc.Correction).To(Equal(-10))
			Expect(cyc.SlaveOut).To(Equal(10))
			Expect(cyc.MasterOut).To(Equal(40))
			Expect(slave.lastOut()).To(BeNumerically("<", 20))
			Expect(master.lastOut()).To(BeNumerically(">", 30))
		})

		It("keeps the combined command centered", func() {
			ctrl.SetGoal(60)
			master.set(10)
			slave.set(0)
			ctrl.Cycle()

			cyc := ctrl.Last()
			Expect(cyc.MasterOut + cyc.SlaveOut).To(Equal(50 + 60))
		})

		It("applies on top of manual override", func() {
			Expect(ctrl.SetOutput(40)).To(BeTrue())
			master.set(0)
			slave.set(8)
			ctrl.Cycle()

			cyc := ctrl.Last()
			Expect(cyc.Mode).To(Equal(ManualOverride))
			Expect(cyc.SlaveOut).To(Equal(32))
			Expect(cyc.MasterOut).To(Equal(48))
		})
	})

	Describe("joint saturation", func() {
		It("scales both outputs by the same factor", func() {
			ctrl.SetGoal(400)
			master.set(0)
			slave.set(100)
			ctrl.Cycle()

			cyc := ctrl.Last()
			Expect(max(abs(cyc.MasterOut), abs(cyc.SlaveOut))).To(Equal(DefaultBound))
			// Unscaled: master 400+100=500, slave 300-100=200.
			Expect(cyc.MasterOut).To(Equal(127))
			Expect(cyc.SlaveOut).To(Equal(51))
		})
	})

	Describe("modes", func() {
		It("starts in closed loop by default and honours WithMode", func() {
			Expect(ctrl.Mode()).To(Equal(ClosedLoop))
			manual := New(newLoop(master, 1, 5), newLoop(slave, 1, 5), eq, WithMode(ManualOverride))
			Expect(manual.Mode()).To(Equal(ManualOverride))
		})

		It("captures the sensed position when leaving manual override", func() {
			ctrl.SetOutput(60)
			master.set(75)
			slave.set(75)

			Expect(ctrl.IncreaseGoal(10)).To(BeTrue())
			Expect(ctrl.Mode()).To(Equal(ClosedLoop))
			Expect(ctrl.master.Goal()).To(Equal(85))
			Expect(ctrl.slave.Goal()).To(Equal(85))
		})

		It("accumulates increments in closed loop", func() {
			ctrl.SetGoal(20)
			ctrl.IncreaseGoal(5)
			ctrl.IncreaseGoal(-2)
			Expect(ctrl.master.Goal()).To(Equal(23))
			Expect(ctrl.slave.Goal()).To(Equal(23))
		})

		It("uses the absolute goal from SetGoal after manual override", func() {
			ctrl.SetOutput(-30)
			master.set(40)
			ctrl.SetGoal(10)
			Expect(ctrl.master.Goal()).To(Equal(10))
			Expect(ctrl.Mode()).To(Equal(ClosedLoop))
		})
	})

	Describe("goal nudges", func() {
		It("keep the integral that holds the load", func() {
			m := control.NewPID(master, master, 0, 1, 0, 100, -100, 1)
			s := control.NewPID(slave, slave, 0, 1, 0, 100, -100, 1)
			c := New(m, s, eq)
			c.SetGoal(50)
			master.set(40)
			slave.set(40)
			c.Cycle()
			c.Cycle()
			Expect(m.Integral()).To(Equal(20))

			Expect(c.IncreaseGoal(5)).To(BeTrue())
			Expect(m.Goal()).To(Equal(55))
			Expect(m.Integral()).To(Equal(20))
			Expect(s.Integral()).To(Equal(20))
		})
	})

	Describe("filtered inputs", func() {
		build := func(raw *int) *Controller {
			in := func(v *int) *filter.Calibrated {
				return filter.NewCalibrated(func() int { return *v }, 8, 0, 1)
			}
			zero := 0
			m := control.NewPID(nil, in(raw), 1, 0, 0, 100, -100, 5)
			s := control.NewPID(nil, in(&zero), 1, 0, 0, 100, -100, 5)
			c := New(m, s, control.NewPID(nil, nil, 1, 0, 0, 50, -50, 1))
			c.SetGoal(100)
			return c
		}

		It("are not advanced by OnTarget polling", func() {
			rawA, rawB := 0, 0
			quiet, polled := build(&rawA), build(&rawB)
			quiet.Cycle()
			polled.Cycle()

			rawA, rawB = 80, 80
			for i := 0; i < 7; i++ {
				polled.OnTarget()
			}
			quiet.Cycle()
			polled.Cycle()

			Expect(polled.Last().MasterPos).To(Equal(quiet.Last().MasterPos))
			Expect(polled.Last().MasterOut).To(Equal(quiet.Last().MasterOut))
			Expect(polled.Last().MasterPos).To(Equal(40))
		})
	})

	Describe("live tuning", func() {
		It("reads and changes loop parameters under the lock", func() {
			Expect(ctrl.SetParam(LoopEqualizer, "kp", 0.5)).To(Succeed())
			params, err := ctrl.Params(LoopEqualizer)
			Expect(err).NotTo(HaveOccurred())
			Expect(params["kp"]).To(Equal(0.5))

			Expect(ctrl.SetParam("left", "kp", 1)).NotTo(Succeed())
			Expect(ctrl.SetParam(LoopMaster, "gain", 1)).NotTo(Succeed())

			ctrl.mu.Lock()
			Expect(ctrl.SetParam(LoopSlave, "kp", 2)).To(MatchError(ErrLockTimeout))
			ctrl.mu.Unlock()
		})
	})

	Describe("OnTarget", func() {
		BeforeEach(func() {
			ctrl.SetGoal(100)
		})

		It("is true when both sides are within tolerance", func() {
			master.set(98)
			slave.set(103)
			Expect(ctrl.OnTarget()).To(BeTrue())
		})

		It("is false when only one side is within tolerance", func() {
			master.set(100)
			slave.set(80)
			Expect(ctrl.OnTarget()).To(BeFalse())

			master.set(80)
			slave.set(100)
			Expect(ctrl.OnTarget()).To(BeFalse())
		})

		It("waits until both sides arrive", func() {
			go func() {
				time.Sleep(5 * time.Millisecond)
				master.set(100)
				slave.set(100)
			}()
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			Expect(ctrl.WaitOnTarget(ctx, time.Millisecond)).To(Succeed())
		})
	})

	Describe("lock contention", func() {
		It("skips the cycle and rejects commands while the lock is held", func() {
			ctrl.mu.Lock()
			Expect(ctrl.Cycle()).To(BeFalse())
			Expect(ctrl.SetGoal(5)).To(BeFalse())
			Expect(ctrl.SetOutput(5)).To(BeFalse())
			Expect(ctrl.IncreaseGoal(5)).To(BeFalse())
			Expect(ctrl.OnTarget()).To(BeFalse())
			ctrl.mu.Unlock()

			Expect(ctrl.Skipped()).To(Equal(uint64(1)))
			Expect(master.out).To(BeEmpty())
			Expect(ctrl.Cycle()).To(BeTrue())
		})
	})

	Describe("task", func() {
		It("runs cycles until stopped and notifies observers", func() {
			var mu sync.Mutex
			var seen []Cycle
			obs := ObserverFunc(func(c Cycle) {
				mu.Lock()
				seen = append(seen, c)
				mu.Unlock()
			})
			ctrl = New(newLoop(master, 1, 5), newLoop(slave, 1, 5), eq,
				WithPeriod(2*time.Millisecond), WithObserver(obs))

			Expect(ctrl.InitializeTask(context.Background(), 30)).To(Succeed())
			Expect(ctrl.InitializeTask(context.Background(), 30)).To(MatchError(ErrRunning))

			Eventually(func() int {
				mu.Lock()
				defer mu.Unlock()
				return len(seen)
			}).Should(BeNumerically(">=", 3))
			ctrl.Stop()

			mu.Lock()
			defer mu.Unlock()
			Expect(seen[0].MasterGoal).To(Equal(30))
			Expect(seen[0].MasterOut).To(Equal(30))
		})
	})
})

var _ = Describe("ScaleJoint", func() {
	DescribeTable("preserves the ratio and caps the peak at the bound",
		func(a, b int) {
			sa, sb := ScaleJoint(a, b, 127)
			Expect(max(abs(sa), abs(sb))).To(Equal(127))
			if b != 0 && sb != 0 {
				Expect(float64(sa) / float64(sb)).To(BeNumerically("~", float64(a)/float64(b), 0.05))
			}
		},
		Entry("master dominant", 300, 150),
		Entry("slave dominant", 90, -254),
		Entry("both negative", -200, -180),
		Entry("one zero", 0, 500),
	)

	It("leaves in-range outputs untouched", func() {
		a, b := ScaleJoint(-127, 64, 127)
		Expect(a).To(Equal(-127))
		Expect(b).To(Equal(64))
	})

	It("is well defined for a zero bound", func() {
		a, b := ScaleJoint(10, -4, 0)
		Expect(a).To(Equal(0))
		Expect(b).To(Equal(0))
	})
})
