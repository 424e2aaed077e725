package control

// Input supplies the measured value of a loop, usually a sensor reading.
type Input interface {
	Read() int
}

// Sampler is an Input that is filtered over time. Sample advances the
// filter by one reading; Read then returns the filtered value without
// side effects. Loops call Sample once per control pass.
type Sampler interface {
	Input
	Sample() int
}

// Output drives the actuator of a loop. immediate bypasses output ramping.
type Output interface {
	Write(value int, immediate bool)
}

// InputFunc adapts a function to Input.
type InputFunc func() int

func (f InputFunc) Read() int { return f() }

// OutputFunc adapts a function to Output.
type OutputFunc func(value int, immediate bool)

func (f OutputFunc) Write(value int, immediate bool) { f(value, immediate) }
