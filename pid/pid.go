// Package pid implements the generic single-variable PID primitive used by
// every axis of the cascade in package control. It is polymorphic over the
// error type's capability set — add, subtract, scalar-multiply — rather
// than over a single concrete numeric type, so the same Controller body
// serves both the scalar (rotational) and Vec2 (translational) axes.
package pid

// Value is the minimal algebra a PID error type must support: addition,
// subtraction, and scalar multiplication, all componentwise for vector
// instantiations. Scalar and Vec2 below are the two concrete
// instantiations the cascade computes against; a third Vec2 controller
// (direction correction) is constructed but never invoked — see
// DESIGN.md.
type Value[T any] interface {
	Add(T) T
	Sub(T) T
	Scale(float64) T
}

// Scalar is the rotational error type: a plain float64 with the Value
// algebra attached so it can instantiate Controller.
type Scalar float64

func (s Scalar) Add(o Scalar) Scalar   { return s + o }
func (s Scalar) Sub(o Scalar) Scalar   { return s - o }
func (s Scalar) Scale(k float64) Scalar { return Scalar(float64(s) * k) }

// Vec2 is the translational error type: a planar vector.
type Vec2 struct {
	X, Y float64
}

func (v Vec2) Add(o Vec2) Vec2    { return Vec2{v.X + o.X, v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2    { return Vec2{v.X - o.X, v.Y - o.Y} }
func (v Vec2) Scale(k float64) Vec2 { return Vec2{v.X * k, v.Y * k} }

// Gains is a mutable (Kp, Ki, Kd) triplet, tunable at any loop iteration
// independent of the controller's internal state.
type Gains struct {
	Kp, Ki, Kd float64
}

// Controller is a generic single-variable PID. Its zero value is not
// usable; construct with New and call Init before the first Calculate.
type Controller[T Value[T]] struct {
	gains    Gains
	dt       float64
	integral T
	prev     T
}

// New constructs a Controller with the given initial gains. Init must
// still be called to establish the control period before use.
func New[T Value[T]](gains Gains) *Controller[T] {
	return &Controller[T]{gains: gains}
}

// Init sets dt = 1/f and zeros the integral accumulator and previous
// error. Re-initialization at any point resets exactly this state,
// leaving gains untouched — this is the mechanism the cascade in package
// control uses for integral-windup reset on mode switch.
func (c *Controller[T]) Init(freqHz float64) {
	var zero T
	c.dt = 1.0 / freqHz
	c.integral = zero
	c.prev = zero
}

// UpdateGains replaces the gain triplet without touching integral or
// previous-error state.
func (c *Controller[T]) UpdateGains(g Gains) {
	c.gains = g
}

// Gains returns the controller's current gain triplet.
func (c *Controller[T]) Gains() Gains { return c.gains }

// Calculate returns Kp*error + Ki*integral + Kd*(error-prev)/dt, then
// advances the integral by error*dt and stores error as prev. There is no
// intrinsic saturation or derivative filtering — the integral is plain
// rectangular accumulation.
func (c *Controller[T]) Calculate(err T) T {
	p := err.Scale(c.gains.Kp)
	i := c.integral.Scale(c.gains.Ki)
	d := err.Sub(c.prev).Scale(c.gains.Kd / c.dt)

	out := p.Add(i).Add(d)

	c.integral = c.integral.Add(err.Scale(c.dt))
	c.prev = err

	return out
}
