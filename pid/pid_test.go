package pid_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/triton-robotics/onboard/pid"
)

func TestInitThenCalculateZeroIsZero(t *testing.T) {
	for _, g := range []pid.Gains{{1, 1, 1}, {0, 0, 0}, {3.5, 0.2, 9}} {
		c := pid.New[pid.Scalar](g)
		c.Init(100)
		assert.Equal(t, pid.Scalar(0), c.Calculate(0))
	}
}

func TestLinearityOnFreshController(t *testing.T) {
	gains := pid.Gains{Kp: 2, Ki: 0.5, Kd: 1}
	alpha, beta := 3.0, -2.0
	e1, e2 := pid.Scalar(1.5), pid.Scalar(-0.7)

	combined := pid.New[pid.Scalar](gains)
	combined.Init(50)
	got := combined.Calculate(e1.Scale(alpha).Add(e2.Scale(beta)))

	c1 := pid.New[pid.Scalar](gains)
	c1.Init(50)
	r1 := c1.Calculate(e1)

	c2 := pid.New[pid.Scalar](gains)
	c2.Init(50)
	r2 := c2.Calculate(e2)

	want := r1.Scale(alpha).Add(r2.Scale(beta))
	assert.InDelta(t, float64(want), float64(got), 1e-9)
}

func TestIntegralAccumulatesRectangularly(t *testing.T) {
	g := pid.Gains{Kp: 0, Ki: 2, Kd: 0}
	freq := 100.0
	c := pid.New[pid.Scalar](g)
	c.Init(freq)

	const e = pid.Scalar(0.5)
	const n = 20
	for i := 0; i < n; i++ {
		c.Calculate(e)
	}
	// Calculate uses the integral accumulated before its own update, so
	// the contribution after n ticks shows on the next call; with Kp and
	// Kd at zero, Calculate(0) returns exactly Ki * integral.
	got := c.Calculate(0)
	want := g.Ki * float64(e) * float64(n) / freq
	assert.InDelta(t, want, float64(got), 1e-9)
}

func TestUpdateGainsLeavesStateUntouched(t *testing.T) {
	c := pid.New[pid.Scalar](pid.Gains{Kp: 1, Ki: 1, Kd: 0})
	c.Init(10)
	c.Calculate(1) // integral now 0.1, prev now 1

	c.UpdateGains(pid.Gains{Kp: 0, Ki: 1, Kd: 0})
	got := c.Calculate(0)
	// Ki * integral(=0.1) should still be reflected
	assert.InDelta(t, 0.1, float64(got), 1e-9)
}

func TestVec2Componentwise(t *testing.T) {
	g := pid.Gains{Kp: 1, Ki: 0, Kd: 0}
	c := pid.New[pid.Vec2](g)
	c.Init(100)
	out := c.Calculate(pid.Vec2{X: 3, Y: -4})
	assert.Equal(t, pid.Vec2{X: 3, Y: -4}, out)
}

func TestReinitZeroesIntegralAndPrev(t *testing.T) {
	c := pid.New[pid.Scalar](pid.Gains{Kp: 0, Ki: 1, Kd: 1})
	c.Init(10)
	for i := 0; i < 10; i++ {
		c.Calculate(1)
	}
	c.Init(10)
	got := c.Calculate(0)
	assert.Equal(t, pid.Scalar(0), got)
}
