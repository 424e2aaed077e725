package filter

import "testing"

func TestMovingAverageWindow(t *testing.T) {
	m := NewMovingAverage(4)

	tests := []struct {
		in   int
		want int
	}{
		{10, 10},
		{20, 15},
		{30, 20},
		{40, 25},
		{50, 35}, // 10 drops out
		{-140, -5},
	}

	for i, tt := range tests {
		if got := m.Add(tt.in); got != tt.want {
			t.Errorf("sample %d: expected %d, got %d", i, tt.want, got)
		}
	}
	if m.Value() != -5 {
		t.Errorf("expected value -5, got %d", m.Value())
	}

	m.Reset()
	if m.Value() != 0 {
		t.Errorf("expected 0 after reset, got %d", m.Value())
	}
}

func TestMovingAverageMinimumWindow(t *testing.T) {
	m := NewMovingAverage(0)
	m.Add(3)
	if got := m.Add(9); got != 9 {
		t.Errorf("window of one should track the last sample, got %d", got)
	}
}

func TestCalibrated(t *testing.T) {
	raw := 1435
	c := NewCalibrated(func() int { return raw }, 2, 1435, -1)

	raw = 1335
	if got := c.Read(); got != 100 {
		t.Errorf("expected flipped reading 100, got %d", got)
	}

	c.Zero()
	if got := c.Read(); got != 0 {
		t.Errorf("expected 0 after zeroing, got %d", got)
	}

	raw = 1325
	if got := c.Sample(); got != 5 {
		t.Errorf("expected smoothed 5, got %d", got)
	}
}

func TestCalibratedReadDoesNotSample(t *testing.T) {
	raw := 0
	c := NewCalibrated(func() int { return raw }, 4, 0, 1)
	c.Sample()

	raw = 80
	for i := 0; i < 10; i++ {
		if got := c.Read(); got != 0 {
			t.Fatalf("read %d: expected 0 until the next sample, got %d", i, got)
		}
	}
	if got := c.Sample(); got != 40 {
		t.Errorf("expected average of 0 and 80, got %d", got)
	}
	if got := c.Read(); got != 40 {
		t.Errorf("expected read to return the sampled average, got %d", got)
	}
}
