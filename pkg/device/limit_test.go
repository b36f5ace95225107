package device

import (
	"math"
	"math/rand"
	"testing"
)

func TestFetlimRegions(t *testing.T) {
	tests := []struct {
		name            string
		vnew, vold, vto float64
		want            float64
	}{
		{"staying on, large step", 20, 5, 0.5, 5 + math.Abs(2*(5-0.5)) + 2},
		{"going off below vtox", 0, 5, 0.5, 2.5},
		{"middle increasing", 10, 1, 0.5, 4.5},
		{"middle decreasing", -3, 1, 0.5, 0},
		{"off increasing past vto", 3, 0, 0.5, 1},
		{"small step untouched", 0.75, 0.7, 0.5, 0.75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Fetlim(tt.vnew, tt.vold, tt.vto); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Fetlim(%g, %g, %g) = %g, want %g", tt.vnew, tt.vold, tt.vto, got, tt.want)
			}
		})
	}
}

func TestLimvds(t *testing.T) {
	tests := []struct {
		vnew, vold, want float64
	}{
		{10, 1, 4},
		{-3, 1, -0.5},
		{30, 4, 14},
		{1, 4, 2},
		{3.8, 4, 3.8},
	}
	for _, tt := range tests {
		if got := Limvds(tt.vnew, tt.vold); got != tt.want {
			t.Errorf("Limvds(%g, %g) = %g, want %g", tt.vnew, tt.vold, got, tt.want)
		}
	}
}

func TestPnjlim(t *testing.T) {
	vt := 0.025864
	vcrit := Vcrit(vt, 1e-14)

	tests := []struct {
		name        string
		vnew, vold  float64
		want        float64
		wantClamped bool
	}{
		{"forward step", 5, 0.6, 0.6 + vt*(2+math.Log((5-0.6)/vt-2)), true},
		{"forward from reverse bias", 2, -1, vt * math.Log(2/vt), true},
		{"small step", 0.3, 0.29, 0.3, false},
		{"reverse step from forward bias", -5, 0.6, -1.6, true},
		{"reverse step from reverse bias", -10, -2, -5, true},
		{"reverse step within floor", -0.5, 0.2, -0.5, false},
		{"deep reverse from zero", -3, 0, -1, true},
	}
	for _, tt := range tests {
		v, clamped := Pnjlim(tt.vnew, tt.vold, vt, vcrit)
		if clamped != tt.wantClamped || math.Abs(v-tt.want) > 1e-12 {
			t.Errorf("%s: Pnjlim(%g, %g) = %g (clamped %v), want %g (clamped %v)",
				tt.name, tt.vnew, tt.vold, v, clamped, tt.want, tt.wantClamped)
		}
	}
}

// The limiter never moves further from the previous iterate than the
// proposal did.
func TestLimiterNeverIncreasesStep(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	vt := 0.025864
	vcrit := Vcrit(vt, 1e-15)

	for i := 0; i < 200000; i++ {
		vold := rng.Float64()*20 - 10
		vnew := rng.Float64()*40 - 20
		vto := rng.Float64()*2 - 1
		step := math.Abs(vnew - vold)

		if got := Fetlim(vnew, vold, vto); math.Abs(got-vold) > step {
			t.Fatalf("Fetlim(%g, %g, %g) = %g grows the step", vnew, vold, vto, got)
		}
		if got := Limvds(vnew, vold); math.Abs(got-vold) > step {
			t.Fatalf("Limvds(%g, %g) = %g grows the step", vnew, vold, got)
		}
		if got, _ := Pnjlim(vnew, vold, vt, vcrit); math.Abs(got-vold) > step {
			t.Fatalf("Pnjlim(%g, %g) = %g grows the step", vnew, vold, got)
		}
	}
}

func TestVcrit(t *testing.T) {
	if v := Vcrit(0.0258, 0); v != math.MaxFloat64 {
		t.Errorf("Vcrit with zero saturation current = %g, want MaxFloat64", v)
	}
	if v := Vcrit(0.0258, 1e-14); v < 0.5 || v > 1 {
		t.Errorf("Vcrit = %g, expected a forward-bias voltage", v)
	}
}
