package landmark

import (
	"errors"
	"math"
	"testing"
)

const epsilon = 1e-9

func TestFromCoords(t *testing.T) {
	t.Run("accepts exactly 39 values", func(t *testing.T) {
		coords := make([]float64, NumCoords)
		for i := range coords {
			coords[i] = float64(i)
		}

		f, err := FromCoords(coords)
		if err != nil {
			t.Fatalf("FromCoords() error = %v", err)
		}

		if f.Points[RightAnkle].Z != 38 {
			t.Errorf("expected last z to be 38, got %f", f.Points[RightAnkle].Z)
		}
		if f.Points[LeftShoulder].X != 3 {
			t.Errorf("expected left shoulder x to be 3, got %f", f.Points[LeftShoulder].X)
		}

		back := f.Coords()
		for i := range coords {
			if back[i] != coords[i] {
				t.Fatalf("Coords()[%d] = %f, want %f", i, back[i], coords[i])
			}
		}
	})

	for _, n := range []int{0, 38, 40, 63} {
		_, err := FromCoords(make([]float64, n))
		if !errors.Is(err, ErrInvalidFrameShape) {
			t.Errorf("FromCoords(len=%d) error = %v, want ErrInvalidFrameShape", n, err)
		}
	}
}

func TestFrame_Normalize(t *testing.T) {
	t.Run("hip midpoint at origin", func(t *testing.T) {
		n := WarriorLandmarks().Normalize(DefaultTorsoMultiplier)

		cx := (n.Points[LeftHip].X + n.Points[RightHip].X) / 2
		cy := (n.Points[LeftHip].Y + n.Points[RightHip].Y) / 2
		if math.Abs(cx) > epsilon || math.Abs(cy) > epsilon {
			t.Errorf("expected hip midpoint at origin, got (%f, %f)", cx, cy)
		}
	})

	t.Run("shoulder line is horizontal", func(t *testing.T) {
		tilted := TreeLandmarks()
		// Tilt the right shoulder so the rotation has work to do.
		tilted.Points[RightShoulder].Y += 0.05

		n := tilted.Normalize(DefaultTorsoMultiplier)

		dy := n.Points[RightShoulder].Y - n.Points[LeftShoulder].Y
		if math.Abs(dy) > epsilon {
			t.Errorf("expected shoulder y difference 0, got %e", dy)
		}
		if n.Points[RightShoulder].X <= n.Points[LeftShoulder].X {
			t.Error("expected right shoulder to stay on the positive x side")
		}
	})

	t.Run("no joint farther than one in the image plane", func(t *testing.T) {
		for name, f := range map[string]Frame{
			"standing": StandingLandmarks(),
			"tree":     TreeLandmarks(),
			"chair":    ChairLandmarks(),
			"warrior":  WarriorLandmarks(),
		} {
			n := f.Normalize(DefaultTorsoMultiplier)
			for i, p := range n.Points {
				if d := math.Hypot(p.X, p.Y); d > 1+epsilon {
					t.Errorf("%s: joint %d at distance %f", name, i, d)
				}
			}
		}
	})

	t.Run("long limbs widen the reference distance", func(t *testing.T) {
		f := WarriorLandmarks()
		// A very small multiplier forces the farthest joint to define the scale.
		n := f.Normalize(0.1)

		var farthest float64
		for _, p := range n.Points {
			farthest = math.Max(farthest, math.Hypot(p.X, p.Y))
		}
		if math.Abs(farthest-1) > epsilon {
			t.Errorf("expected farthest joint at distance 1, got %f", farthest)
		}
	})

	t.Run("invariant under translation and uniform scaling", func(t *testing.T) {
		base := ChairLandmarks()
		moved := base
		for i, p := range moved.Points {
			moved.Points[i] = Point3D{X: p.X*3.5 + 0.2, Y: p.Y*3.5 - 0.4, Z: p.Z * 3.5}
		}

		a := base.Normalize(DefaultTorsoMultiplier)
		b := moved.Normalize(DefaultTorsoMultiplier)

		for i := range a.Points {
			if math.Abs(a.Points[i].X-b.Points[i].X) > 1e-9 ||
				math.Abs(a.Points[i].Y-b.Points[i].Y) > 1e-9 ||
				math.Abs(a.Points[i].Z-b.Points[i].Z) > 1e-9 {
				t.Fatalf("joint %d differs: %+v vs %+v", i, a.Points[i], b.Points[i])
			}
		}
	})

	t.Run("z is scaled but not centered", func(t *testing.T) {
		f := StandingLandmarks()
		for i := range f.Points {
			f.Points[i].Z = 0.5
		}

		n := f.Normalize(DefaultTorsoMultiplier)
		if n.Points[Nose].Z <= 0 {
			t.Errorf("expected z to keep its sign without centering, got %f", n.Points[Nose].Z)
		}
		if math.Abs(n.Points[Nose].Z-n.Points[RightAnkle].Z) > epsilon {
			t.Error("expected equal raw z values to stay equal")
		}
	})

	t.Run("is pure", func(t *testing.T) {
		f := TreeLandmarks()
		before := f
		first := f.Normalize(DefaultTorsoMultiplier)
		second := f.Normalize(DefaultTorsoMultiplier)

		if f != before {
			t.Error("Normalize modified its receiver")
		}
		if first != second {
			t.Error("Normalize is not deterministic")
		}
	})

	t.Run("degenerate frame is translated only", func(t *testing.T) {
		var f Frame
		for i := range f.Points {
			f.Points[i] = Point3D{X: 0.3, Y: 0.3, Z: 0.1}
		}

		n := f.Normalize(DefaultTorsoMultiplier)
		for i, p := range n.Points {
			if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsNaN(p.Z) {
				t.Fatalf("joint %d is NaN", i)
			}
			if math.Abs(p.X) > epsilon || math.Abs(p.Y) > epsilon {
				t.Errorf("joint %d expected at origin, got (%f, %f)", i, p.X, p.Y)
			}
		}
	})
}
