// Package landmark provides the body landmark frame model and its normalization.
package landmark

import (
	"errors"
	"fmt"
	"math"
)

// Body landmark indices. The order matches the 13 MediaPipe pose landmarks
// (0, 11-16, 23-28) the classifier was trained on.
const (
	Nose          = 0
	LeftShoulder  = 1
	RightShoulder = 2
	LeftElbow     = 3
	RightElbow    = 4
	LeftWrist     = 5
	RightWrist    = 6
	LeftHip       = 7
	RightHip      = 8
	LeftKnee      = 9
	RightKnee     = 10
	LeftAnkle     = 11
	RightAnkle    = 12
	NumJoints     = 13
)

// NumCoords is the number of scalars in a flattened frame.
const NumCoords = NumJoints * 3

// DefaultTorsoMultiplier scales the torso size into the reference distance.
const DefaultTorsoMultiplier = 2.5

// ErrInvalidFrameShape is returned when a frame does not carry exactly 13 joints.
var ErrInvalidFrameShape = errors.New("invalid frame shape")

// Point3D represents a 3D point in space with x, y, z coordinates.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Frame is one set of 13 body joints.
type Frame struct {
	Points [NumJoints]Point3D `json:"points"`
}

// FromCoords builds a Frame from a row-major [x0 y0 z0 x1 ...] slice.
func FromCoords(coords []float64) (Frame, error) {
	var f Frame
	if len(coords) != NumCoords {
		return f, fmt.Errorf("%w: expected %d coordinates, got %d", ErrInvalidFrameShape, NumCoords, len(coords))
	}
	for i := 0; i < NumJoints; i++ {
		f.Points[i] = Point3D{X: coords[i*3], Y: coords[i*3+1], Z: coords[i*3+2]}
	}
	return f, nil
}

// Coords flattens the frame back into row-major order.
func (f Frame) Coords() []float64 {
	out := make([]float64, 0, NumCoords)
	for _, p := range f.Points {
		out = append(out, p.X, p.Y, p.Z)
	}
	return out
}

// distance2D calculates the Euclidean distance between two points in the image plane.
func distance2D(a, b Point3D) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func midpoint(a, b Point3D) Point3D {
	return Point3D{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}

// Normalize maps the frame into the coordinate system the classifier was trained on.
//
// The hip midpoint becomes the origin, x/y/z are divided by a reference distance
// (torso size times multiplier, widened so no joint lies farther than 1 from the
// origin in the image plane) and x/y are rotated so the shoulder line is horizontal.
// z is scaled but neither centered nor rotated.
func (f Frame) Normalize(multiplier float64) Frame {
	center := midpoint(f.Points[LeftHip], f.Points[RightHip])
	shoulders := midpoint(f.Points[LeftShoulder], f.Points[RightShoulder])

	maxDist := distance2D(center, shoulders) * multiplier
	for _, p := range f.Points {
		if d := distance2D(center, p); d > maxDist {
			maxDist = d
		}
	}

	// Every joint sits on the hip center; translate only.
	if maxDist < 1e-12 {
		maxDist = 1
	}

	var out Frame
	for i, p := range f.Points {
		out.Points[i] = Point3D{
			X: (p.X - center.X) / maxDist,
			Y: (p.Y - center.Y) / maxDist,
			Z: p.Z / maxDist,
		}
	}

	ls, rs := out.Points[LeftShoulder], out.Points[RightShoulder]
	theta := math.Atan2(rs.Y-ls.Y, rs.X-ls.X)
	cosT, sinT := math.Cos(theta), math.Sin(theta)
	for i, p := range out.Points {
		out.Points[i].X = p.X*cosT + p.Y*sinT
		out.Points[i].Y = -p.X*sinT + p.Y*cosT
	}

	return out
}
