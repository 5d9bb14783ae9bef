// Package feature derives the classifier input vector from a normalized landmark frame.
package feature

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/ayusman/asana/internal/landmark"
)

// Mode selects which coordinates take part in an angle computation.
type Mode int

const (
	// Mode2D uses x and y only.
	Mode2D Mode = 2
	// Mode3D uses x, y and z.
	Mode3D Mode = 3
)

// Vector sizes. The layout is part of the classifier contract.
const (
	NumAngles = 12
	Length    = landmark.NumCoords + 2*NumAngles
)

const normEpsilon = 1e-8

// Connection is a hub joint and the joints it links to.
type Connection struct {
	Hub       int
	Neighbors []int
}

// Connections is the joint graph used for angles. Iteration order defines the
// position of every angle in the vector.
var Connections = []Connection{
	{Hub: landmark.LeftShoulder, Neighbors: []int{landmark.Nose, landmark.LeftElbow, landmark.LeftHip}},
	{Hub: landmark.RightShoulder, Neighbors: []int{landmark.Nose, landmark.RightElbow, landmark.RightHip}},
	{Hub: landmark.LeftElbow, Neighbors: []int{landmark.LeftShoulder, landmark.LeftWrist}},
	{Hub: landmark.RightElbow, Neighbors: []int{landmark.RightShoulder, landmark.RightWrist}},
	{Hub: landmark.LeftHip, Neighbors: []int{landmark.LeftShoulder, landmark.LeftKnee}},
	{Hub: landmark.RightHip, Neighbors: []int{landmark.RightShoulder, landmark.RightKnee}},
	{Hub: landmark.LeftKnee, Neighbors: []int{landmark.LeftHip, landmark.LeftAnkle}},
	{Hub: landmark.RightKnee, Neighbors: []int{landmark.RightHip, landmark.RightAnkle}},
}

func vec(p landmark.Point3D, mode Mode) []float64 {
	if mode == Mode2D {
		return []float64{p.X, p.Y}
	}
	return []float64{p.X, p.Y, p.Z}
}

// angle returns the angle at hub between the rays towards a and b.
func angle(hub, a, b []float64) float64 {
	v1 := floats.SubTo(make([]float64, len(a)), a, hub)
	v2 := floats.SubTo(make([]float64, len(b)), b, hub)

	floats.Scale(1/(floats.Norm(v1, 2)+normEpsilon), v1)
	floats.Scale(1/(floats.Norm(v2, 2)+normEpsilon), v2)

	cosine := math.Max(-1, math.Min(1, floats.Dot(v1, v2)))
	return math.Acos(cosine)
}

// Angles returns the 12 joint angles of f, in radians, for the given mode.
func Angles(f landmark.Frame, mode Mode) []float64 {
	out := make([]float64, 0, NumAngles)
	for _, c := range Connections {
		hub := vec(f.Points[c.Hub], mode)
		for i := 0; i < len(c.Neighbors); i++ {
			for j := i + 1; j < len(c.Neighbors); j++ {
				a := vec(f.Points[c.Neighbors[i]], mode)
				b := vec(f.Points[c.Neighbors[j]], mode)
				out = append(out, angle(hub, a, b))
			}
		}
	}
	return out
}

// Assemble builds the classifier input: normalized coordinates, then 2D angles, then 3D angles.
func Assemble(normalized landmark.Frame) []float64 {
	out := make([]float64, 0, Length)
	out = append(out, normalized.Coords()...)
	out = append(out, Angles(normalized, Mode2D)...)
	out = append(out, Angles(normalized, Mode3D)...)
	return out
}

// Extract normalizes a raw frame and assembles its feature vector.
func Extract(raw landmark.Frame, multiplier float64) []float64 {
	return Assemble(raw.Normalize(multiplier))
}
