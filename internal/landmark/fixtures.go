package landmark

// Preset frames in raw image coordinates (y grows downwards). They are used by
// tests and by the in-process classifier fixtures.

// StandingLandmarks returns a neutral standing pose with arms relaxed.
func StandingLandmarks() Frame {
	var f Frame
	f.Points[Nose] = Point3D{X: 0.50, Y: 0.15, Z: -0.10}
	f.Points[LeftShoulder] = Point3D{X: 0.44, Y: 0.28, Z: -0.02}
	f.Points[RightShoulder] = Point3D{X: 0.56, Y: 0.28, Z: -0.02}
	f.Points[LeftElbow] = Point3D{X: 0.40, Y: 0.40, Z: 0.00}
	f.Points[RightElbow] = Point3D{X: 0.60, Y: 0.40, Z: 0.00}
	f.Points[LeftWrist] = Point3D{X: 0.38, Y: 0.50, Z: 0.02}
	f.Points[RightWrist] = Point3D{X: 0.62, Y: 0.50, Z: 0.02}
	f.Points[LeftHip] = Point3D{X: 0.46, Y: 0.55, Z: 0.00}
	f.Points[RightHip] = Point3D{X: 0.54, Y: 0.55, Z: 0.00}
	f.Points[LeftKnee] = Point3D{X: 0.46, Y: 0.72, Z: 0.01}
	f.Points[RightKnee] = Point3D{X: 0.54, Y: 0.72, Z: 0.01}
	f.Points[LeftAnkle] = Point3D{X: 0.46, Y: 0.90, Z: 0.03}
	f.Points[RightAnkle] = Point3D{X: 0.54, Y: 0.90, Z: 0.03}
	return f
}

// TreeLandmarks returns a tree pose: palms joined overhead, right foot on the left thigh.
func TreeLandmarks() Frame {
	var f Frame
	f.Points[Nose] = Point3D{X: 0.50, Y: 0.22, Z: -0.10}
	f.Points[LeftShoulder] = Point3D{X: 0.44, Y: 0.32, Z: -0.02}
	f.Points[RightShoulder] = Point3D{X: 0.56, Y: 0.32, Z: -0.02}
	f.Points[LeftElbow] = Point3D{X: 0.42, Y: 0.18, Z: -0.03}
	f.Points[RightElbow] = Point3D{X: 0.58, Y: 0.18, Z: -0.03}
	f.Points[LeftWrist] = Point3D{X: 0.49, Y: 0.06, Z: -0.04}
	f.Points[RightWrist] = Point3D{X: 0.51, Y: 0.06, Z: -0.04}
	f.Points[LeftHip] = Point3D{X: 0.46, Y: 0.58, Z: 0.00}
	f.Points[RightHip] = Point3D{X: 0.54, Y: 0.58, Z: 0.00}
	f.Points[LeftKnee] = Point3D{X: 0.46, Y: 0.74, Z: 0.01}
	f.Points[RightKnee] = Point3D{X: 0.65, Y: 0.68, Z: 0.05}
	f.Points[LeftAnkle] = Point3D{X: 0.46, Y: 0.92, Z: 0.03}
	f.Points[RightAnkle] = Point3D{X: 0.50, Y: 0.72, Z: 0.02}
	return f
}

// ChairLandmarks returns a chair pose: knees bent forward, arms raised in front.
func ChairLandmarks() Frame {
	var f Frame
	f.Points[Nose] = Point3D{X: 0.50, Y: 0.24, Z: -0.18}
	f.Points[LeftShoulder] = Point3D{X: 0.44, Y: 0.36, Z: -0.08}
	f.Points[RightShoulder] = Point3D{X: 0.56, Y: 0.36, Z: -0.08}
	f.Points[LeftElbow] = Point3D{X: 0.43, Y: 0.23, Z: -0.20}
	f.Points[RightElbow] = Point3D{X: 0.57, Y: 0.23, Z: -0.20}
	f.Points[LeftWrist] = Point3D{X: 0.44, Y: 0.11, Z: -0.28}
	f.Points[RightWrist] = Point3D{X: 0.56, Y: 0.11, Z: -0.28}
	f.Points[LeftHip] = Point3D{X: 0.46, Y: 0.62, Z: 0.08}
	f.Points[RightHip] = Point3D{X: 0.54, Y: 0.62, Z: 0.08}
	f.Points[LeftKnee] = Point3D{X: 0.45, Y: 0.72, Z: -0.20}
	f.Points[RightKnee] = Point3D{X: 0.55, Y: 0.72, Z: -0.20}
	f.Points[LeftAnkle] = Point3D{X: 0.46, Y: 0.92, Z: 0.02}
	f.Points[RightAnkle] = Point3D{X: 0.54, Y: 0.92, Z: 0.02}
	return f
}

// WarriorLandmarks returns a warrior II pose: wide stance, arms stretched sideways.
func WarriorLandmarks() Frame {
	var f Frame
	f.Points[Nose] = Point3D{X: 0.50, Y: 0.20, Z: -0.06}
	f.Points[LeftShoulder] = Point3D{X: 0.44, Y: 0.32, Z: -0.01}
	f.Points[RightShoulder] = Point3D{X: 0.56, Y: 0.32, Z: -0.01}
	f.Points[LeftElbow] = Point3D{X: 0.34, Y: 0.32, Z: 0.00}
	f.Points[RightElbow] = Point3D{X: 0.66, Y: 0.32, Z: 0.00}
	f.Points[LeftWrist] = Point3D{X: 0.24, Y: 0.32, Z: 0.01}
	f.Points[RightWrist] = Point3D{X: 0.76, Y: 0.32, Z: 0.01}
	f.Points[LeftHip] = Point3D{X: 0.46, Y: 0.56, Z: 0.00}
	f.Points[RightHip] = Point3D{X: 0.54, Y: 0.56, Z: 0.00}
	f.Points[LeftKnee] = Point3D{X: 0.36, Y: 0.67, Z: -0.04}
	f.Points[RightKnee] = Point3D{X: 0.66, Y: 0.62, Z: 0.02}
	f.Points[LeftAnkle] = Point3D{X: 0.30, Y: 0.90, Z: 0.02}
	f.Points[RightAnkle] = Point3D{X: 0.74, Y: 0.90, Z: 0.03}
	return f
}
