// Package avatar implements the avatar animation state machine.
// Discrete events (music, speech, emotions) flip independent mode flags,
// and the renderer samples a continuous pose from those flags every frame.
package avatar

import "math"

// Pose is the instantaneous animation output fed to the puppet engine:
// head tilt, body sway and mouth openness.
type Pose struct {
	AngleZ    float64 `json:"angle_z"`
	BodyX     float64 `json:"body_x"`
	MouthOpen float64 `json:"mouth_open"`
}

// Flags is a snapshot of the avatar's discrete mode flags.
// Flags are independent: dancing and speaking may both be true.
type Flags struct {
	Dancing    bool `json:"dancing"`
	HappyDance bool `json:"happy_dance"`
	Speaking   bool `json:"speaking"`
}

// poseFor computes the pose for a flag set at elapsed time t (seconds).
// AngleZ and BodyX contributions are additive across flags. MouthOpen
// max-combines between the dance modes, but an active speaking flag
// overrides it entirely: lip sync wins over dance mouthing.
func poseFor(f Flags, t float64) Pose {
	var p Pose

	if f.Dancing {
		p.AngleZ += math.Sin(t*3.5) * 12
		p.BodyX += math.Cos(t*1.5) * 6
		p.MouthOpen = math.Max(p.MouthOpen, math.Abs(math.Sin(t*4.0))*0.8)
	}

	if f.HappyDance {
		p.AngleZ += math.Sin(t*8.0) * 15
		p.BodyX += math.Cos(t*4.0) * 10
		p.MouthOpen = math.Max(p.MouthOpen, 0.5+math.Abs(math.Sin(t*10.0))*0.5)
	}

	if f.Speaking {
		p.MouthOpen = math.Abs(math.Sin(t*6.0)) * 0.9
		p.AngleZ += math.Sin(t*2.0) * 4
	}

	return p
}
