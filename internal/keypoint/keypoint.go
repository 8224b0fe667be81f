// Package keypoint defines the body keypoint frame exchanged between the pose
// estimator and the gesture classifier.
package keypoint

import "time"

// Body keypoint names following the MoveNet/COCO convention.
const (
	Nose          = "nose"
	LeftEye       = "left_eye"
	RightEye      = "right_eye"
	LeftEar       = "left_ear"
	RightEar      = "right_ear"
	LeftShoulder  = "left_shoulder"
	RightShoulder = "right_shoulder"
	LeftElbow     = "left_elbow"
	RightElbow    = "right_elbow"
	LeftWrist     = "left_wrist"
	RightWrist    = "right_wrist"
	LeftHip       = "left_hip"
	RightHip      = "right_hip"
	LeftKnee      = "left_knee"
	RightKnee     = "right_knee"
	LeftAnkle     = "left_ankle"
	RightAnkle    = "right_ankle"
)

// Names lists the 17 keypoints in MoveNet output order.
var Names = []string{
	Nose, LeftEye, RightEye, LeftEar, RightEar,
	LeftShoulder, RightShoulder, LeftElbow, RightElbow,
	LeftWrist, RightWrist, LeftHip, RightHip,
	LeftKnee, RightKnee, LeftAnkle, RightAnkle,
}

// ArmNames are the keypoints the gesture pipeline and the overlay care about.
var ArmNames = []string{
	LeftWrist, RightWrist,
	LeftElbow, RightElbow,
	LeftShoulder, RightShoulder,
}

// Keypoint is a named anatomical point in estimator pixel space.
// A Score of zero or less means the point was not observed this frame.
type Keypoint struct {
	Name  string  `json:"name"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Score float64 `json:"score,omitempty"`
}

// Observed reports whether the estimator saw this point at all.
func (k Keypoint) Observed() bool {
	return k.Score > 0
}

// Frame is one estimation cycle's keypoints. It is treated as immutable once
// handed to the classifier.
type Frame struct {
	Keypoints []Keypoint `json:"keypoints"`
	Width     int        `json:"width"`
	Height    int        `json:"height"`
	Timestamp time.Time  `json:"timestamp"`
}

// Find returns the keypoint with the given name. The second result is false
// when the name is not present in the frame.
func (f Frame) Find(name string) (Keypoint, bool) {
	for _, kp := range f.Keypoints {
		if kp.Name == name {
			return kp, true
		}
	}
	return Keypoint{}, false
}

// Filter returns the keypoints whose names are in names, preserving frame order.
func (f Frame) Filter(names []string) []Keypoint {
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}

	out := make([]Keypoint, 0, len(names))
	for _, kp := range f.Keypoints {
		if _, ok := want[kp.Name]; ok {
			out = append(out, kp)
		}
	}
	return out
}

// Empty reports whether the frame carries no keypoints.
func (f Frame) Empty() bool {
	return len(f.Keypoints) == 0
}
