// Package keypointtest provides keypoint frames for tests across packages.
package keypointtest

import (
	"time"

	"github.com/ayusman/airdeck/internal/keypoint"
)

// Estimator resolution used by the fixtures.
const (
	Width  = 640
	Height = 480
)

// Wrists builds a frame containing both wrists at the given x positions and scores.
func Wrists(leftX, leftScore, rightX, rightScore float64) keypoint.Frame {
	return keypoint.Frame{
		Keypoints: []keypoint.Keypoint{
			{Name: keypoint.LeftWrist, X: leftX, Y: 300, Score: leftScore},
			{Name: keypoint.RightWrist, X: rightX, Y: 300, Score: rightScore},
		},
		Width:     Width,
		Height:    Height,
		Timestamp: time.Now(),
	}
}

// RightWrist builds a frame where only the right wrist is confidently observed.
// The left wrist is present with zero score so the frame is still classifiable.
func RightWrist(x, score float64) keypoint.Frame {
	return Wrists(0, 0, x, score)
}

// LeftWrist builds a frame where only the left wrist is confidently observed.
func LeftWrist(x, score float64) keypoint.Frame {
	return Wrists(x, score, 0, 0)
}

// Only builds a frame holding just the given keypoints.
func Only(kps ...keypoint.Keypoint) keypoint.Frame {
	return keypoint.Frame{
		Keypoints: kps,
		Width:     Width,
		Height:    Height,
		Timestamp: time.Now(),
	}
}

// StandingPose returns a full 17-point pose with arms lowered and every point
// confidently observed.
func StandingPose() keypoint.Frame {
	points := map[string][2]float64{
		keypoint.Nose:          {320, 100},
		keypoint.LeftEye:       {335, 90},
		keypoint.RightEye:      {305, 90},
		keypoint.LeftEar:       {350, 95},
		keypoint.RightEar:      {290, 95},
		keypoint.LeftShoulder:  {380, 170},
		keypoint.RightShoulder: {260, 170},
		keypoint.LeftElbow:     {400, 250},
		keypoint.RightElbow:    {240, 250},
		keypoint.LeftWrist:     {410, 320},
		keypoint.RightWrist:    {230, 320},
		keypoint.LeftHip:       {360, 330},
		keypoint.RightHip:      {280, 330},
		keypoint.LeftKnee:      {360, 410},
		keypoint.RightKnee:     {280, 410},
		keypoint.LeftAnkle:     {360, 470},
		keypoint.RightAnkle:    {280, 470},
	}

	frame := keypoint.Frame{Width: Width, Height: Height, Timestamp: time.Now()}
	for _, name := range keypoint.Names {
		p := points[name]
		frame.Keypoints = append(frame.Keypoints, keypoint.Keypoint{Name: name, X: p[0], Y: p[1], Score: 0.9})
	}
	return frame
}

// SwipeRightSequence returns frames whose right wrist travels rightwards in
// steps larger than the default threshold.
func SwipeRightSequence() []keypoint.Frame {
	return []keypoint.Frame{
		RightWrist(300, 0.9),
		RightWrist(360, 0.9),
		RightWrist(420, 0.9),
	}
}

// SwipeLeftSequence mirrors SwipeRightSequence for the left wrist.
func SwipeLeftSequence() []keypoint.Frame {
	return []keypoint.Frame{
		LeftWrist(400, 0.9),
		LeftWrist(340, 0.9),
		LeftWrist(280, 0.9),
	}
}
