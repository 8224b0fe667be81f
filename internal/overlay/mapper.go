// Package overlay projects keypoints from estimator space into display space
// and decides how they are drawn as presenter feedback.
package overlay

import (
	"image/color"
	"strings"

	"github.com/ayusman/airdeck/internal/keypoint"
)

// SegmentMinScore is the score both ends of an arm segment must exceed.
const SegmentMinScore = 0.3

// Confidence colours.
var (
	ColorHigh   = color.RGBA{R: 0x22, G: 0xc5, B: 0x5e, A: 0xff} // green
	ColorMedium = color.RGBA{R: 0xea, G: 0xb3, B: 0x08, A: 0xff} // yellow
	ColorLow    = color.RGBA{R: 0xef, G: 0x44, B: 0x44, A: 0xff} // red
)

// armSegments are the joints connected on each side.
var armSegments = [][2]string{
	{keypoint.LeftWrist, keypoint.LeftElbow},
	{keypoint.LeftElbow, keypoint.LeftShoulder},
	{keypoint.RightWrist, keypoint.RightElbow},
	{keypoint.RightElbow, keypoint.RightShoulder},
}

// Point is a position in display space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Marker is a keypoint ready to draw.
type Marker struct {
	Name   string     `json:"name"`
	Point  Point      `json:"point"`
	Score  float64    `json:"score"`
	Radius int        `json:"radius"`
	Color  color.RGBA `json:"-"`
}

// Segment connects two markers.
type Segment struct {
	From Point `json:"from"`
	To   Point `json:"to"`
}

// Overlay is everything needed to render one frame of feedback.
type Overlay struct {
	Markers  []Marker  `json:"markers"`
	Segments []Segment `json:"segments"`
}

// Mapper converts estimator coordinates to display coordinates. The zero
// value is not useful; use NewMapper.
type Mapper struct {
	SourceWidth float64
	ScaleX      float64
	ScaleY      float64
	Mirror      bool
}

// NewMapper creates a mirrored Mapper from estimator and display resolutions.
func NewMapper(srcWidth, srcHeight, dstWidth, dstHeight int) Mapper {
	m := Mapper{
		SourceWidth: float64(srcWidth),
		ScaleX:      1,
		ScaleY:      1,
		Mirror:      true,
	}
	if srcWidth > 0 {
		m.ScaleX = float64(dstWidth) / float64(srcWidth)
	}
	if srcHeight > 0 {
		m.ScaleY = float64(dstHeight) / float64(srcHeight)
	}
	return m
}

// Project maps one estimator point: mirror horizontally, then scale.
func (m Mapper) Project(x, y float64) Point {
	if m.Mirror {
		x = m.SourceWidth - x
	}
	return Point{X: x * m.ScaleX, Y: y * m.ScaleY}
}

// Build projects the arm keypoints of frame and attaches drawing attributes.
func (m Mapper) Build(frame keypoint.Frame) Overlay {
	arms := frame.Filter(keypoint.ArmNames)

	out := Overlay{Markers: make([]Marker, 0, len(arms))}
	for _, kp := range arms {
		out.Markers = append(out.Markers, Marker{
			Name:   kp.Name,
			Point:  m.Project(kp.X, kp.Y),
			Score:  kp.Score,
			Radius: RadiusFor(kp.Name),
			Color:  ColorFor(kp.Score),
		})
	}

	for _, seg := range armSegments {
		a, okA := frame.Find(seg[0])
		b, okB := frame.Find(seg[1])
		if !okA || !okB || a.Score <= SegmentMinScore || b.Score <= SegmentMinScore {
			continue
		}
		out.Segments = append(out.Segments, Segment{
			From: m.Project(a.X, a.Y),
			To:   m.Project(b.X, b.Y),
		})
	}
	return out
}

// ColorFor returns the marker colour for a confidence score.
func ColorFor(score float64) color.RGBA {
	switch {
	case score > 0.5:
		return ColorHigh
	case score > 0.3:
		return ColorMedium
	default:
		return ColorLow
	}
}

// RadiusFor returns the marker radius for a joint name.
func RadiusFor(name string) int {
	switch {
	case strings.Contains(name, "wrist"):
		return 8
	case strings.Contains(name, "elbow"):
		return 6
	default:
		return 5
	}
}
