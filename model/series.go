package model

import "slices"

// SeriesWindow is the trailing span, in seconds, kept in a channel's series.
const SeriesWindow float32 = 10

// Series holds parallel plotting samples. All slices have the same length
// and Times is non-decreasing.
type Series struct {
	Times     []float32 `json:"times"`
	SetPoints []float32 `json:"set_points"`
	Inputs    []float32 `json:"inputs"`
	Outputs   []float32 `json:"outputs"`
}

// Len returns the number of samples.
func (s Series) Len() int {
	return len(s.Times)
}

// Span returns the time between the oldest and newest sample.
func (s Series) Span() float32 {
	if len(s.Times) == 0 {
		return 0
	}
	return s.Times[len(s.Times)-1] - s.Times[0]
}

func (s Series) clone() Series {
	return Series{
		Times:     slices.Clone(s.Times),
		SetPoints: slices.Clone(s.SetPoints),
		Inputs:    slices.Clone(s.Inputs),
		Outputs:   slices.Clone(s.Outputs),
	}
}

func (s *Series) reset() {
	s.Times = s.Times[:0]
	s.SetPoints = s.SetPoints[:0]
	s.Inputs = s.Inputs[:0]
	s.Outputs = s.Outputs[:0]
}

// add appends a sample and prunes everything older than SeriesWindow
// relative to it. A sample earlier than the newest one means the time
// origin moved (reconnect or re-pinned clock), so the series restarts.
func (s *Series) add(t, setPoint, input, output float32) {
	if n := len(s.Times); n > 0 && t < s.Times[n-1] {
		s.reset()
	}

	s.Times = append(s.Times, t)
	s.SetPoints = append(s.SetPoints, setPoint)
	s.Inputs = append(s.Inputs, input)
	s.Outputs = append(s.Outputs, output)

	drop := 0
	for drop < len(s.Times) && t-s.Times[drop] > SeriesWindow {
		drop++
	}
	if drop == 0 {
		return
	}
	s.Times = slices.Delete(s.Times, 0, drop)
	s.SetPoints = slices.Delete(s.SetPoints, 0, drop)
	s.Inputs = slices.Delete(s.Inputs, 0, drop)
	s.Outputs = slices.Delete(s.Outputs, 0, drop)
}
