// Package filter provides composable detection filters for pruning the
// results of a batch run, by label, score, box size, or a polygon zone of
// interest.
package filter

import (
	"fmt"
	"image"
	"math"
	"strconv"
	"strings"

	clipper "github.com/ctessum/go.clipper"
	"github.com/swdee/go-detect"
)

// ByLabel returns a filter keeping only detections whose label is in the
// given set.  Matching is case insensitive
func ByLabel(labels ...string) detect.Filter {

	allow := make(map[string]bool, len(labels))

	for _, label := range labels {
		allow[strings.ToLower(label)] = true
	}

	return func(dets []detect.Detection) []detect.Detection {

		keep := make([]detect.Detection, 0, len(dets))

		for _, det := range dets {
			if allow[strings.ToLower(det.Label)] {
				keep = append(keep, det)
			}
		}

		return keep
	}
}

// MinScore returns a filter dropping detections scoring below conf
func MinScore(conf float32) detect.Filter {

	return func(dets []detect.Detection) []detect.Detection {

		keep := make([]detect.Detection, 0, len(dets))

		for _, det := range dets {
			if det.Confidence >= conf {
				keep = append(keep, det)
			}
		}

		return keep
	}
}

// MinArea returns a filter dropping detections whose bounding box covers
// fewer than px pixels
func MinArea(px int) detect.Filter {

	return func(dets []detect.Detection) []detect.Detection {

		keep := make([]detect.Detection, 0, len(dets))

		for _, det := range dets {
			if det.Box.Area() >= px {
				keep = append(keep, det)
			}
		}

		return keep
	}
}

// Chain returns a filter applying each of the given filters in order
func Chain(filters ...detect.Filter) detect.Filter {

	return func(dets []detect.Detection) []detect.Detection {

		for _, f := range filters {
			dets = f(dets)
		}

		return dets
	}
}

// Zone is a polygon region of interest in source pixel coordinates
type Zone struct {
	// Points are the polygon vertices in drawing order
	Points []image.Point
	// MinOverlap is the minimum fraction of the detection box area that
	// must fall inside the zone, in the range (0, 1].  Zero keeps any
	// detection overlapping the zone
	MinOverlap float64
}

// ParseZone parses a polygon given as space separated x,y vertex pairs,
// for example "0,0 640,0 640,480 0,480"
func ParseZone(s string) (Zone, error) {

	var points []image.Point

	for _, pair := range strings.Fields(s) {

		xy := strings.Split(pair, ",")

		if len(xy) != 2 {
			return Zone{}, fmt.Errorf("invalid zone vertex %q", pair)
		}

		x, err := strconv.Atoi(xy[0])

		if err != nil {
			return Zone{}, fmt.Errorf("invalid zone vertex %q: %w", pair, err)
		}

		y, err := strconv.Atoi(xy[1])

		if err != nil {
			return Zone{}, fmt.Errorf("invalid zone vertex %q: %w", pair, err)
		}

		points = append(points, image.Pt(x, y))
	}

	if len(points) < 3 {
		return Zone{}, fmt.Errorf("zone needs at least 3 vertices, got %d", len(points))
	}

	return Zone{Points: points}, nil
}

// InZone returns a filter keeping detections whose bounding box overlaps
// the zone polygon by at least the zone's minimum overlap fraction
func InZone(zone Zone) detect.Filter {

	zonePath := toPath(zone.Points)

	return func(dets []detect.Detection) []detect.Detection {

		if len(zone.Points) < 3 {
			return dets
		}

		keep := make([]detect.Detection, 0, len(dets))

		for _, det := range dets {
			frac := overlapFraction(det.Box, zonePath)

			if frac > 0 && frac >= zone.MinOverlap {
				keep = append(keep, det)
			}
		}

		return keep
	}
}

// toPath converts polygon vertices to a clipper path
func toPath(points []image.Point) clipper.Path {

	path := make(clipper.Path, 0, len(points))

	for _, pt := range points {
		path = append(path, &clipper.IntPoint{
			X: clipper.CInt(pt.X),
			Y: clipper.CInt(pt.Y),
		})
	}

	return path
}

// overlapFraction returns the fraction of the box area falling inside the
// zone polygon, computed as a polygon intersection
func overlapFraction(box detect.Box, zone clipper.Path) float64 {

	boxArea := float64(box.Area())

	if boxArea <= 0 {
		return 0
	}

	boxPath := clipper.Path{
		&clipper.IntPoint{X: clipper.CInt(box.XMin), Y: clipper.CInt(box.YMin)},
		&clipper.IntPoint{X: clipper.CInt(box.XMax), Y: clipper.CInt(box.YMin)},
		&clipper.IntPoint{X: clipper.CInt(box.XMax), Y: clipper.CInt(box.YMax)},
		&clipper.IntPoint{X: clipper.CInt(box.XMin), Y: clipper.CInt(box.YMax)},
	}

	c := clipper.NewClipper(clipper.IoNone)
	c.AddPath(boxPath, clipper.PtSubject, true)
	c.AddPath(zone, clipper.PtClip, true)

	solution, ok := c.Execute1(clipper.CtIntersection, clipper.PftEvenOdd,
		clipper.PftEvenOdd)

	if !ok {
		return 0
	}

	intersection := float64(0)

	for _, path := range solution {
		intersection += math.Abs(clipper.Area(path))
	}

	return intersection / boxArea
}
