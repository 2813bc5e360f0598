package capture

import (
	"fmt"
	"strconv"
	"strings"
)

// Point is a screen coordinate in pixels.
type Point struct {
	X, Y int
}

// Region is a screen rectangle. A nil *Region means the full primary display.
type Region struct {
	Top    int `json:"top"`
	Left   int `json:"left"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// FromCorners normalizes two opposite corners, in any order, into a Region.
// Width and height are floored to 1 so a degenerate selection is still capturable.
func FromCorners(a, b Point) Region {
	return Region{
		Top:    min(a.Y, b.Y),
		Left:   min(a.X, b.X),
		Width:  max(1, abs(b.X-a.X)),
		Height: max(1, abs(b.Y-a.Y)),
	}
}

func (r Region) String() string {
	return fmt.Sprintf("{top:%d,left:%d,width:%d,height:%d}", r.Top, r.Left, r.Width, r.Height)
}

func (r Region) Validate() error {
	if r.Width < 1 || r.Height < 1 {
		return fmt.Errorf("region %s: width and height must be >= 1", r)
	}
	if r.Top < 0 || r.Left < 0 {
		return fmt.Errorf("region %s: top and left must be >= 0", r)
	}
	return nil
}

// ParsePoint parses "x,y".
func ParsePoint(s string) (Point, error) {
	vals, err := parseInts(s, 2)
	if err != nil {
		return Point{}, fmt.Errorf("point %q: %w", s, err)
	}
	return Point{X: vals[0], Y: vals[1]}, nil
}

// ParseRegion parses "top,left,width,height".
func ParseRegion(s string) (Region, error) {
	vals, err := parseInts(s, 4)
	if err != nil {
		return Region{}, fmt.Errorf("region %q: %w", s, err)
	}
	r := Region{Top: vals[0], Left: vals[1], Width: vals[2], Height: vals[3]}
	return r, r.Validate()
}

func parseInts(s string, n int) ([]int, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != n {
		return nil, fmt.Errorf("want %d comma-separated integers", n)
	}
	out := make([]int, n)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
