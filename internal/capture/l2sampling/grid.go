package l2sampling

import (
	"fmt"
	"math"

	"github.com/banshee-data/depthscan/internal/geom"
)

// DefaultPointsPerFrame is the number of candidate samples per frame.
const DefaultPointsPerFrame = 2000

// BuildGrid returns exactly n normalized coordinates in [0,1)² spread
// evenly over a width x height frame. Points are ordered row-major and
// odd rows are shifted right by a quarter cell so neighbouring rows do
// not line up. The result depends only on the inputs.
func BuildGrid(n, width, height int) ([]geom.Vec2, error) {
	if n <= 0 {
		return nil, fmt.Errorf("grid: point count must be positive, got %d", n)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("grid: invalid frame size %dx%d", width, height)
	}

	// Cells are as close to square as the aspect ratio allows.
	cols := int(math.Round(math.Sqrt(float64(n) * float64(width) / float64(height))))
	cols = max(1, min(cols, n))
	rows := (n + cols - 1) / cols

	grid := make([]geom.Vec2, 0, n)
	for r := 0; r < rows && len(grid) < n; r++ {
		shift := 0.0
		if r%2 == 1 {
			shift = 0.25
		}
		y := (float64(r) + 0.5) / float64(rows)
		for c := 0; c < cols && len(grid) < n; c++ {
			x := (float64(c) + 0.5 + shift) / float64(cols)
			grid = append(grid, geom.Vec2{float32(x), float32(y)})
		}
	}
	return grid, nil
}
