// Package geoproc defines the contract for geometry-processing services
// that transform a captured point cloud (normal estimation, surface
// reconstruction, down-sampling and outlier removal) and the plumbing to
// run them safely against a live capture: retries, and a round trip that
// operates on a copy before optionally writing the result back.
//
// The operators themselves live outside this module.
package geoproc

import (
	"fmt"
)

// Operation names a geometry-processing operator.
type Operation string

const (
	OpNormalsEstimation         Operation = "normals-estimation"
	OpPoissonReconstruction     Operation = "poisson-reconstruction"
	OpVoxelDownSampling         Operation = "voxel-down-sampling"
	OpStatisticalOutlierRemoval Operation = "statistical-outlier-removal"
	OpRadiusOutlierRemoval      Operation = "radius-outlier-removal"
)

// Operations lists every known operation.
var Operations = []Operation{
	OpNormalsEstimation,
	OpPoissonReconstruction,
	OpVoxelDownSampling,
	OpStatisticalOutlierRemoval,
	OpRadiusOutlierRemoval,
}

// ParseOperation validates an operation name.
func ParseOperation(s string) (Operation, error) {
	for _, op := range Operations {
		if string(op) == s {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown geometry operation %q", s)
}

// Parameters holds the settings of every operator. Only the block
// matching the requested Operation is read.
type Parameters struct {
	Normals     NormalsParams     `json:"normals"`
	Poisson     PoissonParams     `json:"poisson"`
	Voxel       VoxelParams       `json:"voxel"`
	Statistical StatisticalParams `json:"statistical"`
	Radius      RadiusParams      `json:"radius"`
}

// NormalsParams configures normal estimation over a hybrid KD-tree search.
type NormalsParams struct {
	Radius       float64 `json:"radius"`        // search radius in meters
	MaxNeighbors int     `json:"max_neighbors"` // neighbours considered per point
}

// PoissonParams configures Poisson surface reconstruction.
type PoissonParams struct {
	Depth int     `json:"depth"` // octree depth
	Scale float64 `json:"scale"` // reconstruction cube scale relative to the bounding box
}

// VoxelParams configures voxel down-sampling.
type VoxelParams struct {
	VoxelSize float64 `json:"voxel_size"` // voxel edge in meters
}

// StatisticalParams configures statistical outlier removal.
type StatisticalParams struct {
	Neighbors int     `json:"neighbors"` // neighbours used for the mean distance
	StdRatio  float64 `json:"std_ratio"` // standard deviations before a point is an outlier
}

// RadiusParams configures radius outlier removal.
type RadiusParams struct {
	MinPoints int     `json:"min_points"` // neighbours required inside the radius
	Radius    float64 `json:"radius"`     // sphere radius in meters
}

// DefaultParameters returns the settings used when a caller supplies none.
func DefaultParameters() Parameters {
	return Parameters{
		Normals:     NormalsParams{Radius: 0.1, MaxNeighbors: 30},
		Poisson:     PoissonParams{Depth: 8, Scale: 1.1},
		Voxel:       VoxelParams{VoxelSize: 0.02},
		Statistical: StatisticalParams{Neighbors: 20, StdRatio: 2.0},
		Radius:      RadiusParams{MinPoints: 16, Radius: 0.05},
	}
}

// Validate checks the parameters that op will read.
func (p Parameters) Validate(op Operation) error {
	switch op {
	case OpNormalsEstimation:
		if p.Normals.Radius <= 0 || p.Normals.MaxNeighbors <= 0 {
			return fmt.Errorf("%s: radius and max_neighbors must be positive", op)
		}
	case OpPoissonReconstruction:
		if p.Poisson.Depth < 1 || p.Poisson.Depth > 16 {
			return fmt.Errorf("%s: depth must be between 1 and 16, got %d", op, p.Poisson.Depth)
		}
		if p.Poisson.Scale <= 0 {
			return fmt.Errorf("%s: scale must be positive", op)
		}
	case OpVoxelDownSampling:
		if p.Voxel.VoxelSize <= 0 {
			return fmt.Errorf("%s: voxel_size must be positive", op)
		}
	case OpStatisticalOutlierRemoval:
		if p.Statistical.Neighbors <= 0 || p.Statistical.StdRatio <= 0 {
			return fmt.Errorf("%s: neighbors and std_ratio must be positive", op)
		}
	case OpRadiusOutlierRemoval:
		if p.Radius.MinPoints <= 0 || p.Radius.Radius <= 0 {
			return fmt.Errorf("%s: min_points and radius must be positive", op)
		}
	default:
		return fmt.Errorf("unknown geometry operation %q", op)
	}
	return nil
}
