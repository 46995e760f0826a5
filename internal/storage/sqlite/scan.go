package sqlite

import (
	"fmt"
	"time"

	"github.com/banshee-data/depthscan/internal/geom"
	"github.com/banshee-data/depthscan/internal/pointcloud"
)

// Scan is a saved point cloud with its metadata. Points and Colors hold
// little-endian float32 x,y,z triplets, 12 bytes per vector.
type Scan struct {
	ScanID              string     `json:"scan_id"`
	Name                string     `json:"name"`
	Description         string     `json:"description,omitempty"`
	Created             time.Time  `json:"created"`
	PointCount          int        `json:"point_count"`
	Points              []byte     `json:"-"`
	Colors              []byte     `json:"-"`
	PointConfidence     *uint8     `json:"point_confidence,omitempty"` // threshold the scan was captured with
	Thumbnail           []byte     `json:"-"`                          // PNG
	Location            string     `json:"location,omitempty"`
	LocationCoordinates string     `json:"location_coordinates,omitempty"`
	InitialOrientation  *float64   `json:"initial_orientation,omitempty"` // degrees
	CameraOrientation   *geom.Vec3 `json:"camera_orientation,omitempty"`
}

// NewScan builds a scan record from a captured object. Colors are stored
// only when the object has them; a missing color array is saved as black.
func NewScan(name string, obj pointcloud.Object3D) (*Scan, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}
	colors := obj.Colors
	if !obj.HasColors() {
		colors = make([]geom.Vec3, len(obj.Vertices))
	}
	return &Scan{
		Name:       name,
		PointCount: len(obj.Vertices),
		Points:     pointcloud.EncodeVec3Blob(obj.Vertices),
		Colors:     pointcloud.EncodeVec3Blob(colors),
	}, nil
}

// PointCloud decodes the stored blobs. Every vertex gets the scan's
// confidence threshold, as per-vertex confidence is not stored.
func (s *Scan) PointCloud() (pointcloud.Object3D, error) {
	vertices, err := pointcloud.DecodeVec3Blob(s.Points)
	if err != nil {
		return pointcloud.Object3D{}, fmt.Errorf("decode points of scan %s: %w", s.ScanID, err)
	}
	colors, err := pointcloud.DecodeVec3Blob(s.Colors)
	if err != nil {
		return pointcloud.Object3D{}, fmt.Errorf("decode colors of scan %s: %w", s.ScanID, err)
	}
	if len(colors) != len(vertices) {
		return pointcloud.Object3D{}, fmt.Errorf("scan %s has %d colors for %d points", s.ScanID, len(colors), len(vertices))
	}
	obj := pointcloud.Object3D{Vertices: vertices, Colors: colors}
	if s.PointConfidence != nil {
		obj.Confidence = make([]uint8, len(vertices))
		for i := range obj.Confidence {
			obj.Confidence[i] = *s.PointConfidence
		}
	}
	return obj, nil
}
