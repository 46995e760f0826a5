// Package ply reads and writes the ASCII Polygon File Format for Object3D
// point clouds and meshes.
package ply

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/depthscan/internal/geom"
	"github.com/banshee-data/depthscan/internal/pointcloud"
)

// ErrEncoding wraps any failure while serialising an object.
var ErrEncoding = errors.New("ply encoding failed")

// ColorByte converts a [0,1] channel to its stored byte:
// round(c*255) clamped to [0,255].
func ColorByte(c float32) uint8 {
	v := math.Round(float64(c) * 255)
	switch {
	case v <= 0 || math.IsNaN(v):
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v)
	}
}

// Encode writes obj as ASCII PLY. Property blocks are emitted in the order
// position, color, normal, confidence, each only when its array is
// non-empty; faces follow when triangles are present.
func Encode(w io.Writer, obj pointcloud.Object3D, comments []string) error {
	if err := obj.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	bw := bufio.NewWriter(w)
	if err := encode(bw, obj, comments); err != nil {
		return fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	return nil
}

func encode(bw *bufio.Writer, obj pointcloud.Object3D, comments []string) error {
	var header strings.Builder
	header.WriteString("ply\nformat ascii 1.0\n")
	for _, c := range comments {
		header.WriteString("comment " + strings.ReplaceAll(c, "\n", " ") + "\n")
	}
	if obj.HasVertices() {
		fmt.Fprintf(&header, "element vertex %d\n", len(obj.Vertices))
		header.WriteString("property float x\nproperty float y\nproperty float z\n")
		if obj.HasColors() {
			header.WriteString("property uchar red\nproperty uchar green\nproperty uchar blue\n")
		}
		if obj.HasNormals() {
			header.WriteString("property float nx\nproperty float ny\nproperty float nz\n")
		}
		if obj.HasConfidence() {
			header.WriteString("property uchar confidence\n")
		}
	}
	if obj.HasTriangles() {
		fmt.Fprintf(&header, "element face %d\n", len(obj.Triangles))
		header.WriteString("property list uchar int vertex_index\n")
	}
	header.WriteString("end_header\n")
	if _, err := bw.WriteString(header.String()); err != nil {
		return err
	}

	line := make([]byte, 0, 128)
	for i, v := range obj.Vertices {
		line = line[:0]
		line = appendVec(line, v)
		if obj.HasColors() {
			c := obj.Colors[i]
			line = strconv.AppendUint(append(line, ' '), uint64(ColorByte(c[0])), 10)
			line = strconv.AppendUint(append(line, ' '), uint64(ColorByte(c[1])), 10)
			line = strconv.AppendUint(append(line, ' '), uint64(ColorByte(c[2])), 10)
		}
		if obj.HasNormals() {
			line = appendVec(append(line, ' '), obj.Normals[i])
		}
		if obj.HasConfidence() {
			line = strconv.AppendUint(append(line, ' '), uint64(obj.Confidence[i]), 10)
		}
		line = append(line, '\n')
		if _, err := bw.Write(line); err != nil {
			return err
		}
	}
	for _, t := range obj.Triangles {
		if _, err := fmt.Fprintf(bw, "3 %d %d %d\n", t[0], t[1], t[2]); err != nil {
			return err
		}
	}
	return nil
}

func appendVec(b []byte, v geom.Vec3) []byte {
	b = strconv.AppendFloat(b, float64(v[0]), 'g', -1, 32)
	b = append(b, ' ')
	b = strconv.AppendFloat(b, float64(v[1]), 'g', -1, 32)
	b = append(b, ' ')
	return strconv.AppendFloat(b, float64(v[2]), 'g', -1, 32)
}
