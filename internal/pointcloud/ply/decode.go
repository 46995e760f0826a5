package ply

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/depthscan/internal/geom"
	"github.com/banshee-data/depthscan/internal/pointcloud"
)

// maxPrealloc bounds the capacity reserved from a header count, so a
// bogus count cannot allocate before any body line is read.
const maxPrealloc = 1 << 16

type element struct {
	name  string
	count int
	props []string
	list  bool
}

// Decode parses an ASCII PLY stream produced by Encode, or any ASCII file
// using the same property names. It returns the object and the header
// comments. Colors are returned as byte/255.
func Decode(r io.Reader) (pointcloud.Object3D, []string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		obj      pointcloud.Object3D
		comments []string
		elements []*element
		lineNo   int
	)
	next := func() (string, bool) {
		for sc.Scan() {
			lineNo++
			if s := strings.TrimSpace(sc.Text()); s != "" {
				return s, true
			}
		}
		return "", false
	}

	if l, ok := next(); !ok || l != "ply" {
		return obj, nil, fmt.Errorf("ply: missing magic line")
	}
	for {
		l, ok := next()
		if !ok {
			return obj, nil, fmt.Errorf("ply: header not terminated")
		}
		if l == "end_header" {
			break
		}
		key, rest, _ := strings.Cut(l, " ")
		switch key {
		case "format":
			if !strings.HasPrefix(rest, "ascii") {
				return obj, nil, fmt.Errorf("ply: unsupported format %q", rest)
			}
		case "comment":
			comments = append(comments, rest)
		case "element":
			f := strings.Fields(rest)
			if len(f) != 2 {
				return obj, nil, fmt.Errorf("ply: line %d: malformed element", lineNo)
			}
			n, err := strconv.Atoi(f[1])
			if err != nil || n < 0 {
				return obj, nil, fmt.Errorf("ply: line %d: bad element count %q", lineNo, f[1])
			}
			elements = append(elements, &element{name: f[0], count: n})
		case "property":
			if len(elements) == 0 {
				return obj, nil, fmt.Errorf("ply: line %d: property before element", lineNo)
			}
			f := strings.Fields(rest)
			el := elements[len(elements)-1]
			if len(f) > 0 && f[0] == "list" {
				el.list = true
				continue
			}
			if len(f) != 2 {
				return obj, nil, fmt.Errorf("ply: line %d: malformed property", lineNo)
			}
			el.props = append(el.props, f[1])
		default:
			return obj, nil, fmt.Errorf("ply: line %d: unknown header keyword %q", lineNo, key)
		}
	}

	for _, el := range elements {
		switch el.name {
		case "vertex":
			if err := decodeVertices(el, &obj, next); err != nil {
				return obj, nil, err
			}
		case "face":
			if err := decodeFaces(el, &obj, next); err != nil {
				return obj, nil, err
			}
		default:
			for i := 0; i < el.count; i++ {
				if _, ok := next(); !ok {
					return obj, nil, fmt.Errorf("ply: truncated %s element", el.name)
				}
			}
		}
	}
	if err := sc.Err(); err != nil {
		return obj, nil, fmt.Errorf("ply: read: %w", err)
	}
	return obj, comments, nil
}

func decodeVertices(el *element, obj *pointcloud.Object3D, next func() (string, bool)) error {
	idx := make(map[string]int, len(el.props))
	for i, p := range el.props {
		idx[p] = i
	}
	has := func(names ...string) bool {
		for _, n := range names {
			if _, ok := idx[n]; !ok {
				return false
			}
		}
		return true
	}
	if !has("x", "y", "z") {
		return fmt.Errorf("ply: vertex element lacks x/y/z")
	}
	hasColor, hasNormal, hasConf := has("red", "green", "blue"), has("nx", "ny", "nz"), has("confidence")

	reserve := min(el.count, maxPrealloc)
	obj.Vertices = make([]geom.Vec3, 0, reserve)
	if hasColor {
		obj.Colors = make([]geom.Vec3, 0, reserve)
	}
	if hasNormal {
		obj.Normals = make([]geom.Vec3, 0, reserve)
	}
	if hasConf {
		obj.Confidence = make([]uint8, 0, reserve)
	}

	for i := 0; i < el.count; i++ {
		l, ok := next()
		if !ok {
			return fmt.Errorf("ply: truncated vertex list at %d of %d", i, el.count)
		}
		f := strings.Fields(l)
		if len(f) != len(el.props) {
			return fmt.Errorf("ply: vertex %d has %d values, want %d", i, len(f), len(el.props))
		}
		vec := func(a, b, c string) (geom.Vec3, error) {
			var v geom.Vec3
			for j, name := range [3]string{a, b, c} {
				x, err := strconv.ParseFloat(f[idx[name]], 32)
				if err != nil {
					return v, fmt.Errorf("ply: vertex %d %s: %w", i, name, err)
				}
				v[j] = float32(x)
			}
			return v, nil
		}
		pos, err := vec("x", "y", "z")
		if err != nil {
			return err
		}
		obj.Vertices = append(obj.Vertices, pos)
		if hasNormal {
			n, err := vec("nx", "ny", "nz")
			if err != nil {
				return err
			}
			obj.Normals = append(obj.Normals, n)
		}
		if hasColor {
			var c geom.Vec3
			for j, name := range [3]string{"red", "green", "blue"} {
				b, err := strconv.ParseUint(f[idx[name]], 10, 8)
				if err != nil {
					return fmt.Errorf("ply: vertex %d %s: %w", i, name, err)
				}
				c[j] = float32(b) / 255
			}
			obj.Colors = append(obj.Colors, c)
		}
		if hasConf {
			b, err := strconv.ParseUint(f[idx["confidence"]], 10, 8)
			if err != nil {
				return fmt.Errorf("ply: vertex %d confidence: %w", i, err)
			}
			obj.Confidence = append(obj.Confidence, uint8(b))
		}
	}
	return nil
}

func decodeFaces(el *element, obj *pointcloud.Object3D, next func() (string, bool)) error {
	obj.Triangles = make([][3]uint32, 0, min(el.count, maxPrealloc))
	for i := 0; i < el.count; i++ {
		l, ok := next()
		if !ok {
			return fmt.Errorf("ply: truncated face list at %d of %d", i, el.count)
		}
		f := strings.Fields(l)
		if len(f) != 4 || f[0] != "3" {
			return fmt.Errorf("ply: face %d is not a triangle", i)
		}
		var tri [3]uint32
		for j := 0; j < 3; j++ {
			v, err := strconv.ParseUint(f[j+1], 10, 32)
			if err != nil {
				return fmt.Errorf("ply: face %d: %w", i, err)
			}
			tri[j] = uint32(v)
		}
		obj.Triangles = append(obj.Triangles, tri)
	}
	return nil
}
