package ply

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/banshee-data/depthscan/internal/fsutil"
	"github.com/banshee-data/depthscan/internal/monitoring"
	"github.com/banshee-data/depthscan/internal/pointcloud"
	"github.com/banshee-data/depthscan/internal/security"
	"github.com/banshee-data/depthscan/internal/timeutil"
)

var logf = monitoring.Component("export")

// Exporter writes PLY files into a single restricted directory.
type Exporter struct {
	FS     fsutil.FileSystem
	Dir    string
	Author string
	Clock  timeutil.Clock

	// NewID returns the unique token embedded in file names. Defaults to
	// a random UUID.
	NewID func() string
}

// ExportOptions describe one export.
type ExportOptions struct {
	// Name is the scan name. Empty names export as "model".
	Name string
	// InitialOrientation, when set, is recorded as a header comment in degrees.
	InitialOrientation *float64
	// Progress, when set, is called with 0.5 after encoding and 1 once the
	// file is closed.
	Progress func(float64)
}

// NewExporter returns an Exporter on the host filesystem.
func NewExporter(dir string) *Exporter {
	return &Exporter{
		FS:     fsutil.OSFileSystem{},
		Dir:    dir,
		Author: "depthscan",
		Clock:  timeutil.RealClock{},
	}
}

// FileName builds "<name>_<id5>_<dd.MM.yy>.ply".
func (e *Exporter) FileName(name string) string {
	if strings.TrimSpace(name) == "" {
		name = "model"
	} else {
		name = security.SanitizeFilename(name)
	}
	id := strings.ToUpper(e.newID())
	if len(id) > 5 {
		id = id[:5]
	}
	return fmt.Sprintf("%s_%s_%s.ply", name, id, e.clock().Now().Format("02.01.06"))
}

// Comments returns the header comments written for opts.
func (e *Exporter) Comments(opts ExportOptions) []string {
	comments := []string{
		"author: " + e.Author,
		"object: colored point cloud scan",
	}
	if opts.InitialOrientation != nil {
		comments = append(comments, "initialOrientation: "+strconv.FormatFloat(*opts.InitialOrientation, 'g', -1, 64))
	}
	return comments
}

// Export writes obj and returns the path of the new file. Failures are
// returned wrapped in ErrEncoding and leave no partial file behind.
func (e *Exporter) Export(obj pointcloud.Object3D, opts ExportOptions) (string, error) {
	if err := e.FS.MkdirAll(e.Dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create export dir: %w", ErrEncoding, err)
	}
	path, err := e.freePath(opts.Name)
	if err != nil {
		return "", err
	}
	if err := e.FS.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncoding, err)
	}

	f, err := e.FS.Create(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	if err := Encode(f, obj, e.Comments(opts)); err != nil {
		_ = f.Close()
		_ = e.FS.Remove(path)
		logf("export of %d vertices to %s failed: %v", len(obj.Vertices), path, err)
		return "", err
	}
	report(opts.Progress, 0.5)
	if err := f.Close(); err != nil {
		_ = e.FS.Remove(path)
		return "", fmt.Errorf("%w: close: %w", ErrEncoding, err)
	}
	report(opts.Progress, 1)
	logf("exported %d vertices to %s", len(obj.Vertices), path)
	return path, nil
}

// freePath picks an export path that does not exist yet, drawing a new
// ID on collision.
func (e *Exporter) freePath(name string) (string, error) {
	const attempts = 3
	var path string
	for i := 0; i < attempts; i++ {
		var err error
		path, err = security.ExportPath(e.Dir, e.FileName(name))
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrEncoding, err)
		}
		if !e.FS.Exists(path) {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s already exists", ErrEncoding, path)
}

func report(fn func(float64), v float64) {
	if fn != nil {
		fn(v)
	}
}

func (e *Exporter) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e *Exporter) clock() timeutil.Clock {
	if e.Clock != nil {
		return e.Clock
	}
	return timeutil.RealClock{}
}
