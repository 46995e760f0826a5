package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/depthscan/internal/geom"
	"github.com/banshee-data/depthscan/internal/monitoring"
	"github.com/banshee-data/depthscan/internal/timeutil"
)

var logf = monitoring.Component("store")

// ScanStore provides persistence for saved scans.
type ScanStore struct {
	db    *sql.DB
	clock timeutil.Clock
}

// NewScanStore creates a new ScanStore.
func NewScanStore(db *sql.DB) *ScanStore {
	return &ScanStore{db: db, clock: timeutil.RealClock{}}
}

// SetClock replaces the clock used to stamp new scans.
func (s *ScanStore) SetClock(c timeutil.Clock) {
	s.clock = c
}

// Insert creates a new scan in the database.
// If scan.ScanID is empty, a new UUID is generated; a zero Created time is
// set to now.
func (s *ScanStore) Insert(scan *Scan) error {
	if scan.Name == "" {
		return fmt.Errorf("insert scan: name is required")
	}
	if len(scan.Points) != 12*scan.PointCount || len(scan.Colors) != len(scan.Points) {
		return fmt.Errorf("insert scan: blob sizes %d/%d do not match %d points",
			len(scan.Points), len(scan.Colors), scan.PointCount)
	}
	if scan.ScanID == "" {
		scan.ScanID = uuid.New().String()
	}
	if scan.Created.IsZero() {
		scan.Created = s.clock.Now()
	}

	cx, cy, cz := orientationColumns(scan.CameraOrientation)
	query := `
		INSERT INTO scans (
			scan_id, name, description, created_unix_nanos, point_count,
			points, colors, point_confidence, thumbnail,
			location, location_coordinates, initial_orientation,
			camera_orientation_x, camera_orientation_y, camera_orientation_z
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		scan.ScanID,
		scan.Name,
		scan.Description,
		scan.Created.UnixNano(),
		scan.PointCount,
		scan.Points,
		scan.Colors,
		nullUint8(scan.PointConfidence),
		nullBytes(scan.Thumbnail),
		nullString(scan.Location),
		nullString(scan.LocationCoordinates),
		nullFloat64(scan.InitialOrientation),
		cx, cy, cz,
	)
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	logf("saved scan %s (%q, %d points)", scan.ScanID, scan.Name, scan.PointCount)
	return nil
}

const scanColumns = `
	scan_id, name, description, created_unix_nanos, point_count,
	point_confidence, location, location_coordinates, initial_orientation,
	camera_orientation_x, camera_orientation_y, camera_orientation_z`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMetadata(row rowScanner, extra ...any) (*Scan, error) {
	sc := &Scan{}
	var created int64
	var conf sql.NullInt64
	var location, coords sql.NullString
	var orientation, cx, cy, cz sql.NullFloat64

	dest := append([]any{
		&sc.ScanID, &sc.Name, &sc.Description, &created, &sc.PointCount,
		&conf, &location, &coords, &orientation,
		&cx, &cy, &cz,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	sc.Created = time.Unix(0, created)
	if conf.Valid {
		c := uint8(conf.Int64)
		sc.PointConfidence = &c
	}
	if location.Valid {
		sc.Location = location.String
	}
	if coords.Valid {
		sc.LocationCoordinates = coords.String
	}
	if orientation.Valid {
		sc.InitialOrientation = &orientation.Float64
	}
	if cx.Valid && cy.Valid && cz.Valid {
		v := geom.XYZ(float32(cx.Float64), float32(cy.Float64), float32(cz.Float64))
		sc.CameraOrientation = &v
	}
	return sc, nil
}

// Get returns the scan with the given ID including its blobs.
// Returns sql.ErrNoRows if the scan does not exist.
func (s *ScanStore) Get(scanID string) (*Scan, error) {
	var points, colors, thumbnail []byte
	row := s.db.QueryRow(`SELECT `+scanColumns+`, points, colors, thumbnail FROM scans WHERE scan_id = ?`, scanID)
	sc, err := scanMetadata(row, &points, &colors, &thumbnail)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get scan: %w", err)
	}
	sc.Points, sc.Colors, sc.Thumbnail = points, colors, thumbnail
	return sc, nil
}

// List returns scan metadata, newest first. Blobs are not loaded.
func (s *ScanStore) List(limit int) ([]*Scan, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`SELECT `+scanColumns+` FROM scans ORDER BY created_unix_nanos DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var scans []*Scan
	for rows.Next() {
		sc, err := scanMetadata(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scan row: %w", err)
		}
		scans = append(scans, sc)
	}
	return scans, rows.Err()
}

// Thumbnail returns the stored PNG thumbnail, or nil if the scan has none.
func (s *ScanStore) Thumbnail(scanID string) ([]byte, error) {
	var thumb []byte
	err := s.db.QueryRow(`SELECT thumbnail FROM scans WHERE scan_id = ?`, scanID).Scan(&thumb)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get thumbnail: %w", err)
	}
	return thumb, nil
}

// UpdateMetadata changes the user-editable fields of a scan.
func (s *ScanStore) UpdateMetadata(scanID, name, description, location string) error {
	if name == "" {
		return fmt.Errorf("update scan: name is required")
	}
	result, err := s.db.Exec(`
		UPDATE scans SET name = ?, description = ?, location = ?
		WHERE scan_id = ?`,
		name, description, nullString(location), scanID)
	if err != nil {
		return fmt.Errorf("update scan: %w", err)
	}
	return requireAffected(result, "update scan")
}

// Delete removes a scan by ID.
func (s *ScanStore) Delete(scanID string) error {
	result, err := s.db.Exec(`DELETE FROM scans WHERE scan_id = ?`, scanID)
	if err != nil {
		return fmt.Errorf("delete scan: %w", err)
	}
	return requireAffected(result, "delete scan")
}

func requireAffected(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func orientationColumns(v *geom.Vec3) (x, y, z sql.NullFloat64) {
	if v == nil {
		return
	}
	return sql.NullFloat64{Float64: float64(v[0]), Valid: true},
		sql.NullFloat64{Float64: float64(v[1]), Valid: true},
		sql.NullFloat64{Float64: float64(v[2]), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat64(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullUint8(v *uint8) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
