package sqlite

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/depthscan/internal/db"
	"github.com/banshee-data/depthscan/internal/geom"
	"github.com/banshee-data/depthscan/internal/monitoring"
	"github.com/banshee-data/depthscan/internal/pointcloud"
	"github.com/banshee-data/depthscan/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

func setupScanStore(t *testing.T) (*ScanStore, *timeutil.MockClock) {
	t.Helper()
	d, err := db.NewDB(filepath.Join(t.TempDir(), "scans.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	clock := timeutil.NewMockClock(time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC))
	store := NewScanStore(d.DB)
	store.SetClock(clock)
	return store, clock
}

func testObject() pointcloud.Object3D {
	return pointcloud.Object3D{
		Vertices: []geom.Vec3{geom.XYZ(1, 2, 3), geom.XYZ(-0.5, 0.25, 1e-3)},
		Colors:   []geom.Vec3{geom.XYZ(1, 0, 0), geom.XYZ(0, 0.5, 1)},
	}
}

func TestScanStoreInsertGet(t *testing.T) {
	store, clock := setupScanStore(t)

	sc, err := NewScan("Kitchen", testObject())
	require.NoError(t, err)
	conf := uint8(1)
	orientation := 87.5
	cam := geom.XYZ(0, 1, 0)
	sc.Description = "north wall"
	sc.PointConfidence = &conf
	sc.InitialOrientation = &orientation
	sc.CameraOrientation = &cam
	sc.Thumbnail = []byte{0x89, 'P', 'N', 'G'}
	sc.Location = "Göttingen"

	require.NoError(t, store.Insert(sc))
	assert.NotEmpty(t, sc.ScanID)
	assert.True(t, sc.Created.Equal(clock.Now()))

	got, err := store.Get(sc.ScanID)
	require.NoError(t, err)
	got.Created = got.Created.UTC()
	sc.Created = sc.Created.UTC()
	if diff := cmp.Diff(sc, got); diff != "" {
		t.Errorf("scan mismatch (-want +got):\n%s", diff)
	}

	obj, err := got.PointCloud()
	require.NoError(t, err)
	assert.Equal(t, testObject().Vertices, obj.Vertices)
	assert.Equal(t, testObject().Colors, obj.Colors)
	assert.Equal(t, []uint8{1, 1}, obj.Confidence)

	thumb, err := store.Thumbnail(sc.ScanID)
	require.NoError(t, err)
	assert.Equal(t, sc.Thumbnail, thumb)
}

func TestScanStoreOptionalFields(t *testing.T) {
	store, _ := setupScanStore(t)

	sc, err := NewScan("bare", pointcloud.Object3D{Vertices: []geom.Vec3{geom.XYZ(1, 1, 1)}})
	require.NoError(t, err)
	require.NoError(t, store.Insert(sc))

	got, err := store.Get(sc.ScanID)
	require.NoError(t, err)
	assert.Nil(t, got.PointConfidence)
	assert.Nil(t, got.InitialOrientation)
	assert.Nil(t, got.CameraOrientation)
	assert.Empty(t, got.Thumbnail)
	assert.Empty(t, got.Location)

	obj, err := got.PointCloud()
	require.NoError(t, err)
	assert.Equal(t, []geom.Vec3{{}}, obj.Colors, "missing colors are stored as black")
	assert.False(t, obj.HasConfidence())
}

func TestScanStoreInsertValidation(t *testing.T) {
	store, _ := setupScanStore(t)

	sc, err := NewScan("", testObject())
	require.NoError(t, err)
	assert.Error(t, store.Insert(sc))

	sc.Name = "short blob"
	sc.Points = sc.Points[:12]
	assert.Error(t, store.Insert(sc))

	_, err = NewScan("bad", pointcloud.Object3D{Vertices: make([]geom.Vec3, 2), Colors: make([]geom.Vec3, 1)})
	assert.Error(t, err)
}

func TestScanStoreList(t *testing.T) {
	store, clock := setupScanStore(t)

	for _, name := range []string{"first", "second", "third"} {
		sc, err := NewScan(name, testObject())
		require.NoError(t, err)
		require.NoError(t, store.Insert(sc))
		clock.Advance(time.Minute)
	}

	scans, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, scans, 3)
	assert.Equal(t, "third", scans[0].Name)
	assert.Equal(t, "first", scans[2].Name)
	assert.Nil(t, scans[0].Points, "list does not load blobs")
	assert.Equal(t, 2, scans[0].PointCount)

	scans, err = store.List(2)
	require.NoError(t, err)
	assert.Len(t, scans, 2)
}

func TestScanStoreUpdateDelete(t *testing.T) {
	store, _ := setupScanStore(t)
	sc, err := NewScan("draft", testObject())
	require.NoError(t, err)
	require.NoError(t, store.Insert(sc))

	require.NoError(t, store.UpdateMetadata(sc.ScanID, "final", "after cleanup", "lab"))
	got, err := store.Get(sc.ScanID)
	require.NoError(t, err)
	assert.Equal(t, "final", got.Name)
	assert.Equal(t, "after cleanup", got.Description)
	assert.Equal(t, "lab", got.Location)

	assert.Error(t, store.UpdateMetadata(sc.ScanID, "", "", ""))
	assert.True(t, errors.Is(store.UpdateMetadata("nope", "x", "", ""), sql.ErrNoRows))

	require.NoError(t, store.Delete(sc.ScanID))
	_, err = store.Get(sc.ScanID)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.True(t, errors.Is(store.Delete(sc.ScanID), sql.ErrNoRows))
	_, err = store.Thumbnail(sc.ScanID)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestScanPointCloudCorrupt(t *testing.T) {
	sc := &Scan{ScanID: "x", Points: make([]byte, 13), Colors: make([]byte, 12)}
	_, err := sc.PointCloud()
	assert.Error(t, err)

	sc.Points = make([]byte, 24)
	_, err = sc.PointCloud()
	assert.ErrorContains(t, err, "1 colors for 2 points")
}
