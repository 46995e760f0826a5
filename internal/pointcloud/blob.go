package pointcloud

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/banshee-data/depthscan/internal/geom"
)

// Vec3BlobStride is the encoded size of one vector: three little-endian
// float32 values.
const Vec3BlobStride = 12

// EncodeVec3Blob packs vectors as consecutive x,y,z little-endian float32.
func EncodeVec3Blob(vs []geom.Vec3) []byte {
	out := make([]byte, len(vs)*Vec3BlobStride)
	for i, v := range vs {
		off := i * Vec3BlobStride
		binary.LittleEndian.PutUint32(out[off:], math.Float32bits(v[0]))
		binary.LittleEndian.PutUint32(out[off+4:], math.Float32bits(v[1]))
		binary.LittleEndian.PutUint32(out[off+8:], math.Float32bits(v[2]))
	}
	return out
}

// DecodeVec3Blob is the inverse of EncodeVec3Blob.
func DecodeVec3Blob(b []byte) ([]geom.Vec3, error) {
	if len(b)%Vec3BlobStride != 0 {
		return nil, fmt.Errorf("vec3 blob length %d is not a multiple of %d", len(b), Vec3BlobStride)
	}
	vs := make([]geom.Vec3, len(b)/Vec3BlobStride)
	for i := range vs {
		off := i * Vec3BlobStride
		vs[i] = geom.Vec3{
			math.Float32frombits(binary.LittleEndian.Uint32(b[off:])),
			math.Float32frombits(binary.LittleEndian.Uint32(b[off+4:])),
			math.Float32frombits(binary.LittleEndian.Uint32(b[off+8:])),
		}
	}
	return vs, nil
}
