// Package sqlite contains SQLite repository implementations for saved
// scans.
//
// Capture code never touches SQL; it hands an Object3D to NewScan and the
// store persists the flat position and color blobs alongside the scan
// metadata.
package sqlite
