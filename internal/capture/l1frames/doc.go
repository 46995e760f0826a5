// Package l1frames owns Layer 1 (Frames) of the capture pipeline.
//
// Responsibilities: the per-frame data delivered by a depth camera
// (intrinsics, pose, depth, confidence and color) and the Source
// interface that produces it.
// Key types: Frame, DepthMap, ConfidenceMap, Confidence, Source.
//
// Dependency rule: L1 depends on nothing else in capture.
package l1frames
