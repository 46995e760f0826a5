// Package l2sampling owns Layer 2 (Sampling) of the capture pipeline.
//
// Responsibilities: the fixed screen-space sampling grid, the camera
// motion gate that decides which frames are worth sampling, and the
// unprojection of grid samples into world-space particles.
// Key types: SamplingRate, Thresholds, Gate, Unprojector.
//
// Dependency rule: L2 may depend on L1, but never on L3.
package l2sampling
