// Package l3accumulate owns Layer 3 (Accumulation) of the capture pipeline.
//
// Responsibilities: fusing sampled frames into the fixed-capacity particle
// ring buffer, exposing read-only views of it, and the capture session
// lifecycle that governs when accumulation runs.
// Key types: Engine, View, Session, Controller.
//
// Dependency rule: L3 may depend on L1 and L2. Storage, export and HTTP
// layers depend on L3, never the reverse.
package l3accumulate
