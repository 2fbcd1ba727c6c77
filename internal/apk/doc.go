// Package apk maps Alpine repository request paths onto the on-disk cache
// layout and the upstream mirror URL. The mapping is a pure function of the
// configured cache root and upstream base: <root><path> and <upstream><path>.
// Paths are rejected rather than normalized when they carry dot segments,
// empty segments or separators that could move the target outside the root.
// It also classifies files (APKINDEX, signatures, packages) for content-type
// inference and observability.
package apk
