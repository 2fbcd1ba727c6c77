// Package cache defines the disk-backed store that mirrors the upstream path
// hierarchy under a single cache root: <root>/alpine/<version>/.../<file>.
// Writes go through a temp file in the target directory followed by a rename,
// so readers only ever observe complete artifacts. Entries carry no metadata
// beyond the filesystem's size and modtime; the modtime doubles as the age
// used by the expiry sweep. The proxy coordinator and the sweeper are the
// only callers and neither touches the filesystem directly.
package cache
