// Package sweeper runs the periodic cache eviction loop. A sweep runs as soon
// as the loop starts and then once per interval; every iteration is guarded
// against panics so a single bad pass never stops eviction.
package sweeper
