/*
Package workers provides utilities for determining optimal worker pool sizes
in containerized environments.

When running in containers, the number of available CPUs may be limited by
cgroup constraints. Go 1.19+ automatically sets GOMAXPROCS based on container
CPU limits, but runtime.NumCPU() still returns the host machine's CPU count,
so sizing a pool from NumCPU over-commits a limited container.

The helpers here derive worker counts from GOMAXPROCS:

	// Pipeline workers mix decode work with storage and network waits
	numWorkers := workers.ForMixed(8)

	// Pure CPU or pure I/O pools
	numWorkers = workers.ForCPU(4)
	numWorkers = workers.ForIO(16)

All functions respect the QUEUE_WORKERS environment variable, allowing
operators to override the automatic calculation:

	env:
	- name: QUEUE_WORKERS
	  value: "4"

Always pass a limit when the workers share a bounded downstream resource,
such as the queue database connection pool or a rate-limited geocoding
service.

All functions in this package are safe for concurrent use.
*/
package workers
