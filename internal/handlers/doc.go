// Package handlers implements the queue administration HTTP surface:
// enqueueing tasks (single and batch), inspecting and managing failed
// tasks, pool statistics, health probes, and Prometheus metrics.
package handlers
