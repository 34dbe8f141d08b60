// Package pool runs N independent polling workers against the task queue.
// Workers are staggered so their poll ticks do not coincide, claims are
// atomic at the store, and pipeline failures are translated into retry or
// fail transitions at the worker boundary so a task can never crash a
// worker loop. A periodic rebalance pass may bias which priority bands a
// worker claims from; shutdown drains in-flight tasks.
package pool
