// Package queue implements the durable task queue backing the media
// pipeline: a SQLite-backed table of tasks with status, priority, attempt
// count and stage marker.
//
// The store owns the task lifecycle. Claims are a single atomic UPDATE so
// that at most one worker ever holds a task in-progress; completed and
// failed are terminal unless an administrative retry resets the task to
// pending.
package queue
