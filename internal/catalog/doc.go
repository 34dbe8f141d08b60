// Package catalog owns the photo records the pipeline produces. The
// worker pool hands each successful PipelineResult to the Catalog for
// insertion; motion-video tasks update the pairing fields of an existing
// record.
package catalog
