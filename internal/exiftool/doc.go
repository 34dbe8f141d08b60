// Package exiftool wraps the external exiftool binary as the pipeline's
// metadata extractor. The raw bytes are written to a temporary file, the
// tool's JSON output is decoded, and only a curated whitelist of fields is
// retained for the catalog record.
package exiftool
