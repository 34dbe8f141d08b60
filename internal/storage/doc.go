// Package storage defines the narrow object-store contract the pipeline
// consumes (get/put/publicUrl plus listing for motion-photo pairing) and a
// local-filesystem implementation suitable for single-node deployments and
// tests. S3-compatible backends satisfy the same interface.
package storage
