// Package mediatypes classifies storage keys by file extension and maps
// extensions to MIME types. The pipeline uses it to pick content types
// for uploads and to pair motion photos with their companion videos.
package mediatypes
