// Package pipeline turns a raw stored photo into a catalog-ready record
// through a fixed sequence of stages: acquire and normalize the container,
// extract geometry, generate a preview and perceptual hash, curate
// metadata, derive descriptive info, geolocate, pair a motion-video
// companion, and persist the preview. Required-stage failures fail the
// task; descriptive, geolocation and pairing stages degrade gracefully.
//
// A motion-video task runs a smaller variant that locates the companion
// still image and attaches the pairing fields to its catalog record.
package pipeline
