// Package media provides the codec-level building blocks of the photo
// pipeline: container sniffing, HEIC transcoding, legacy bitmap
// normalization, display-oriented geometry, preview generation and the
// perceptual hash.
//
// Heavy decode/encode work goes through libvips when it is initialized;
// pure-Go paths (image, imaging, x/image) cover the rest so the package
// stays testable without native dependencies.
package media
