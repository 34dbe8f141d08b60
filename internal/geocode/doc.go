// Package geocode resolves GPS coordinates to place names through the
// OpenStreetMap Nominatim API. All requests pass through one process-wide
// rate gate so concurrent workers collectively honor the service's minimum
// inter-request interval.
package geocode
