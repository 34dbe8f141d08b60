// Package retry provides a generic bounded-retry executor used by the
// media pipeline stages.
//
// Every operation that touches an external resource (object storage,
// codecs, the metadata extractor) runs through Do with a named Policy
// preset. A Policy bundles the attempt ceiling, per-attempt timeout,
// backoff base and a predicate deciding which errors are worth retrying.
package retry
