// Package doc defines the payload value model stored inside virtual records.
//
// Payloads are opaque per entity tag, so the model is a small sealed set of
// JSON-compatible types. All stored payloads go through MarshalCanonical,
// which makes byte comparison of two payloads a valid equality check and
// keeps snapshot and digest computation deterministic.
package doc
