// Package publish implements the upload publication pipeline: intake checks,
// extraction into a fresh per-upload directory, entry document lookup,
// registration, and public URL construction, with rollback on every failure.
package publish
