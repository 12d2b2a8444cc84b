// Package cryptoutil provides the SHA-256 helpers used to fingerprint
// uploaded archives while they stream through extraction.
package cryptoutil
