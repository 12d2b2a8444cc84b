// Package archive safely extracts untrusted archives to disk.
//
// The format is sniffed from the leading bytes of the stream with
// [Detect], never taken from a filename. [Entries] produces an iterator over
// the archive's entries in the archive's own order, and [Extractor] streams
// each accepted entry beneath a target directory.
//
// Every write target is derived from [pathutil.CleanEntryPath] and opened
// through an [os.Root], so entries can never land outside the target even
// when the archive is hostile. Unsafe entry names are dropped (default) or
// fail the whole extraction, depending on [UnsafePolicy]. Non-regular entries
// (symlinks, links, devices) are never materialised.
//
// Extraction enforces a per-entry byte ceiling, a total byte ceiling, and a
// maximum entry count to bound decompression bombs.
package archive
