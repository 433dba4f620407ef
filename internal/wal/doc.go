// Package wal is the client side of the external write-ahead log.
//
// The authority owns an ordered log of file operations. Each entry is
// pending until the daemon applies it and posts a commit acknowledgement:
//
//	GET  <fetch-url>   -> [{"id"?, "op", "path", "extra"?, "committed", "timestamp"?}, ...]
//	POST <commit-url>  <- the entry body, 2xx on success
//
// Entries carry an optional upstream id. Entry.Key falls back to a content
// hash so that every entry has a stable identity for de-duplication.
package wal
