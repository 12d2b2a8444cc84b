// Package ratelimit throttles uploads per client address.
//
// Each address gets a token bucket from golang.org/x/time/rate. Buckets idle
// for longer than the TTL are evicted by a background goroutine, and the
// number of tracked addresses is capped so rotating sources cannot grow the
// map without bound. State is in-memory and per process.
//
// Only POST /upload is wrapped. An accepted upload costs disk, decompression
// time and a directory until the sweeper reclaims it; reads of published
// content are cheap and left alone.
package ratelimit
