// Package cache stores synthesized narration clips. A memory LRU (L1) sits in
// front of a zstd-compressed disk store (L2) that survives restarts.
package cache
