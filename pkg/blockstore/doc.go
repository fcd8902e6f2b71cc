// Package blockstore assigns each block a short, collision-free on-disk
// path and derives its file location. See AllocatePath and FileLocation.
package blockstore
