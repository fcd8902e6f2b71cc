// Package blockstream implements the range-clipped, single-shot reader
// that turns an object's ordered block locations into a byte stream. See
// New and BlockStream.Read.
package blockstream
