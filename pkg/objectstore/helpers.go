package objectstore

import (
	"bytes"
	"crypto/md5"
)

func md5Sum(data []byte) [16]byte {
	return md5.Sum(data)
}

func newBytesReader(data []byte) *bytes.Reader {
	return bytes.NewReader(data)
}
