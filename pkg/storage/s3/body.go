package s3

import (
	"bytes"
	"io"
)

func bytesReader(data []byte) io.ReadSeeker {
	return bytes.NewReader(data)
}
