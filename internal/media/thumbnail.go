package media

import (
	"bytes"
	"context"
	"io"
	"os"
)

// BytesThumbnail serves art held in memory.
type BytesThumbnail []byte

func (b BytesThumbnail) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

// FileThumbnail serves art from a file on disk. The file is opened on every
// call so replacing it on disk refreshes the art.
type FileThumbnail string

func (f FileThumbnail) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.Open(string(f))
}
