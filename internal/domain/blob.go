package domain

import (
	"bytes"
	"fmt"
	"io"
)

// ErrBlobNotFound is returned when fetching a blob that was never stored.
var ErrBlobNotFound = NewError(KindNotFound, "blob not found")

// BlobID identifies a blob. Data blobs use the Crockford Base32 encoded
// SHA-256 of their content, metadata blobs the media ID.
type BlobID string

func (id BlobID) String() string {
	return string(id)
}

// Blob is an opaque chunk of stored bytes.
type Blob struct {
	ID   BlobID
	Body []byte
}

// NewBlob creates a new Blob with the given ID and content.
func NewBlob(id BlobID, body []byte) *Blob {
	return &Blob{ID: id, Body: body}
}

// Size returns the size of the blob's content in bytes.
func (blob *Blob) Size() int64 {
	return int64(len(blob.Body))
}

// Bytes returns the blob's content.
func (blob *Blob) Bytes() []byte {
	return blob.Body
}

// WriteTo implements io.WriterTo.
func (blob *Blob) WriteTo(writer io.Writer) (int64, error) {
	n, err := writer.Write(blob.Body)
	if err != nil {
		return int64(n), fmt.Errorf("write: %w", err)
	}

	return int64(n), nil
}

// ReadFrom implements io.ReaderFrom, replacing the blob's content.
func (blob *Blob) ReadFrom(reader io.Reader) (int64, error) {
	var buf bytes.Buffer

	n, err := buf.ReadFrom(reader)
	if err != nil {
		return n, fmt.Errorf("read: %w", err)
	}

	blob.Body = buf.Bytes()

	return n, nil
}
