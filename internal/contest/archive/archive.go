// Package archive stores compressed submission sources in object storage.
package archive

import (
	"bytes"
	"context"
	"fmt"

	"codeblack/internal/common/storage"
	"codeblack/internal/contest/repository"
	appErr "codeblack/pkg/errors"

	"github.com/klauspost/compress/zstd"
)

const contentType = "application/zstd"

// Archiver writes zstd-compressed sources under submissions/<round>/<username>/<id>.zst.
type Archiver struct {
	store  storage.ObjectStorage
	bucket string
	enc    *zstd.Encoder
}

// NewArchiver creates an archiver for bucket.
func NewArchiver(store storage.ObjectStorage, bucket string) (*Archiver, error) {
	if store == nil {
		return nil, appErr.New(appErr.StorageError).WithMessage("object storage is not configured")
	}
	if bucket == "" {
		return nil, appErr.ValidationError("bucket", "required")
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.StorageError, "create zstd encoder failed")
	}
	return &Archiver{store: store, bucket: bucket, enc: enc}, nil
}

// Key returns the object key of a submission.
func Key(sub repository.Submission) string {
	return fmt.Sprintf("submissions/%d/%s/%s.zst", sub.Round, sub.Username, sub.ID)
}

// Archive uploads the submission source and returns its object key.
func (a *Archiver) Archive(ctx context.Context, sub repository.Submission) (string, error) {
	if sub.ID == "" || sub.Username == "" {
		return "", appErr.ValidationError("submission", "id and username are required")
	}
	payload := a.enc.EncodeAll([]byte(sub.Code), nil)
	key := Key(sub)
	if err := a.store.PutObject(ctx, a.bucket, key, bytes.NewReader(payload), int64(len(payload)), contentType); err != nil {
		return "", appErr.Wrapf(err, appErr.StorageError, "archive submission failed")
	}
	return key, nil
}

// Decompress restores an archived source.
func Decompress(payload []byte) (string, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.StorageError, "create zstd reader failed")
	}
	defer dec.Close()
	out, err := dec.DecodeAll(payload, nil)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.StorageError, "decode archive failed")
	}
	return string(out), nil
}
