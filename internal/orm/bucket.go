package orm

import (
	"time"

	"github.com/katamari-go/katamari/internal/codec"
)

// bucketObjectKey and bucketMetaKey namespace bucket storage onto the
// same flat key space the record engine and MVCC store already use,
// rather than introducing a second storage backend for binary objects.
func bucketObjectKey(bucket, key string) string { return "bucket/" + bucket + "/object/" + key }
func bucketMetaKey(bucket, key string) string   { return "bucket/" + bucket + "/meta/" + key }

// PutBucketObject stores an arbitrary byte blob under (bucket, key),
// compressing it the same way codec.Process compresses JSON values, and
// records a metadata entry (checksum, size, caller-supplied metadata)
// through the normal Set path so it is versioned and searchable like
// any other record. Returns the stored object's checksum.
func (o *ORM) PutBucketObject(bucket, key string, data []byte, metadata map[string]any) (string, error) {
	compressed, err := codec.Compress(data, o.codecOpts)
	if err != nil {
		return "", err
	}
	checksum := codec.Checksum(compressed)
	framed := codec.Frame(compressed)

	if err := o.engine.Set(bucketObjectKey(bucket, key), []byte(framed)); err != nil {
		return "", err
	}

	meta := map[string]any{
		"bucket":    bucket,
		"key":       key,
		"checksum":  checksum,
		"size":      len(data),
		"metadata":  metadata,
		"stored_at": time.Now().UTC().Format(time.RFC3339),
	}
	if err := o.Set(bucketMetaKey(bucket, key), meta, false, 0); err != nil {
		return "", err
	}
	return checksum, nil
}

// GetBucketObject retrieves and decompresses the object stored under
// (bucket, key).
func (o *ORM) GetBucketObject(bucket, key string) ([]byte, error) {
	framed, err := o.engine.Get(bucketObjectKey(bucket, key))
	if err != nil {
		return nil, err
	}
	compressed, err := codec.Unframe(string(framed))
	if err != nil {
		return nil, err
	}
	return codec.Decompress(compressed, o.codecOpts)
}

// GetBucketObjectMetadata returns the metadata entry recorded alongside
// the object's bytes.
func (o *ORM) GetBucketObjectMetadata(bucket, key string) (map[string]any, error) {
	return o.Get(bucketMetaKey(bucket, key))
}

// DeleteBucketObject removes both the object bytes and its metadata.
func (o *ORM) DeleteBucketObject(bucket, key string) error {
	if err := o.Delete(bucketMetaKey(bucket, key)); err != nil {
		return err
	}
	return o.engine.Delete(bucketObjectKey(bucket, key))
}
