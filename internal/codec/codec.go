// Package codec implements the value pipeline shared by the record engine
// and the ORM layer: canonical JSON encoding, compression (zlib or zstd),
// base64 framing, and a SHA-256 checksum.
package codec

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"os"

	"github.com/DataDog/zstd"
	"github.com/katamari-go/katamari/internal/kerrors"
	"github.com/klauspost/compress/zlib"
)

// Algorithm selects the compression codec used by Compress/Decompress.
type Algorithm string

const (
	Zlib Algorithm = "zlib"
	Zstd Algorithm = "zstd"
)

// Processed is the result of running a value through the full pipeline:
// a {content_type, payload, checksum} triple.
type Processed struct {
	ContentType string `json:"content_type"`
	Payload     string `json:"payload"`
	Checksum    string `json:"checksum"`
}

// Options configures the pipeline's chosen algorithm and compression
// level.
type Options struct {
	Algorithm Algorithm
	Level     int // zlib: 1-9, 0 or -1 default; zstd: 1-22, 0 default
}

// DefaultOptions favors safety over squeezing out the last byte: zlib
// at its library default level.
func DefaultOptions() Options {
	return Options{Algorithm: Zlib, Level: zlib.DefaultCompression}
}

// Encode produces canonical JSON: object keys sorted, so that two calls
// with equivalent-but-differently-ordered maps produce identical bytes.
// encoding/json already lexically sorts map[string]any keys; we keep this
// as its own function so the codec pipeline has one place that defines
// "canonical" rather than relying on an incidental stdlib behavior.
func Encode(value any) ([]byte, error) {
	canon, err := canonicalize(value)
	if err != nil {
		return nil, &kerrors.CodecError{Op: "encode", Err: err}
	}
	data, err := json.Marshal(canon)
	if err != nil {
		return nil, &kerrors.CodecError{Op: "encode", Err: err}
	}
	return data, nil
}

// canonicalize round-trips value through json to obtain map[string]any /
// []any / scalar forms, which json.Marshal always emits with sorted map
// keys, then returns that tree for re-marshaling. This guards against
// struct field order or an already-non-canonical map[string]any being
// passed in directly.
func canonicalize(value any) (any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return generic, nil
}

// Compress compresses data with the configured algorithm.
func Compress(data []byte, opts Options) ([]byte, error) {
	switch opts.Algorithm {
	case Zstd:
		level := opts.Level
		if level == 0 {
			level = zstd.DefaultCompression
		}
		out, err := zstd.CompressLevel(nil, data, level)
		if err != nil {
			return nil, &kerrors.CodecError{Op: "compress/zstd", Err: err}
		}
		return out, nil
	case Zlib, "":
		var buf bytes.Buffer
		level := opts.Level
		if level == 0 {
			level = zlib.DefaultCompression
		}
		w, err := zlib.NewWriterLevel(&buf, level)
		if err != nil {
			return nil, &kerrors.CodecError{Op: "compress/zlib", Err: err}
		}
		if _, err := w.Write(data); err != nil {
			w.Close()
			return nil, &kerrors.CodecError{Op: "compress/zlib", Err: err}
		}
		if err := w.Close(); err != nil {
			return nil, &kerrors.CodecError{Op: "compress/zlib", Err: err}
		}
		return buf.Bytes(), nil
	default:
		return nil, &kerrors.CodecError{Op: "compress", Err: kerrors.New("invalid compression algorithm: " + string(opts.Algorithm))}
	}
}

// Decompress reverses Compress.
func Decompress(data []byte, opts Options) ([]byte, error) {
	switch opts.Algorithm {
	case Zstd:
		out, err := zstd.Decompress(nil, data)
		if err != nil {
			return nil, &kerrors.CodecError{Op: "decompress/zstd", Err: err}
		}
		return out, nil
	case Zlib, "":
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, &kerrors.CodecError{Op: "decompress/zlib", Err: err}
		}
		defer r.Close()
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(r); err != nil {
			return nil, &kerrors.CodecError{Op: "decompress/zlib", Err: err}
		}
		return buf.Bytes(), nil
	default:
		return nil, &kerrors.CodecError{Op: "decompress", Err: kerrors.New("invalid compression algorithm: " + string(opts.Algorithm))}
	}
}

// Frame base64-encodes bytes for safe embedding in a JSON envelope.
func Frame(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Unframe reverses Frame.
func Unframe(framed string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(framed)
	if err != nil {
		return nil, &kerrors.CodecError{Op: "unframe", Err: err}
	}
	return data, nil
}

// Checksum returns the lowercase hex SHA-256 digest of data. Served by
// the standard library: no third-party SHA-256 implementation fits
// here without pulling in a dependency that does nothing else this
// module needs.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Process runs value through the full pipeline: encode, compress, frame,
// checksum.
func Process(value any, opts Options) (*Processed, error) {
	encoded, err := Encode(value)
	if err != nil {
		return nil, err
	}
	compressed, err := Compress(encoded, opts)
	if err != nil {
		return nil, err
	}
	return &Processed{
		ContentType: "text/json",
		Payload:     Frame(compressed),
		Checksum:    Checksum(compressed),
	}, nil
}

// Unprocess reverses Process and verifies the checksum, returning the
// original canonical JSON bytes.
func Unprocess(p *Processed, opts Options) ([]byte, error) {
	compressed, err := Unframe(p.Payload)
	if err != nil {
		return nil, err
	}
	if Checksum(compressed) != p.Checksum {
		return nil, &kerrors.CodecError{Op: "unprocess", Err: kerrors.New("checksum mismatch")}
	}
	return Decompress(compressed, opts)
}

// ProcessFile runs the bytes of the file at path through the same
// compress/frame/checksum pipeline as Process, but skips JSON encoding
// since the file's bytes are already the payload. content_type is left
// to the caller (the codec has no MIME sniffing table) and defaults to
// "application/octet-stream".
func ProcessFile(path string, opts Options) (*Processed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &kerrors.IOError{Op: "read", Path: path, Err: err}
	}
	compressed, err := Compress(data, opts)
	if err != nil {
		return nil, err
	}
	return &Processed{
		ContentType: "application/octet-stream",
		Payload:     Frame(compressed),
		Checksum:    Checksum(compressed),
	}, nil
}
