// Package record implements the on-disk binary key-value engine: a
// flat append-only data file, a JSON offset index, and a write-ahead
// log that makes every write crash-recoverable. Each write-ahead entry
// carries a 24-byte header (magic number, version, entry type, sequence,
// payload length, CRC32). Each data-file record is laid out as
// [key_size][value_size][key][value], both sizes big-endian uint32.
package record

import (
	"encoding/binary"
	"io"
)

const (
	HeaderSize = 24
	WALVersion = 1

	// Magic identifies a well-formed WAL entry header.
	Magic uint32 = 0xDEADBEEF
)

// EntryType distinguishes a logged write from a logged delete.
const (
	EntryPut uint8 = iota + 1
	EntryDelete
)

// Header is the fixed 24-byte framing written ahead of every WAL
// payload.
type Header struct {
	Magic      uint32
	Version    uint8
	EntryType  uint8
	Reserved   uint16
	Seq        uint64
	PayloadLen uint32
	CRC32      uint32
}

// Entry is one write-ahead log record: a header plus the encoded
// key/value payload it guards.
type Entry struct {
	Header  Header
	Payload []byte
}

func (h *Header) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.EntryType
	binary.LittleEndian.PutUint16(buf[6:8], h.Reserved)
	binary.LittleEndian.PutUint64(buf[8:16], h.Seq)
	binary.LittleEndian.PutUint32(buf[16:20], h.PayloadLen)
	binary.LittleEndian.PutUint32(buf[20:24], h.CRC32)
}

func (h *Header) decode(buf []byte) {
	h.Magic = binary.LittleEndian.Uint32(buf[0:4])
	h.Version = buf[4]
	h.EntryType = buf[5]
	h.Reserved = binary.LittleEndian.Uint16(buf[6:8])
	h.Seq = binary.LittleEndian.Uint64(buf[8:16])
	h.PayloadLen = binary.LittleEndian.Uint32(buf[16:20])
	h.CRC32 = binary.LittleEndian.Uint32(buf[20:24])
}

// WriteTo writes header then payload to w.
func (e *Entry) WriteTo(w io.Writer) (int64, error) {
	var headerBuf [HeaderSize]byte
	e.Header.encode(headerBuf[:])

	n, err := w.Write(headerBuf[:])
	if err != nil {
		return int64(n), err
	}
	m, err := w.Write(e.Payload)
	return int64(n + m), err
}

// EncodeRecord lays out a key/value pair in the data file's record
// format: big-endian key_size, big-endian value_size, key bytes, value
// bytes.
func EncodeRecord(key string, value []byte) []byte {
	keyBytes := []byte(key)
	buf := make([]byte, 8+len(keyBytes)+len(value))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(keyBytes)))
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(value)))
	copy(buf[8:], keyBytes)
	copy(buf[8+len(keyBytes):], value)
	return buf
}

// DecodeRecord reverses EncodeRecord.
func DecodeRecord(buf []byte) (key string, value []byte, ok bool) {
	if len(buf) < 8 {
		return "", nil, false
	}
	keySize := binary.BigEndian.Uint32(buf[0:4])
	valueSize := binary.BigEndian.Uint32(buf[4:8])
	want := 8 + int(keySize) + int(valueSize)
	if len(buf) < want {
		return "", nil, false
	}
	key = string(buf[8 : 8+keySize])
	value = buf[8+keySize : 8+int(keySize)+int(valueSize)]
	return key, value, true
}
