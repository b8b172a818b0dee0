package tokenstore

import (
	"encoding/binary"
	"errors"
	"time"
)

// recordVersion is the on-wire version byte of a stored refresh record.
const recordVersion = 1

// recordSize is version(1) + hash(32) + issuedAt(8).
const recordSize = 41

// ErrCorruptRecord reports a stored blob that does not decode.
var ErrCorruptRecord = errors.New("corrupt refresh record")

// Record is the per-principal refresh state persisted in Redis. Only
// the SHA-256 of the encoded refresh token is stored, never the token.
type Record struct {
	Hash     [32]byte
	IssuedAt time.Time
}

func encodeRecord(rec Record) []byte {
	buf := make([]byte, recordSize)
	buf[0] = recordVersion
	copy(buf[1:33], rec.Hash[:])
	binary.BigEndian.PutUint64(buf[33:41], uint64(rec.IssuedAt.Unix()))
	return buf
}

func decodeRecord(data []byte) (Record, error) {
	if len(data) != recordSize || data[0] != recordVersion {
		return Record{}, ErrCorruptRecord
	}
	var rec Record
	copy(rec.Hash[:], data[1:33])
	rec.IssuedAt = time.Unix(int64(binary.BigEndian.Uint64(data[33:41])), 0)
	return rec, nil
}
