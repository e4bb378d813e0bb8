package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const version byte = 1

var (
	ErrCorrupt = errors.New("actioncache: corrupt entry")
	magic4     = [...]byte{'A', 'C', 'H', 'E'}
)

// TagRef is a tag name with the generation observed when the entry was set.
type TagRef struct {
	Name string
	Gen  uint64
}

// Envelope is the framed form of one cache entry. CreatedAt/StaleAt are
// unix nanoseconds; StaleAt == 0 means the entry never goes stale.
type Envelope struct {
	NsGen     uint64
	CreatedAt int64
	StaleAt   int64
	Tags      []TagRef
	Payload   []byte
}

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Layout:
//
//	magic(4) | ver(1) | flags(1) | nsGen(u64 be) | createdAt(i64 be) | staleAt(i64 be)
//	| ntags(u16 be) | { tagLen(u16 be) | tag(tagLen) | gen(u64 be) } * ntags
//	| vlen(u32 be) | payload(vlen)
func Encode(env Envelope) []byte {
	total := 4 + 1 + 1 + 8 + 8 + 8 + 2
	for _, t := range env.Tags {
		total += 2 + len(t.Name) + 8
	}
	total += 4 + len(env.Payload)

	var buf bytes.Buffer
	buf.Grow(total)

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(0) // flags, reserved

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint64(u8[:], env.NsGen)
	buf.Write(u8[:])
	binary.BigEndian.PutUint64(u8[:], uint64(env.CreatedAt))
	buf.Write(u8[:])
	binary.BigEndian.PutUint64(u8[:], uint64(env.StaleAt))
	buf.Write(u8[:])

	if len(env.Tags) > 0xFFFF {
		panic("actioncache: too many tags in envelope")
	}
	binary.BigEndian.PutUint16(u2[:], uint16(len(env.Tags)))
	buf.Write(u2[:])

	for _, t := range env.Tags {
		if l := len(t.Name); l == 0 || l > 0xFFFF {
			panic("actioncache: invalid tag length in envelope")
		}
		binary.BigEndian.PutUint16(u2[:], uint16(len(t.Name)))
		buf.Write(u2[:])
		buf.WriteString(t.Name)
		binary.BigEndian.PutUint64(u8[:], t.Gen)
		buf.Write(u8[:])
	}

	binary.BigEndian.PutUint32(u4[:], uint32(len(env.Payload)))
	buf.Write(u4[:])
	buf.Write(env.Payload)
	return buf.Bytes()
}

func Decode(b []byte) (Envelope, error) {
	const hdr = 4 + 1 + 1 + 8 + 8 + 8 + 2
	if len(b) < hdr || !hasMagic(b) || b[4] != version {
		return Envelope{}, ErrCorrupt
	}

	var env Envelope
	off := 6

	env.NsGen = binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	env.CreatedAt = int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8
	env.StaleAt = int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	ntags := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2

	for i := 0; i < ntags; i++ {
		if off+2 > len(b) {
			return Envelope{}, ErrCorrupt
		}
		tlen := int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
		if tlen <= 0 || tlen > len(b)-off {
			return Envelope{}, ErrCorrupt
		}
		name := b[off : off+tlen]
		off += tlen

		if off+8 > len(b) {
			return Envelope{}, ErrCorrupt
		}
		gen := binary.BigEndian.Uint64(b[off : off+8])
		off += 8

		env.Tags = append(env.Tags, TagRef{Name: string(name), Gen: gen})
	}

	if off+4 > len(b) {
		return Envelope{}, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen > len(b)-off {
		return Envelope{}, ErrCorrupt
	}
	env.Payload = b[off : off+vlen]
	off += vlen

	// reject trailing garbage
	if off != len(b) {
		return Envelope{}, ErrCorrupt
	}
	return env, nil
}
