// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"encoding/binary"
	"math/big"
)

// packer builds length-prefixed binary records for database values.
type packer struct {
	bytes []byte
}

func newPacker() *packer {
	return &packer{bytes: make([]byte, 0, 64)}
}

func (p *packer) packByte(b byte) {
	p.bytes = append(p.bytes, b)
}

func (p *packer) packBool(b bool) {
	if b {
		p.packByte(1)
	} else {
		p.packByte(0)
	}
}

func (p *packer) packUint32(v uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	p.bytes = append(p.bytes, buf[:]...)
}

func (p *packer) packInt64(v int64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	p.bytes = append(p.bytes, buf[:]...)
}

func (p *packer) packBytes(b []byte) {
	p.packUint32(uint32(len(b)))
	p.bytes = append(p.bytes, b...)
}

// packBig writes a non-negative big.Int as length-prefixed magnitude bytes.
func (p *packer) packBig(v *big.Int) {
	if v == nil {
		p.packBytes(nil)
		return
	}
	p.packBytes(v.Bytes())
}

// unpacker reads records written by packer. The first decode error sticks;
// subsequent reads return zero values.
type unpacker struct {
	bytes  []byte
	offset int
	err    error
}

func newUnpacker(b []byte) *unpacker {
	return &unpacker{bytes: b}
}

func (u *unpacker) fail() {
	if u.err == nil {
		u.err = ErrStateCorrupted
	}
}

func (u *unpacker) unpackByte() byte {
	if u.err != nil || u.offset+1 > len(u.bytes) {
		u.fail()
		return 0
	}
	b := u.bytes[u.offset]
	u.offset++
	return b
}

func (u *unpacker) unpackBool() bool {
	return u.unpackByte() != 0
}

func (u *unpacker) unpackUint32() uint32 {
	if u.err != nil || u.offset+4 > len(u.bytes) {
		u.fail()
		return 0
	}
	v := binary.BigEndian.Uint32(u.bytes[u.offset:])
	u.offset += 4
	return v
}

func (u *unpacker) unpackInt64() int64 {
	if u.err != nil || u.offset+8 > len(u.bytes) {
		u.fail()
		return 0
	}
	v := binary.BigEndian.Uint64(u.bytes[u.offset:])
	u.offset += 8
	return int64(v)
}

func (u *unpacker) unpackBytes() []byte {
	length := int(u.unpackUint32())
	if u.err != nil || u.offset+length > len(u.bytes) {
		u.fail()
		return nil
	}
	b := u.bytes[u.offset : u.offset+length]
	u.offset += length
	return b
}

func (u *unpacker) unpackBig() *big.Int {
	return new(big.Int).SetBytes(u.unpackBytes())
}
