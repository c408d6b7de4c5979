package bx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLittleEndianRoundTrip(t *testing.T) {
	b2 := make([]byte, 2)
	PutU16(b2, 0x1234)
	// least-significant byte first
	assert.Equal(t, []byte{0x34, 0x12}, b2)
	assert.Equal(t, uint16(0x1234), U16(b2))

	b4 := make([]byte, 4)
	PutU32(b4, 0x01020304)
	assert.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, b4)
	assert.Equal(t, uint32(0x01020304), U32(b4))

	b8 := make([]byte, 8)
	PutU64(b8, 0x0102030405060708)
	assert.Equal(t, []byte{0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}, b8)
	assert.Equal(t, uint64(0x0102030405060708), U64(b8))
}

func TestOffsetVariants(t *testing.T) {
	buf := make([]byte, 16)

	PutU16At(buf, 0, 0x0A0B)
	PutU32At(buf, 2, 0x01020304)
	PutU64At(buf, 6, 0x0102030405060708)

	assert.Equal(t, uint16(0x0A0B), U16At(buf, 0))
	assert.Equal(t, uint32(0x01020304), U32At(buf, 2))
	assert.Equal(t, uint64(0x0102030405060708), U64At(buf, 6))
}

func TestBigEndianSortsLikeValue(t *testing.T) {
	b2 := make([]byte, 2)
	PutU16BE(b2, 0x1234)
	// most-significant byte first
	assert.Equal(t, []byte{0x12, 0x34}, b2)
	assert.Equal(t, uint16(0x1234), U16BE(b2))

	b4 := make([]byte, 4)
	PutU32BE(b4, 0x01020304)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, b4)
	assert.Equal(t, uint32(0x01020304), U32BE(b4))

	b8 := make([]byte, 8)
	PutU64BE(b8, 0x0102030405060708)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}, b8)
	assert.Equal(t, uint64(0x0102030405060708), U64BE(b8))

	buf := make([]byte, 16)
	PutU16BEAt(buf, 0, 0x0A0B)
	PutU32BEAt(buf, 2, 0x01020304)
	PutU64BEAt(buf, 6, 0x0102030405060708)
	assert.Equal(t, uint16(0x0A0B), U16BEAt(buf, 0))
	assert.Equal(t, uint32(0x01020304), U32BEAt(buf, 2))
	assert.Equal(t, uint64(0x0102030405060708), U64BEAt(buf, 6))
}

func TestSignedViews(t *testing.T) {
	var s16 int16 = -1234
	b2 := make([]byte, 2)
	PutU16(b2, uint16(s16))
	assert.Equal(t, int16(-1234), I16(b2))

	var s32 int32 = -123456
	b4 := make([]byte, 4)
	PutU32(b4, uint32(s32))
	assert.Equal(t, int32(-123456), I32(b4))

	var s64 int64 = -1234567890
	b8 := make([]byte, 8)
	PutU64(b8, uint64(s64))
	assert.Equal(t, int64(-1234567890), I64(b8))
}
