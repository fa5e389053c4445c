package lxp_modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinRegistersLowWordFirst(t *testing.T) {
	// 32-bit fields assemble as lo + hi*65536
	for _, c := range []struct{ lo, hi uint16 }{
		{0, 0},
		{1, 0},
		{0, 1},
		{0xFFFF, 0},
		{0, 0xFFFF},
		{0x2345, 0x0001},
		{0x1234, 0x5678},
		{0xFFFF, 0xFFFF},
	} {
		want := uint32(c.lo) + uint32(c.hi)*65536
		assert.Equal(t, want, JoinRegisters(c.lo, c.hi))
	}
}

func TestSplitRegistersRoundtrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 65535, 65536, 0x00012345, 0xFFFFFFFF} {
		lo, hi := SplitRegisters(v)
		assert.Equal(t, v, JoinRegisters(lo, hi))
	}
}

func TestApplyScale(t *testing.T) {
	assert.EqualValues(t, 12345, ApplyScale(12345, ScaleNone))
	assert.EqualValues(t, 1234.5, ApplyScale(12345, ScaleDeci))
	assert.EqualValues(t, 123.45, ApplyScale(12345, ScaleCenti))
	assert.EqualValues(t, 12.345, ApplyScale(12345, ScaleMilli))

	// negative raw values scale the same way
	assert.EqualValues(t, -23.5, ApplyScale(-235, ScaleDeci))

	// a zero factor is treated as no scaling, not a division by zero
	assert.EqualValues(t, 100, ApplyScale(100, 0))
}

func TestSignedAtWidth(t *testing.T) {
	require := require.New(t)

	// 16-bit two's complement
	require.EqualValues(0, signedAtWidth(0, 1))
	require.EqualValues(32767, signedAtWidth(0x7FFF, 1))
	require.EqualValues(-1, signedAtWidth(0xFFFF, 1))
	require.EqualValues(-32768, signedAtWidth(0x8000, 1))

	// 32-bit two's complement
	require.EqualValues(2147483647, signedAtWidth(0x7FFFFFFF, 2))
	require.EqualValues(-1, signedAtWidth(0xFFFFFFFF, 2))
	require.EqualValues(-2147483648, signedAtWidth(0x80000000, 2))
}

func TestClampPercent(t *testing.T) {
	assert.EqualValues(t, 0, ClampPercent(-5))
	assert.EqualValues(t, 0, ClampPercent(0))
	assert.EqualValues(t, 85, ClampPercent(85))
	assert.EqualValues(t, 100, ClampPercent(100))
	assert.EqualValues(t, 100, ClampPercent(144))
}

func TestFieldDecode(t *testing.T) {
	require := require.New(t)

	img := RegisterImage{10: 235, 11: 0xFFFF, 12: 0xFFFF}

	v, ok := u16(10, ScaleDeci).Decode(img)
	require.True(ok)
	require.EqualValues(23.5, v)

	// signed 16-bit
	v, ok = s16(11, ScaleNone).Decode(img)
	require.True(ok)
	require.EqualValues(-1, v)

	// 32-bit joins the pair before interpreting the sign
	v, ok = u32(11, ScaleNone).Decode(img)
	require.True(ok)
	require.EqualValues(4294967295, v)
	v, ok = s32(11, ScaleNone).Decode(img)
	require.True(ok)
	require.EqualValues(-1, v)

	// a nil field means the family does not expose the quantity
	var absent *RegisterField
	_, ok = absent.Decode(img)
	require.False(ok)
	require.EqualValues(7, absent.DecodeOr(img, 7))

	// image not covering the field behaves like absence
	_, ok = u16(99, ScaleNone).Decode(img)
	require.False(ok)

	// a 32-bit field with only its low word in the image is incomplete
	_, ok = u32(12, ScaleNone).Decode(img)
	require.False(ok)
}
