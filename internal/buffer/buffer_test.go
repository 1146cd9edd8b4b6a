package buffer

import (
	"testing"

	"github.com/born-ml/pathfit/internal/device/cpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataType(t *testing.T) {
	assert.Equal(t, 4, Float32.Size())
	assert.Equal(t, 8, Float64.Size())
	assert.Equal(t, Float32, Of[float32]())
	assert.Equal(t, Float64, Of[float64]())

	dt, err := FromWidth(8)
	require.NoError(t, err)
	assert.Equal(t, Float64, dt)
	_, err = FromWidth(2)
	assert.Error(t, err)

	parsed, ok := ParseDataType("float32")
	assert.True(t, ok)
	assert.Equal(t, Float32, parsed)
}

func TestIndex(t *testing.T) {
	assert.Equal(t, 1*3+2, Index(RowMajor, 2, 3, 1, 2))
	assert.Equal(t, 2*2+1, Index(ColMajor, 2, 3, 1, 2))
}

func TestFromSliceAndView(t *testing.T) {
	dev := cpu.New(0)
	b, err := FromSlice(dev, []float64{1, 2, 3, 4, 5, 6}, Shape{2, 3}, RowMajor)
	require.NoError(t, err)
	assert.Equal(t, Float64, b.DType())
	assert.Equal(t, 48, b.ByteSize())
	assert.True(t, b.Owner())

	v, err := View[float64](b)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, v)

	_, err = View[float32](b)
	assert.ErrorIs(t, err, ErrWrongDType)

	got, err := Download[float64](b)
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = FromSlice(dev, []float32{1, 2}, Shape{3}, RowMajor)
	assert.Error(t, err)
}

func TestNullBuffer(t *testing.T) {
	b := Null(Float32)
	assert.True(t, b.IsNull())
	assert.Equal(t, 0, b.NumElements())
	assert.Nil(t, b.Device())
	assert.NoError(t, b.Free())

	_, err := b.Bytes()
	assert.ErrorIs(t, err, ErrNull)

	s := b.Share()
	assert.True(t, s.IsNull())

	var nilBuf *Buffer
	assert.True(t, nilBuf.IsNull())
}

func TestShareIsNotACopy(t *testing.T) {
	dev := cpu.New(0)
	owner, err := FromSlice(dev, []float32{1, 2, 3}, Shape{3}, RowMajor)
	require.NoError(t, err)

	views := make([]*Buffer, 4)
	for i := range views {
		views[i] = owner.Share()
		assert.True(t, views[i].SameStorage(owner))
		assert.False(t, views[i].Owner())
	}
	assert.Equal(t, 5, owner.Refs())
	assert.Equal(t, 1, dev.Stats().ActiveBuffers, "sharing must not allocate")

	assert.ErrorIs(t, views[0].Free(), ErrNotOwner)
	for _, v := range views {
		v.Release()
	}
	assert.Equal(t, 1, owner.Refs())

	require.NoError(t, owner.Free())
	assert.True(t, owner.Freed())
	assert.ErrorIs(t, owner.Free(), ErrFreed)
	assert.Equal(t, 0, dev.Stats().ActiveBuffers)

	_, err = owner.Bytes()
	assert.ErrorIs(t, err, ErrFreed)
}

func TestCopyTo(t *testing.T) {
	src := cpu.New(0)
	dst := cpu.New(1)
	b, err := FromSlice(src, []float64{1, 2, 3, 4}, Shape{2, 2}, ColMajor)
	require.NoError(t, err)

	replica, err := b.CopyTo(dst)
	require.NoError(t, err)
	assert.False(t, replica.SameStorage(b))
	assert.Equal(t, ColMajor, replica.Order())
	assert.Equal(t, 1, replica.Device().Index())

	v, err := View[float64](replica)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4}, v)

	nullReplica, err := Null(Float64).CopyTo(dst)
	require.NoError(t, err)
	assert.True(t, nullReplica.IsNull())
}

func TestFromBytes(t *testing.T) {
	dev := cpu.New(0)
	src, err := FromSlice(dev, []float32{1.5, -2}, Shape{2}, RowMajor)
	require.NoError(t, err)
	raw, err := src.Bytes()
	require.NoError(t, err)

	b, err := FromBytes(dev, raw, Shape{2}, Float32, RowMajor)
	require.NoError(t, err)
	assert.False(t, b.SameStorage(src))
	v, err := Download[float32](b)
	require.NoError(t, err)
	assert.Equal(t, []float32{1.5, -2}, v)

	_, err = FromBytes(dev, raw, Shape{2}, Float64, RowMajor)
	assert.Error(t, err)
}
