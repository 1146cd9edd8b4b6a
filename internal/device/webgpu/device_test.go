package webgpu

import (
	"testing"

	"github.com/born-ml/pathfit/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAvailable(t *testing.T) {
	available := IsAvailable()
	t.Logf("WebGPU available: %v", available)
}

func TestRoundTrip(t *testing.T) {
	set, err := NewSet(1)
	if err != nil {
		t.Logf("WebGPU not available: %v", err)
		assert.ErrorIs(t, err, device.ErrUnavailable)
		t.Skip("WebGPU not available on this system")
	}
	defer set.Close()

	d, err := set.Get(0)
	require.NoError(t, err)
	assert.Equal(t, device.WebGPU, d.Kind())

	h, err := d.Alloc(6)
	require.NoError(t, err)
	require.NoError(t, d.Upload(h, []byte{1, 2, 3, 4, 5, 6}))

	out := make([]byte, 6)
	require.NoError(t, d.Download(h, out))
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, out)

	require.NoError(t, d.Free(h))
	assert.Equal(t, 0, d.Stats().ActiveBuffers)
}
