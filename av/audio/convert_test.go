package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConverter_Identity(t *testing.T) {
	c, err := newConverter(48000, 2, 48000, 2)
	require.NoError(t, err)

	in := []int16{1, 2, 3, 4}
	out := c.convert(in)
	assert.Equal(t, in, out)
}

func TestConverter_ChannelMapping(t *testing.T) {
	t.Run("mono to stereo", func(t *testing.T) {
		c, err := newConverter(8000, 1, 8000, 2)
		require.NoError(t, err)

		out := c.convert([]int16{1000, -1000})
		require.Len(t, out, 4)
		assert.InDelta(t, 1000, out[0], 1)
		assert.InDelta(t, 1000, out[1], 1)
		assert.InDelta(t, -1000, out[2], 1)
		assert.InDelta(t, -1000, out[3], 1)
	})

	t.Run("stereo to mono", func(t *testing.T) {
		c, err := newConverter(8000, 2, 8000, 1)
		require.NoError(t, err)

		out := c.convert([]int16{1000, 3000, -2000, 0})
		require.Len(t, out, 2)
		assert.InDelta(t, 2000, out[0], 1)
		assert.InDelta(t, -1000, out[1], 1)
	})
}

func TestConverter_Resample(t *testing.T) {
	c, err := newConverter(48000, 1, 8000, 1)
	require.NoError(t, err)

	in := make([]int16, 4800)
	for i := range in {
		in[i] = int16(8000 * math.Sin(2*math.Pi*440*float64(i)/48000))
	}

	out := c.convert(in)
	assert.Greater(t, len(out), 600)
	assert.LessOrEqual(t, len(out), 864)
}

func TestConverter_Invalid(t *testing.T) {
	_, err := newConverter(0, 1, 8000, 1)
	assert.ErrorIs(t, err, ErrInvalidFormat)

	_, err = newConverter(8000, 3, 8000, 1)
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestToInt16_Clips(t *testing.T) {
	assert.Equal(t, int16(math.MaxInt16), toInt16(1.5))
	assert.Equal(t, int16(math.MinInt16), toInt16(-1.5))
	assert.Equal(t, int16(0), toInt16(0))
}
