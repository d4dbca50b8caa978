package testutil

import (
	"bytes"
	"image/png"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPNG(t *testing.T) {
	t.Parallel()

	cfg, err := png.DecodeConfig(bytes.NewReader(PNG(t, 7, 3)))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Width)
	assert.Equal(t, 3, cfg.Height)

	data, err := os.ReadFile(WritePNG(t, 2, 2))
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestWaitFor(t *testing.T) {
	t.Parallel()

	ch := make(chan int, 1)
	ch <- 42
	assert.Equal(t, 42, WaitFor(t, ch, ShortTestTimeout, "value not delivered"))
}

func TestPNGHeader(t *testing.T) {
	t.Parallel()

	data := PNGHeader(t, 30000, 20000)
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 30000, cfg.Width)
	assert.Equal(t, 20000, cfg.Height)

	_, err = png.Decode(bytes.NewReader(data))
	assert.Error(t, err, "header has no pixel data")
}
