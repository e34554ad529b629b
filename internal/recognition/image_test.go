package recognition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeImage(t *testing.T) {
	img, format, err := DecodeImage(pngBytes(t, 4, 3))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 4, img.Bounds().Dx())

	_, _, err = DecodeImage(nil)
	assert.ErrorIs(t, err, ErrUndecodableImage)

	_, _, err = DecodeImage([]byte("plain text"))
	assert.ErrorIs(t, err, ErrUndecodableImage)
}
