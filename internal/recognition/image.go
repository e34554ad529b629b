package recognition

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var ErrUndecodableImage = errors.New("image could not be decoded")

// DecodeImage decodes JPEG, PNG, GIF, BMP or WebP bytes.
func DecodeImage(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty payload", ErrUndecodableImage)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUndecodableImage, err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, "", fmt.Errorf("%w: zero-sized image", ErrUndecodableImage)
	}
	return img, format, nil
}
