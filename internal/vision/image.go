package vision

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/vigilant-eye/facewatch/internal/models"
)

// toCHW resizes img to w×h and lays it out as normalised planar RGB:
//
//	value = (pixel - mean) / std
func toCHW(img image.Image, w, h int, mean, std float32) []float32 {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	plane := w * h
	out := make([]float32, 3*plane)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := dst.PixOffset(x, y)
			idx := y*w + x
			out[idx] = (float32(dst.Pix[off]) - mean) / std
			out[plane+idx] = (float32(dst.Pix[off+1]) - mean) / std
			out[2*plane+idx] = (float32(dst.Pix[off+2]) - mean) / std
		}
	}
	return out
}

// cropFace copies box out of img with 10% padding on each side, clamped to
// the image. It returns nil for boxes outside the image.
func cropFace(img image.Image, box models.BoundingBox) image.Image {
	b := img.Bounds()
	padW := (box.Right - box.Left) / 10
	padH := (box.Bottom - box.Top) / 10

	r := image.Rect(box.Left-padW, box.Top-padH, box.Right+padW, box.Bottom+padH).Intersect(b)
	if r.Empty() {
		return nil
	}

	crop := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(crop, crop.Bounds(), img, r.Min, draw.Src)
	return crop
}
