package sim

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
)

// encodeTestPattern renders a colour-bar gradient that shifts with seq and
// encodes it as JPEG.
func encodeTestPattern(width, height, quality, seq int) ([]byte, error) {
	if width <= 0 {
		width = 64
	}
	if height <= 0 {
		height = 48
	}
	if quality <= 0 {
		quality = jpeg.DefaultQuality
	}

	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio420)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			bar := (x*8/width + seq) % 8
			r := uint8(255 * (bar & 1))
			g := uint8(255 * ((bar >> 1) & 1))
			bl := uint8(255 * ((bar >> 2) & 1))
			shade := uint8(y * 255 / height)
			yy, cb, cr := color.RGBToYCbCr(r^shade>>2, g^shade>>2, bl^shade>>2)
			img.Y[img.YOffset(x, y)] = yy
			ci := img.COffset(x, y)
			img.Cb[ci] = cb
			img.Cr[ci] = cr
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
