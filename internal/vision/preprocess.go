package vision

import (
	"image"

	"github.com/nfnt/resize"
)

// tensorize resizes img to size x size and writes it into dst as planar RGB
// scaled to [0,1]. dst must hold 3*size*size values.
func tensorize(img image.Image, size int, dst []float32) {
	resized := resize.Resize(uint(size), uint(size), img, resize.Bilinear)
	plane := size * size

	if rgba, ok := resized.(*image.RGBA); ok {
		for y := 0; y < size; y++ {
			row := rgba.Pix[rgba.PixOffset(rgba.Rect.Min.X, rgba.Rect.Min.Y+y):]
			for x := 0; x < size; x++ {
				i := y*size + x
				p := row[x*4 : x*4+3]
				dst[i] = float32(p[0]) / 255
				dst[plane+i] = float32(p[1]) / 255
				dst[2*plane+i] = float32(p[2]) / 255
			}
		}
		return
	}

	bounds := resized.Bounds()
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			i := y*size + x
			dst[i] = float32(r>>8) / 255
			dst[plane+i] = float32(g>>8) / 255
			dst[2*plane+i] = float32(b>>8) / 255
		}
	}
}
