package embedding

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// CLIP normalization constants (ViT-B/32 image encoder).
var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// Preprocess prepares img for a CLIP image encoder: the shortest side is resized to size,
// the center size×size square is cropped, and channels are scaled to [0,1] and normalized
// with the CLIP mean and std. The result is a CHW float32 tensor of length 3*size*size.
func Preprocess(img image.Image, size int) []float32 {
	square := resizeAndCrop(img, size)
	plane := size * size
	out := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		row := square.Pix[y*square.Stride:]
		for x := 0; x < size; x++ {
			p := flatten(color.NRGBA{R: row[4*x], G: row[4*x+1], B: row[4*x+2], A: row[4*x+3]})
			i := y*size + x
			out[i] = (float32(p.R)/255 - clipMean[0]) / clipStd[0]
			out[plane+i] = (float32(p.G)/255 - clipMean[1]) / clipStd[1]
			out[2*plane+i] = (float32(p.B)/255 - clipMean[2]) / clipStd[2]
		}
	}
	return out
}

func resizeAndCrop(img image.Image, size int) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	scaledW, scaledH := size, size
	if w < h {
		scaledH = (h*size + w/2) / w
	} else {
		scaledW = (w*size + h/2) / h
	}
	scaled := image.NewNRGBA(image.Rect(0, 0, scaledW, scaledH))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, b, draw.Src, nil)

	x0 := (scaledW - size) / 2
	y0 := (scaledH - size) / 2
	square := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.Copy(square, image.Point{}, scaled, image.Rect(x0, y0, x0+size, y0+size), draw.Src, nil)
	return square
}
