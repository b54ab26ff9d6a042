// Package preprocess converts decoded images into the tensor layout the
// detection models expect.
package preprocess

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// ImageToTensor scales img to w x h and returns it as a CHW float32
// tensor: three planes R, G, B in that order, each value normalized to
// [0, 1]. The result has length 3*w*h and matches a [1, 3, h, w] input
// declaration once a batch dimension is prepended.
func ImageToTensor(img image.Image, w, h int) ([]float32, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid tensor size %dx%d", w, h)
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	plane := w * h
	t := make([]float32, 3*plane)
	for y := 0; y < h; y++ {
		row := dst.Pix[y*dst.Stride:]
		for x := 0; x < w; x++ {
			i := y*w + x
			p := x * 4
			t[i] = float32(row[p]) / 255
			t[plane+i] = float32(row[p+1]) / 255
			t[2*plane+i] = float32(row[p+2]) / 255
		}
	}
	return t, nil
}
