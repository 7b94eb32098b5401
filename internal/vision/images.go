package vision

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/samcharles93/sparsevit/internal/attention"
)

var (
	ImageNetDefaultMean = [3]float32{0.485, 0.456, 0.406}
	ImageNetDefaultSTD  = [3]float32{0.229, 0.224, 0.225}
)

// Images is a (B, H, W, C) float32 tensor in channel-last layout.
type Images struct {
	B, H, W, C int
	Data       []float32
}

// NewImages allocates a zeroed image batch.
func NewImages(b, h, w, c int) Images {
	return Images{B: b, H: h, W: w, C: c, Data: make([]float32, b*h*w*c)}
}

// At returns the flat offset of pixel (y, x), channel ch, in example b.
func (im Images) At(b, y, x, ch int) int {
	return ((b*im.H+y)*im.W+x)*im.C + ch
}

// Example returns the H*W*C values of example b.
func (im Images) Example(b int) []float32 {
	size := im.H * im.W * im.C
	return im.Data[b*size : (b+1)*size]
}

// StackImages copies same-sized HWC pixel arrays into one batch.
func StackImages(h, w, c int, pixels ...[]float32) (Images, error) {
	out := NewImages(len(pixels), h, w, c)
	for b, p := range pixels {
		if len(p) != h*w*c {
			return Images{}, attention.ShapeErrorf("image %d has %d values, want %dx%dx%d", b, len(p), h, w, c)
		}
		copy(out.Example(b), p)
	}
	return out, nil
}

// Decode reads a PNG, JPEG, GIF, BMP, TIFF or WebP image.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Resize scales img to size x size with bilinear interpolation.
func Resize(img image.Image, size int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Rect, img, img.Bounds(), draw.Over, nil)
	return dst
}

// Normalize returns the HWC RGB values of img rescaled to [0, 1] and then
// standardised with mean and std.
func Normalize(img image.Image, mean, std [3]float32) []float32 {
	bounds := img.Bounds()
	out := make([]float32, 0, bounds.Dx()*bounds.Dy()*3)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			out = append(out,
				(float32(r>>8)/255.0-mean[0])/std[0],
				(float32(g>>8)/255.0-mean[1])/std[1],
				(float32(b>>8)/255.0-mean[2])/std[2],
			)
		}
	}
	return out
}

// Preprocess decodes, resizes and normalizes one RGB image into an HWC
// pixel array of size x size x 3.
func Preprocess(r io.Reader, size int) ([]float32, error) {
	img, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return Normalize(Resize(img, size), ImageNetDefaultMean, ImageNetDefaultSTD), nil
}
