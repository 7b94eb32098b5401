package vision

import (
	"fmt"
	"math"

	"github.com/samcharles93/sparsevit/internal/attention"
	"github.com/samcharles93/sparsevit/internal/tensor"
)

// Stages is the number of conv+pool stages; each halves H and W.
const Stages = 3

// depthwiseConv is a 3x3, stride 1, zero padded convolution applied to each
// channel independently.
type depthwiseConv struct {
	channels int
	kernel   tensor.Mat // (channels x 9)
	bias     []float32
}

// FeatureExtractor runs three depthwise conv → ReLU → 2x2 max pool stages.
type FeatureExtractor struct {
	Channels int
	stages   [Stages]depthwiseConv
}

// NewFeatureExtractor allocates an extractor for images with the given
// channel count.
func NewFeatureExtractor(channels int) (*FeatureExtractor, error) {
	if channels <= 0 {
		return nil, attention.ConfigErrorf("channels must be positive, got %d", channels)
	}
	f := &FeatureExtractor{Channels: channels}
	for i := range f.stages {
		f.stages[i] = depthwiseConv{
			channels: channels,
			kernel:   tensor.NewMat(channels, 9),
			bias:     make([]float32, channels),
		}
	}
	return f, nil
}

// Init fills the kernels from seed.
func (f *FeatureExtractor) Init(seed int64) {
	for i := range f.stages {
		tensor.FillRand(&f.stages[i].kernel, seed+int64(i))
		clear(f.stages[i].bias)
	}
}

// Params lists the kernels under "extractor.".
func (f *FeatureExtractor) Params() []tensor.Param {
	var out []tensor.Param
	for i := range f.stages {
		prefix := fmt.Sprintf("extractor.%d", i)
		out = append(out,
			tensor.MatParam(prefix+".kernel", &f.stages[i].kernel),
			tensor.VecParam(prefix+".bias", f.stages[i].bias),
		)
	}
	return out
}

// OutputSize returns the spatial size after all stages for an input side.
func OutputSize(side int) int {
	for range Stages {
		side /= 2
	}
	return side
}

// Forward returns a (B, H/8, W/8, C) feature map.
func (f *FeatureExtractor) Forward(in Images) (Images, error) {
	if in.C != f.Channels {
		return Images{}, attention.ShapeErrorf("extractor expects %d channels, got %d", f.Channels, in.C)
	}
	if OutputSize(in.H) == 0 || OutputSize(in.W) == 0 {
		return Images{}, attention.ShapeErrorf("image %dx%d too small for %d pooling stages", in.H, in.W, Stages)
	}
	x := in
	for i := range f.stages {
		x = f.stages[i].forward(x)
		tensor.Relu(x.Data)
		x = maxPool2(x)
	}
	return x, nil
}

func (c *depthwiseConv) forward(in Images) Images {
	out := NewImages(in.B, in.H, in.W, in.C)
	for b := 0; b < in.B; b++ {
		for y := 0; y < in.H; y++ {
			for x := 0; x < in.W; x++ {
				for ch := 0; ch < in.C; ch++ {
					k := c.kernel.Row(ch)
					sum := c.bias[ch]
					for ky := -1; ky <= 1; ky++ {
						yy := y + ky
						if yy < 0 || yy >= in.H {
							continue
						}
						for kx := -1; kx <= 1; kx++ {
							xx := x + kx
							if xx < 0 || xx >= in.W {
								continue
							}
							sum += k[(ky+1)*3+kx+1] * in.Data[in.At(b, yy, xx, ch)]
						}
					}
					out.Data[out.At(b, y, x, ch)] = sum
				}
			}
		}
	}
	return out
}

// maxPool2 is a 2x2, stride 2 max pool. An odd trailing row or column is
// dropped.
func maxPool2(in Images) Images {
	out := NewImages(in.B, in.H/2, in.W/2, in.C)
	for b := 0; b < in.B; b++ {
		for y := 0; y < out.H; y++ {
			for x := 0; x < out.W; x++ {
				for ch := 0; ch < in.C; ch++ {
					m := float32(math.Inf(-1))
					for dy := 0; dy < 2; dy++ {
						for dx := 0; dx < 2; dx++ {
							m = max(m, in.Data[in.At(b, 2*y+dy, 2*x+dx, ch)])
						}
					}
					out.Data[out.At(b, y, x, ch)] = m
				}
			}
		}
	}
	return out
}
