package mediabridge

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder

	"github.com/bbrks/go-blurhash"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// blurHashSize bounds the thumbnail the hash is computed from. A placeholder
// needs very little resolution, and 64px keeps encoding in the millisecond range.
const blurHashSize = 64

// ComputeBlurHash generates a BlurHash placeholder for an encoded image.
// Uses 4x3 components, which gives a 20-30 character hash.
func ComputeBlurHash(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	hash, err := blurhash.Encode(4, 3, resizeForBlurHash(img))
	if err != nil {
		return "", fmt.Errorf("encode blurhash: %w", err)
	}
	return hash, nil
}

// resizeForBlurHash scales img down to fit within blurHashSize, keeping the
// aspect ratio. Small images are returned as is.
func resizeForBlurHash(img image.Image) image.Image {
	bounds := img.Bounds()
	srcWidth, srcHeight := bounds.Dx(), bounds.Dy()
	if srcWidth <= blurHashSize && srcHeight <= blurHashSize {
		return img
	}

	dstWidth, dstHeight := blurHashSize, blurHashSize
	if srcWidth > srcHeight {
		dstHeight = max(1, srcHeight*blurHashSize/srcWidth)
	} else {
		dstWidth = max(1, srcWidth*blurHashSize/srcHeight)
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstWidth, dstHeight))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
	return dst
}
