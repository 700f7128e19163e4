package detector

import (
	"bytes"
	"image/jpeg"

	"github.com/nfnt/resize"
)

const uploadQuality = 85

// Downscale shrinks a JPEG to maxWidth pixels wide before upload, keeping the
// aspect ratio. It returns the encoded image and the scale applied (new/old).
// Images already narrow enough, or maxWidth <= 0, pass through unchanged.
func Downscale(data []byte, width, maxWidth int) ([]byte, float64, error) {
	if maxWidth <= 0 || width <= maxWidth {
		return data, 1, nil
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, err
	}
	small := resize.Resize(uint(maxWidth), 0, img, resize.Bilinear)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, small, &jpeg.Options{Quality: uploadQuality}); err != nil {
		return nil, 0, err
	}
	scale := float64(small.Bounds().Dx()) / float64(img.Bounds().Dx())
	return buf.Bytes(), scale, nil
}

// scaleBoxes maps boxes found on a downscaled image back to frame pixels.
func scaleBoxes(faces []Box, scale float64) []Box {
	if scale == 1 || scale <= 0 {
		return faces
	}
	for i := range faces {
		faces[i].X /= scale
		faces[i].Y /= scale
		faces[i].Width /= scale
		faces[i].Height /= scale
	}
	return faces
}
