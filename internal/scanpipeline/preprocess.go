package scanpipeline

import (
	"bytes"
	"image"
	"image/draw"
	"image/jpeg"
	_ "image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"

	verrors "github.com/bpomverify/bpomverify/internal/errors"
)

// maxLongestSide is the longest-edge cap the pre-step resizes against.
const maxLongestSide = 1600

// decodeAndResize decodes an image buffer and, if its longest side exceeds
// maxLongestSide, scales it down proportionally. Scaling uses x/image/draw's
// bilinear sampler, the closest pure-Go equivalent to area interpolation for
// downsampling available outside a CGO-bound imaging library.
func decodeAndResize(buf []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, verrors.New(verrors.ErrCodeInvalidImage, "failed to decode image", err)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := w
	if h > longest {
		longest = h
	}
	if longest <= maxLongestSide {
		return img, nil
	}

	scale := float64(maxLongestSide) / float64(longest)
	nw, nh := int(float64(w)*scale), int(float64(h)*scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst, nil
}

// cropToJPEG crops img to the pixel rectangle (x1,y1)-(x2,y2) padded by pad
// on every side and clamped to the image bounds, then re-encodes it as JPEG
// for handoff to the OCR port.
func cropToJPEG(img image.Image, x1, y1, x2, y2 float64, pad int) ([]byte, error) {
	b := img.Bounds()
	rect := image.Rect(
		clampInt(int(x1)-pad, b.Min.X, b.Max.X),
		clampInt(int(y1)-pad, b.Min.Y, b.Max.Y),
		clampInt(int(x2)+pad, b.Min.X, b.Max.X),
		clampInt(int(y2)+pad, b.Min.Y, b.Max.Y),
	)
	if rect.Dx() <= 0 || rect.Dy() <= 0 {
		rect = b
	}

	cropped := image.NewRGBA(rect.Sub(rect.Min))
	draw.Draw(cropped, cropped.Bounds(), img, rect.Min, draw.Src)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, cropped, &jpeg.Options{Quality: 90}); err != nil {
		return nil, verrors.New(verrors.ErrCodeInvalidImage, "failed to encode crop", err)
	}
	return out.Bytes(), nil
}

// encodeJPEG re-encodes a whole decoded image as JPEG, used when no title
// box was detected and the crop falls back to the full frame.
func encodeJPEG(img image.Image) ([]byte, error) {
	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, verrors.New(verrors.ErrCodeInvalidImage, "failed to encode image", err)
	}
	return out.Bytes(), nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
