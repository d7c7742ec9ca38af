package convert

import (
	"bytes"
	"context"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"strconv"

	"fileforge/internal/faults"
)

// ImageConverter re-encodes raster images between JPEG, PNG, and GIF. The
// "quality" option controls JPEG output; "resolution" is rejected here
// because pure re-encoding does not resample.
type ImageConverter struct {
	jpegQuality int
}

// NewImageConverter returns an image converter with a default JPEG quality.
func NewImageConverter(jpegQuality int) *ImageConverter {
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = 85
	}
	return &ImageConverter{jpegQuality: jpegQuality}
}

func (c *ImageConverter) Convert(ctx context.Context, req Request, progress ProgressFunc) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	progress = ensureProgress(progress)

	img, _, err := image.Decode(bytes.NewReader(req.Data))
	if err != nil {
		return nil, faults.Wrap(faults.ErrConversion, "convert", "image", "decode "+req.SourceFormat, err)
	}
	progress(50)

	var buf bytes.Buffer
	switch req.TargetFormat {
	case "jpg", "jpeg":
		quality := c.jpegQuality
		if raw, ok := req.Options["quality"]; ok {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 || parsed > 100 {
				return nil, faults.Wrap(faults.ErrValidation, "convert", "image", "invalid quality option: "+raw, nil)
			}
			quality = parsed
		}
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	case "png":
		err = png.Encode(&buf, img)
	case "gif":
		err = gif.Encode(&buf, img, nil)
	default:
		return nil, faults.Wrap(faults.ErrConversion, "convert", "image", "unsupported image format: "+req.TargetFormat, nil)
	}
	if err != nil {
		return nil, faults.Wrap(faults.ErrConversion, "convert", "image", "encode "+req.TargetFormat, err)
	}
	progress(100)
	return buf.Bytes(), nil
}
