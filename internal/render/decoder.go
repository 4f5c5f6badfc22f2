package render

import (
	"bytes"
	"image"
	"image/jpeg"

	"github.com/andresmejia3/framewall/internal/utils"
	"github.com/juju/errors"
)

// ContentTypeJPEG is the declared type of every frame on the wire.
const ContentTypeJPEG = "image/jpeg"

// Decoder turns an encoded frame into an image.
type Decoder interface {
	Decode(contentType string, data []byte) (image.Image, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(contentType string, data []byte) (image.Image, error)

func (f DecoderFunc) Decode(contentType string, data []byte) (image.Image, error) {
	return f(contentType, data)
}

// JPEGDecoder decodes baseline and progressive JPEG frames.
type JPEGDecoder struct{}

func (JPEGDecoder) Decode(contentType string, data []byte) (image.Image, error) {
	if contentType != ContentTypeJPEG {
		return nil, errors.NotSupportedf("content type %q", contentType)
	}
	if !utils.IsJPEG(data) {
		return nil, errors.NotValidf("frame of %d bytes without SOI marker", len(data))
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Annotate(err, "jpeg decode")
	}
	return img, nil
}
