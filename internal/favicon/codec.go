package favicon

import (
	"bytes"
	"image"
	"image/png"
)

// encodePNG serializes a decoded icon into its storable form.
func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodePNG turns stored bytes back into a drawable icon.
func decodePNG(data []byte) (image.Image, error) {
	return png.Decode(bytes.NewReader(data))
}
