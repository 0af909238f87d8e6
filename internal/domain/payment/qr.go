package payment

import (
	"github.com/go-faster/errors"
	qrcode "github.com/skip2/go-qrcode"
)

const qrSize = 256

// QRCode renders url as a PNG so customers can pay from another device.
func QRCode(url string) ([]byte, error) {
	if url == "" {
		return nil, errors.New("empty payment url")
	}
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		return nil, errors.Wrap(err, "encode qr")
	}
	return png, nil
}
