// Package qrcode renders and stores the scannable identity image of a unit.
package qrcode

import (
	"errors"
	"fmt"
	"strings"

	goqrcode "github.com/skip2/go-qrcode"
)

// ErrInvalidIdentity is returned for an empty unit code.
var ErrInvalidIdentity = errors.New("invalid identity: qr code must not be empty")

const (
	// modulePixels is the edge length of one QR module in the PNG.
	modulePixels = 10
	// Recovery level M restores roughly 15% of damaged or covered symbol,
	// enough for stickers on machinery.
	recoveryLevel = goqrcode.Medium
)

// Generate returns a PNG encoding exactly code. The image always uses the
// same module size and the standard 4-module quiet zone so printed labels
// scale consistently.
func Generate(code string) ([]byte, error) {
	if strings.TrimSpace(code) == "" {
		return nil, ErrInvalidIdentity
	}

	q, err := goqrcode.New(code, recoveryLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr code %q: %w", code, err)
	}

	// A negative size asks for a fixed pixel size per module.
	png, err := q.PNG(-modulePixels)
	if err != nil {
		return nil, fmt.Errorf("failed to render qr code %q: %w", code, err)
	}
	return png, nil
}
