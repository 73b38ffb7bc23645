// Package qr renders QR codes as inline PNG data URLs.
package qr

import (
	"encoding/base64"
	"errors"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const DefaultSize = 256

// Generator encodes content at a fixed size and recovery level.
type Generator struct {
	Size  int
	Level qrcode.RecoveryLevel
}

func NewGenerator() *Generator {
	return &Generator{Size: DefaultSize, Level: qrcode.Medium}
}

// DataURL returns content as data:image/png;base64,...
func (g *Generator) DataURL(content string) (string, error) {
	if content == "" {
		return "", errors.New("qr: empty content")
	}
	png, err := qrcode.Encode(content, g.Level, g.Size)
	if err != nil {
		return "", fmt.Errorf("qr: encode: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
