package utils

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"log"
	"net/http"

	"github.com/kolesa-team/go-webp/decoder"
	"github.com/kolesa-team/go-webp/webp"
)

const (
	MIMETypePNG  = "image/png"
	MIMETypeJPEG = "image/jpeg"
	MIMETypeWebP = "image/webp"
)

var ErrUnsupportedImage = errors.New("unsupported image type")

// ReferenceImage - 비디오 생성 요청에 첨부되는 이미지
type ReferenceImage struct {
	Data     []byte
	MIMEType string
}

// NormalizeReferenceImage sniffs the uploaded bytes and returns an image the video
// API accepts. PNG and JPEG pass through; WebP is re-encoded as PNG.
func NormalizeReferenceImage(data []byte) (*ReferenceImage, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrUnsupportedImage)
	}

	mimeType := http.DetectContentType(data)
	switch mimeType {
	case MIMETypePNG, MIMETypeJPEG:
		log.Printf("🖼️  Reference image accepted: %s, %d bytes", mimeType, len(data))
		return &ReferenceImage{Data: data, MIMEType: mimeType}, nil

	case MIMETypeWebP:
		pngData, err := ConvertWebPToPNG(data)
		if err != nil {
			return nil, err
		}
		return &ReferenceImage{Data: pngData, MIMEType: MIMETypePNG}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedImage, mimeType)
	}
}

// ConvertWebPToPNG - WebP 바이너리를 PNG로 변환
func ConvertWebPToPNG(webpData []byte) ([]byte, error) {
	log.Printf("🔄 Converting WebP to PNG (%d bytes)", len(webpData))

	img, err := webp.Decode(bytes.NewReader(webpData), &decoder.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to decode WebP: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}

	log.Printf("✅ WebP converted to PNG: %d bytes → %d bytes", len(webpData), buf.Len())
	return buf.Bytes(), nil
}

// Base64Preview - 로그용 base64 앞부분 (최대 n글자)
func Base64Preview(data []byte, n int) string {
	encoded := base64.StdEncoding.EncodeToString(data)
	if len(encoded) <= n {
		return encoded
	}
	return encoded[:n] + "..."
}
