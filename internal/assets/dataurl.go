package assets

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// DataURL 解码后的data: URL
type DataURL struct {
	MimeType string
	Data     []byte
}

// DecodeDataURL 解码 data:[<mime>][;base64],<payload>
func DecodeDataURL(raw string) (*DataURL, error) {
	if !IsDataURL(raw) {
		return nil, errors.New("不是data: URL")
	}
	meta, payload, ok := strings.Cut(strings.TrimSpace(raw)[5:], ",")
	if !ok {
		return nil, errors.New("data: URL缺少逗号分隔符")
	}

	params := strings.Split(meta, ";")
	mimeType := strings.ToLower(strings.TrimSpace(params[0]))
	if mimeType == "" {
		mimeType = "text/plain"
	}
	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}

	if !isBase64 {
		decoded, err := url.PathUnescape(payload)
		if err != nil {
			return nil, fmt.Errorf("data: URL百分号解码失败: %w", err)
		}
		return &DataURL{MimeType: mimeType, Data: []byte(decoded)}, nil
	}

	cleaned := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
			return -1
		}
		return r
	}, payload)
	if unescaped, err := url.PathUnescape(cleaned); err == nil {
		cleaned = unescaped
	}

	var lastErr error
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		data, err := enc.DecodeString(cleaned)
		if err == nil {
			return &DataURL{MimeType: mimeType, Data: data}, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("data: URL base64解码失败: %w", lastErr)
}
