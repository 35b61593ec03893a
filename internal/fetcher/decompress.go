package fetcher

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/RecoveryAshes/sitesnap/internal/utils"
	"github.com/andybalholm/brotli"
)

// DefaultUserAgent 未配置请求头时使用的浏览器UA
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DecompressBody 根据Content-Encoding解压响应体
// 显式设置Accept-Encoding后标准库不会自动解压, 需要在这里处理
func DecompressBody(contentEncoding string, body []byte) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))

	var reader io.Reader
	switch encoding {
	case "", "identity":
		return body, nil
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip解压失败: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		fl := flate.NewReader(bytes.NewReader(body))
		defer fl.Close()
		reader = fl
	case "br":
		reader = brotli.NewReader(bytes.NewReader(body))
	default:
		utils.Warnf("未知的Content-Encoding: %s, 按原样保存", contentEncoding)
		return body, nil
	}

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%s读取失败: %w", encoding, err)
	}
	return decompressed, nil
}
