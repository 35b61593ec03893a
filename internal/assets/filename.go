package assets

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/RecoveryAshes/sitesnap/internal/models"
)

const (
	// maxStemLength 文件名主体最大长度
	maxStemLength = 40
	// hashLength URL哈希后缀长度(十六进制字符)
	hashLength = 10
	// fallbackStem URL没有路径段时使用的文件名
	fallbackStem = "asset"
)

var (
	unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)
	extensionPattern    = regexp.MustCompile(`^[a-z0-9]{1,5}$`)
)

// categoryExtensions 各类别允许保留的URL扩展名
var categoryExtensions = map[models.AssetCategory]map[string]bool{
	models.CategoryImage: setOf("png", "jpg", "jpeg", "gif", "webp", "svg", "avif", "bmp", "ico", "tif", "tiff", "apng", "jfif"),
	models.CategoryFont:  setOf("woff", "woff2", "ttf", "otf", "eot", "svg"),
	models.CategoryIcon:  setOf("ico", "png", "svg", "gif", "jpg", "jpeg", "webp"),
	models.CategoryMedia: setOf("mp4", "webm", "ogg", "ogv", "oga", "mp3", "wav", "m4a", "m4v", "mov", "flac", "aac", "vtt", "srt"),
}

// mimeExtensions data: URL的MIME类型到扩展名
var mimeExtensions = map[string]string{
	"image/png":                "png",
	"image/jpeg":               "jpg",
	"image/jpg":                "jpg",
	"image/gif":                "gif",
	"image/webp":               "webp",
	"image/avif":               "avif",
	"image/svg+xml":            "svg",
	"image/bmp":                "bmp",
	"image/x-icon":             "ico",
	"image/vnd.microsoft.icon": "ico",
	"font/woff":                "woff",
	"font/woff2":               "woff2",
	"font/ttf":                 "ttf",
	"font/otf":                 "otf",
	"application/font-woff":    "woff",
	"application/font-woff2":   "woff2",
	"application/x-font-ttf":   "ttf",
	"application/x-font-woff":  "woff",
	"video/mp4":                "mp4",
	"video/webm":               "webm",
	"audio/mpeg":               "mp3",
	"audio/ogg":                "ogg",
	"audio/wav":                "wav",
}

func setOf(values ...string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

// URLHash 规范URL的短哈希
func URLHash(canonicalURL string) string {
	sum := sha256.Sum256([]byte(canonicalURL))
	return hex.EncodeToString(sum[:])[:hashLength]
}

// MakeAssetFilename 为远程资源生成稳定且不冲突的本地文件名
func MakeAssetFilename(canonicalURL string, category models.AssetCategory) string {
	// 先拆扩展名再清理, 非ASCII文件名清理后不能只剩 ".ext"
	stem, ext := splitExtension(lastPathSegment(canonicalURL))
	stem = strings.Trim(unsafeFilenameChars.ReplaceAllString(stem, ""), ".")
	if stem == "" {
		stem = fallbackStem
	}
	if len(stem) > maxStemLength {
		stem = stem[:maxStemLength]
	}
	return stem + "_" + URLHash(canonicalURL) + "." + chooseExtension(ext, category)
}

// EmbeddedFilename 为data: URL资源合成文件名(没有可哈希的URL,使用时间+随机后缀)
func EmbeddedFilename(mimeType string, category models.AssetCategory, now time.Time) string {
	ext, ok := mimeExtensions[strings.ToLower(mimeType)]
	if !ok || (category != models.CategoryImage && !categoryExtensions[category][ext]) {
		ext = chooseExtension("", category)
	}
	return fmt.Sprintf("embedded_%d_%s.%s", now.UnixMilli(), models.ShortID(), ext)
}

func lastPathSegment(rawURL string) string {
	var p string
	if parsed, err := url.Parse(rawURL); err == nil {
		p = parsed.Path
	} else {
		p = rawURL
		if i := strings.IndexAny(p, "?#"); i >= 0 {
			p = p[:i]
		}
	}
	return p[strings.LastIndex(p, "/")+1:]
}

func splitExtension(segment string) (stem, ext string) {
	i := strings.LastIndex(segment, ".")
	if i <= 0 {
		return segment, ""
	}
	return segment[:i], strings.ToLower(segment[i+1:])
}

func chooseExtension(ext string, category models.AssetCategory) string {
	switch category {
	case models.CategoryScript:
		return "js"
	case models.CategoryStyle:
		return "css"
	}
	if extensionPattern.MatchString(ext) && categoryExtensions[category][ext] {
		return ext
	}
	return category.DefaultExtension()
}

// categoryFromExtension 根据URL扩展名推断CSS中url()引用的类别
func categoryFromExtension(rawURL string) models.AssetCategory {
	_, ext := splitExtension(lastPathSegment(rawURL))
	switch {
	case ext == "css":
		return models.CategoryStyle
	case ext == "svg":
		return models.CategoryImage
	case categoryExtensions[models.CategoryFont][ext]:
		return models.CategoryFont
	case categoryExtensions[models.CategoryMedia][ext]:
		return models.CategoryMedia
	default:
		return models.CategoryImage
	}
}

// categoryForMime 内嵌资源按MIME修正类别
func categoryForMime(mimeType string, fallback models.AssetCategory) models.AssetCategory {
	mt := strings.ToLower(mimeType)
	switch {
	case strings.HasPrefix(mt, "font/") || strings.Contains(mt, "font"):
		return models.CategoryFont
	case strings.HasPrefix(mt, "video/") || strings.HasPrefix(mt, "audio/"):
		return models.CategoryMedia
	case strings.HasPrefix(mt, "image/") && fallback != models.CategoryIcon:
		return models.CategoryImage
	default:
		return fallback
	}
}
