package models

import (
	"fmt"
	"time"

	"golang.org/x/net/html"
)

// AssetCategory 资源类别
type AssetCategory string

const (
	CategoryImage  AssetCategory = "image"  // 图片
	CategoryStyle  AssetCategory = "style"  // 样式表
	CategoryScript AssetCategory = "script" // 脚本
	CategoryFont   AssetCategory = "font"   // 字体
	CategoryIcon   AssetCategory = "icon"   // 图标
	CategoryMedia  AssetCategory = "media"  // 音视频
)

// AllCategories 按输出目录顺序排列的全部类别
var AllCategories = []AssetCategory{
	CategoryImage,
	CategoryStyle,
	CategoryScript,
	CategoryFont,
	CategoryIcon,
	CategoryMedia,
}

// Dir 返回类别在 assets/ 下的子目录名
func (c AssetCategory) Dir() string {
	switch c {
	case CategoryImage:
		return "images"
	case CategoryStyle:
		return "styles"
	case CategoryScript:
		return "scripts"
	case CategoryFont:
		return "fonts"
	case CategoryIcon:
		return "icons"
	default:
		return "media"
	}
}

// DefaultExtension 类别默认扩展名(URL中没有可用扩展名时使用)
func (c AssetCategory) DefaultExtension() string {
	switch c {
	case CategoryImage:
		return "png"
	case CategoryStyle:
		return "css"
	case CategoryScript:
		return "js"
	case CategoryFont:
		return "woff2"
	case CategoryIcon:
		return "ico"
	default:
		return "bin"
	}
}

// AssetOrigin 资源来源
type AssetOrigin string

const (
	OriginEmbedded AssetOrigin = "embedded-data" // data: URL内嵌数据
	OriginRemote   AssetOrigin = "remote-fetch"  // 需要网络下载
)

// FetchState 下载状态
type FetchState string

const (
	FetchPending FetchState = "pending" // 待下载
	FetchFetched FetchState = "fetched" // 已下载
	FetchFailed  FetchState = "failed"  // 下载失败
)

// RefKind 引用位置类型
type RefKind string

const (
	RefAttribute   RefKind = "attribute"    // 普通URL属性 (src/href/poster...)
	RefSrcset      RefKind = "srcset"       // 响应式srcset列表
	RefInlineStyle RefKind = "inline-style" // style="" 属性中的 url()
	RefStyleBlock  RefKind = "style-block"  // <style> 块中的 url()
	RefStylesheet  RefKind = "stylesheet"   // 外部样式表正文中的 url()
	RefProxyTarget RefKind = "proxy-target" // 代理图片URL中解出的真实目标
)

// Reference 一个引用资源的DOM/CSS位置
type Reference struct {
	Kind      RefKind `json:"kind"`
	Tag       string  `json:"tag,omitempty"`
	Attr      string  `json:"attr,omitempty"`
	NodeIndex int     `json:"node_index"`
	Raw       string  `json:"raw"`
	// Owner 外部样式表引用时为样式表的规范URL
	Owner string `json:"owner,omitempty"`

	Node *html.Node `json:"-"`
}

// SameLocation 判断两个引用是否指向同一位置
func (r Reference) SameLocation(other Reference) bool {
	return r.Kind == other.Kind &&
		r.Node == other.Node &&
		r.Attr == other.Attr &&
		r.Owner == other.Owner &&
		r.Raw == other.Raw
}

// AssetRecord 资源目录中的一条记录
// 每个规范URL只对应一条记录,状态只允许 pending→fetched 或 pending→failed
type AssetRecord struct {
	ID            string        `json:"id"`
	CanonicalURL  string        `json:"canonical_url,omitempty"`
	Category      AssetCategory `json:"category"`
	LocalFilename string        `json:"local_filename"`
	Origin        AssetOrigin   `json:"origin"`
	FetchState    FetchState    `json:"fetch_state"`
	References    []Reference   `json:"references"`

	// ProxyTarget 代理URL解码出的目标规范URL
	ProxyTarget string `json:"proxy_target,omitempty"`
	// MimeType data: URL声明的MIME类型
	MimeType string `json:"mime_type,omitempty"`

	// 下载结果
	FinalURL    string        `json:"final_url,omitempty"`
	Redirects   int           `json:"redirects,omitempty"`
	StatusCode  int           `json:"status_code,omitempty"`
	ContentType string        `json:"content_type,omitempty"`
	Size        int64         `json:"size"`
	FailReason  FailureReason `json:"fail_reason,omitempty"`
	FailMessage string        `json:"fail_message,omitempty"`

	DiscoveredAt time.Time `json:"discovered_at"`
	SettledAt    time.Time `json:"settled_at,omitempty"`

	// Content 样式表与内嵌资源保留在内存中的原始字节
	Content []byte `json:"-"`
}

// LocalPath 返回相对于输出根目录的本地路径, prefix用于样式表副本中的 "../"
func (r *AssetRecord) LocalPath(prefix string) string {
	if prefix != "" {
		return prefix + r.Category.Dir() + "/" + r.LocalFilename
	}
	return "assets/" + r.Category.Dir() + "/" + r.LocalFilename
}

// BaseURL 解析该资源内部相对引用时使用的基准URL(跟随重定向后的最终地址)
func (r *AssetRecord) BaseURL() string {
	if r.FinalURL != "" {
		return r.FinalURL
	}
	return r.CanonicalURL
}

// IsEmbedded 是否为data: URL内嵌资源
func (r *AssetRecord) IsEmbedded() bool {
	return r.Origin == OriginEmbedded
}

// Settled 状态是否已确定
func (r *AssetRecord) Settled() bool {
	return r.FetchState == FetchFetched || r.FetchState == FetchFailed
}

// AddReference 追加引用位置,同一位置只记录一次
func (r *AssetRecord) AddReference(ref Reference) bool {
	for _, existing := range r.References {
		if existing.SameLocation(ref) {
			return false
		}
	}
	r.References = append(r.References, ref)
	return true
}

// MarkFetched 标记下载成功
func (r *AssetRecord) MarkFetched(result *FetchResult, size int64) error {
	if r.FetchState != FetchPending {
		return fmt.Errorf("%w: %s %s→%s", ErrInvalidTransition, r.CanonicalURL, r.FetchState, FetchFetched)
	}
	r.FetchState = FetchFetched
	r.Size = size
	if result != nil {
		r.FinalURL = result.FinalURL
		r.Redirects = len(result.Redirects)
		r.StatusCode = result.StatusCode
		r.ContentType = result.ContentType
	}
	r.SettledAt = time.Now()
	return nil
}

// MarkFailed 标记下载失败,记录保留原始URL
func (r *AssetRecord) MarkFailed(reason FailureReason, cause error) error {
	if r.FetchState != FetchPending {
		return fmt.Errorf("%w: %s %s→%s", ErrInvalidTransition, r.CanonicalURL, r.FetchState, FetchFailed)
	}
	r.FetchState = FetchFailed
	r.FailReason = reason
	if cause != nil {
		r.FailMessage = cause.Error()
	}
	r.SettledAt = time.Now()
	return nil
}
