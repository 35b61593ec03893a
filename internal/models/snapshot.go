package models

import "time"

// PageSnapshot 页面源渲染完成后交给管线的DOM快照
type PageSnapshot struct {
	URL        string    `json:"url"`
	FinalURL   string    `json:"final_url"`
	HTML       string    `json:"-"`
	Title      string    `json:"title,omitempty"`
	SourceName string    `json:"source"`
	CapturedAt time.Time `json:"captured_at"`
}

// BaseURL 解析相对引用的基准地址
func (s *PageSnapshot) BaseURL() string {
	if s.FinalURL != "" {
		return s.FinalURL
	}
	return s.URL
}

// FetchResult 一次字节下载的结果
type FetchResult struct {
	URL         string
	FinalURL    string
	Redirects   []string
	StatusCode  int
	ContentType string
	Body        []byte
}

// SnapshotMeta 写入输出项目的元数据
type SnapshotMeta struct {
	RunID       string    `json:"run_id"`
	SourceURL   string    `json:"source_url"`
	Framework   string    `json:"framework"`
	Complexity  string    `json:"complexity"`
	GeneratedAt time.Time `json:"generated_at"`
	Generator   string    `json:"generator"`
}

// RewriteStats 引用改写统计
type RewriteStats struct {
	LocalRefs        int `json:"local_refs"`
	FallbackRefs     int `json:"fallback_refs"`
	EmbeddedRefs     int `json:"embedded_refs"`
	LinksAbsolutized int `json:"links_absolutized"`
	LinksExternal    int `json:"links_external"`
	// Warnings 没有对应目录记录的引用
	Warnings []string `json:"warnings,omitempty"`
}

// EmitResult 输出阶段统计
type EmitResult struct {
	Files              []string `json:"files"`
	StylesConsolidated int      `json:"styles_consolidated"`
	ScriptsInlined     int      `json:"scripts_inlined"`
	TrackersRemoved    int      `json:"trackers_removed"`
	BytesWritten       int64    `json:"bytes_written"`
}
