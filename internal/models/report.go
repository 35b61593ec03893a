package models

import (
	"encoding/json"
	"sort"
	"time"
)

// RunReport 单次快照运行的结果报告
// 由编排器创建并在整个运行中传递,替代全局计数器
type RunReport struct {
	RunID     string    `json:"run_id"`
	TargetURL string    `json:"target_url"`
	FinalURL  string    `json:"final_url"`
	Source    string    `json:"source"`
	OutputDir string    `json:"output_dir"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  float64   `json:"duration"` // 秒

	Detection *DetectionResult `json:"detection,omitempty"`
	Stats     AssetStats       `json:"stats"`
	Failures  []FailureSummary `json:"failures,omitempty"`

	DiscoveryIssues []string      `json:"discovery_issues,omitempty"`
	Rewrite         *RewriteStats `json:"rewrite,omitempty"`
	Emit            *EmitResult   `json:"emit,omitempty"`

	Assets []*AssetRecord `json:"assets"`
}

// AssetStats 资源统计
type AssetStats struct {
	Total      int                   `json:"total"`
	Fetched    int                   `json:"fetched"`
	Failed     int                   `json:"failed"`
	Embedded   int                   `json:"embedded"`
	TotalBytes int64                 `json:"total_bytes"`
	ByCategory map[AssetCategory]int `json:"by_category"`
}

// FailureSummary 按类别和原因聚合的失败计数
type FailureSummary struct {
	Category AssetCategory `json:"category"`
	Reason   FailureReason `json:"reason"`
	Count    int           `json:"count"`
	Examples []string      `json:"examples,omitempty"`
}

// FailedAssetInfo 失败资源明细
type FailedAssetInfo struct {
	URL      string        `json:"url"`
	Category AssetCategory `json:"category"`
	Reason   FailureReason `json:"reason"`
	Message  string        `json:"message"`
}

// maxFailureExamples 每组失败保留的示例URL数量
const maxFailureExamples = 3

// NewRunReport 创建运行报告
func NewRunReport(runID, targetURL string) *RunReport {
	return &RunReport{
		RunID:     runID,
		TargetURL: targetURL,
		StartTime: time.Now(),
		Stats:     AssetStats{ByCategory: make(map[AssetCategory]int)},
	}
}

// Summarize 根据已确定状态的资源记录填充统计与失败聚合
func (r *RunReport) Summarize(records []*AssetRecord) {
	r.Assets = records
	r.Stats = AssetStats{ByCategory: make(map[AssetCategory]int)}

	groups := make(map[[2]string]*FailureSummary)
	for _, rec := range records {
		r.Stats.Total++
		r.Stats.ByCategory[rec.Category]++
		if rec.IsEmbedded() {
			r.Stats.Embedded++
			r.Stats.TotalBytes += rec.Size
			continue
		}
		switch rec.FetchState {
		case FetchFetched:
			r.Stats.Fetched++
			r.Stats.TotalBytes += rec.Size
		case FetchFailed:
			r.Stats.Failed++
			key := [2]string{string(rec.Category), string(rec.FailReason)}
			g, ok := groups[key]
			if !ok {
				g = &FailureSummary{Category: rec.Category, Reason: rec.FailReason}
				groups[key] = g
			}
			g.Count++
			if len(g.Examples) < maxFailureExamples {
				g.Examples = append(g.Examples, rec.CanonicalURL)
			}
		}
	}

	r.Failures = r.Failures[:0]
	for _, g := range groups {
		r.Failures = append(r.Failures, *g)
	}
	sort.Slice(r.Failures, func(i, j int) bool {
		if r.Failures[i].Count != r.Failures[j].Count {
			return r.Failures[i].Count > r.Failures[j].Count
		}
		if r.Failures[i].Category != r.Failures[j].Category {
			return r.Failures[i].Category < r.Failures[j].Category
		}
		return r.Failures[i].Reason < r.Failures[j].Reason
	})
}

// FailedAssets 失败资源明细列表
func (r *RunReport) FailedAssets() []FailedAssetInfo {
	var out []FailedAssetInfo
	for _, rec := range r.Assets {
		if rec.FetchState == FetchFailed {
			out = append(out, FailedAssetInfo{
				URL:      rec.CanonicalURL,
				Category: rec.Category,
				Reason:   rec.FailReason,
				Message:  rec.FailMessage,
			})
		}
	}
	return out
}

// Finish 记录结束时间
func (r *RunReport) Finish() {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime).Seconds()
}

// ToJSON 序列化为JSON
func (r *RunReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
