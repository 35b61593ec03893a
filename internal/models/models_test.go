package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingRecord(u string, category AssetCategory) *AssetRecord {
	return &AssetRecord{CanonicalURL: u, Category: category, Origin: OriginRemote, FetchState: FetchPending, LocalFilename: "f_0123456789.bin"}
}

func TestAssetRecordTransitions(t *testing.T) {
	rec := pendingRecord("https://example.com/a.css", CategoryStyle)
	assert.False(t, rec.Settled())

	err := rec.MarkFetched(&FetchResult{
		FinalURL:    "https://cdn.example.com/a.css",
		Redirects:   []string{"https://cdn.example.com/a.css"},
		StatusCode:  200,
		ContentType: "text/css",
	}, 42)
	require.NoError(t, err)
	assert.True(t, rec.Settled())
	assert.Equal(t, 1, rec.Redirects)
	assert.Equal(t, "https://cdn.example.com/a.css", rec.BaseURL())
	assert.False(t, rec.SettledAt.IsZero())

	assert.ErrorIs(t, rec.MarkFailed(ReasonNetwork, nil), ErrInvalidTransition)
	assert.ErrorIs(t, rec.MarkFetched(nil, 1), ErrInvalidTransition)
	assert.Equal(t, FetchFetched, rec.FetchState)

	failed := pendingRecord("https://example.com/b.png", CategoryImage)
	require.NoError(t, failed.MarkFailed(ReasonTimeout, errors.New("deadline")))
	assert.Equal(t, "deadline", failed.FailMessage)
	assert.Equal(t, "https://example.com/b.png", failed.BaseURL())
	assert.ErrorIs(t, failed.MarkFetched(nil, 0), ErrInvalidTransition)
}

func TestAssetRecordLocalPath(t *testing.T) {
	rec := &AssetRecord{Category: CategoryFont, LocalFilename: "x_0123456789.woff2"}
	assert.Equal(t, "assets/fonts/x_0123456789.woff2", rec.LocalPath(""))
	assert.Equal(t, "../fonts/x_0123456789.woff2", rec.LocalPath("../"))

	for _, c := range AllCategories {
		assert.NotEmpty(t, c.Dir())
		assert.NotEmpty(t, c.DefaultExtension())
	}
}

func TestAddReferenceDeduplicates(t *testing.T) {
	rec := pendingRecord("https://example.com/a.png", CategoryImage)
	ref := Reference{Kind: RefAttribute, Tag: "img", Attr: "src", Raw: "a.png"}

	assert.True(t, rec.AddReference(ref))
	assert.False(t, rec.AddReference(ref))

	ref.Attr = "data-src"
	assert.True(t, rec.AddReference(ref))
	assert.Len(t, rec.References, 2)
}

func TestRunReportSummarize(t *testing.T) {
	var records []*AssetRecord
	for i, u := range []string{"https://x/1.png", "https://x/2.png", "https://x/3.png", "https://x/4.png"} {
		rec := pendingRecord(u, CategoryImage)
		if i == 0 {
			require.NoError(t, rec.MarkFetched(&FetchResult{StatusCode: 200}, 100))
		} else {
			require.NoError(t, rec.MarkFailed(ReasonHTTPStatus, nil))
		}
		records = append(records, rec)
	}
	font := pendingRecord("https://x/f.woff2", CategoryFont)
	require.NoError(t, font.MarkFailed(ReasonTimeout, nil))
	records = append(records, font)
	records = append(records, &AssetRecord{Category: CategoryIcon, Origin: OriginEmbedded, FetchState: FetchFetched, Size: 10})

	report := NewRunReport("run-1", "https://x/")
	report.Summarize(records)

	assert.Equal(t, 6, report.Stats.Total)
	assert.Equal(t, 1, report.Stats.Fetched)
	assert.Equal(t, 4, report.Stats.Failed)
	assert.Equal(t, 1, report.Stats.Embedded)
	assert.Equal(t, int64(110), report.Stats.TotalBytes)
	assert.Equal(t, 4, report.Stats.ByCategory[CategoryImage])

	require.Len(t, report.Failures, 2)
	assert.Equal(t, FailureSummary{
		Category: CategoryImage,
		Reason:   ReasonHTTPStatus,
		Count:    3,
		Examples: []string{"https://x/2.png", "https://x/3.png", "https://x/4.png"},
	}, report.Failures[0])
	assert.Equal(t, ReasonTimeout, report.Failures[1].Reason)

	assert.Len(t, report.FailedAssets(), 4)

	report.Finish()
	data, err := report.ToJSON()
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])
}

func TestSnapshotConfigValidate(t *testing.T) {
	cfg := DefaultSnapshotConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, int64(50*1024*1024), cfg.MaxAssetBytes())

	tests := []struct {
		name   string
		mutate func(c *SnapshotConfig)
	}{
		{"未知页面源", func(c *SnapshotConfig) { c.Source = "ftp" }},
		{"并发为0", func(c *SnapshotConfig) { c.Workers = 0 }},
		{"超时过大", func(c *SnapshotConfig) { c.AssetTimeout = 601 }},
		{"重定向为负", func(c *SnapshotConfig) { c.MaxRedirects = -1 }},
		{"速率为负", func(c *SnapshotConfig) { c.PerHostRPS = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultSnapshotConfig()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestCliHeadersParse(t *testing.T) {
	headers, err := CliHeaders{"Authorization: Bearer abc", "X-Trace:  1 "}.Parse()
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", headers.Get("Authorization"))
	assert.Equal(t, "1", headers.Get("X-Trace"))

	_, err = CliHeaders{"missing-colon"}.Parse()
	assert.Error(t, err)
}
