package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/RecoveryAshes/sitesnap/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func heuristicResult() *models.DetectionResult {
	next := models.FrameworkScore{Key: "nextjs", DisplayName: "Next.js", Category: models.CategoryMetaFramework, Confidence: 0.9}
	react := models.FrameworkScore{Key: "react", DisplayName: "React", Category: models.CategorySPAFramework, Confidence: 0.6}
	return &models.DetectionResult{
		Scores:     []models.FrameworkScore{next, react},
		Primary:    &next,
		Complexity: models.ComplexityMedium,
		Source:     models.SourceHeuristic,
	}
}

// replyServer 返回固定content的chat completions接口
func replyServer(t *testing.T, content string, seen *chatRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func testAnalyzer(baseURL string) *LLMAnalyzer {
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL + "/v1"
	cfg.APIKey = "test-key"
	cfg.MaxChars = 20
	return NewLLMAnalyzer(cfg, nil)
}

func TestRefineWithValidReply(t *testing.T) {
	var seen chatRequest
	srv := replyServer(t, `{"framework":"React","confidence":0.8,"complexity":"high","notes":"客户端渲染为主"}`, &seen)
	defer srv.Close()

	htmlContent := strings.Repeat("<div></div>", 50)
	got := Refine(context.Background(), testAnalyzer(srv.URL), htmlContent, heuristicResult())

	assert.Equal(t, models.SourceLLM, got.Source)
	assert.Equal(t, "React", got.PrimaryName())
	assert.Equal(t, models.ComplexityHigh, got.Complexity)
	assert.Equal(t, "客户端渲染为主", got.Notes)
	assert.Len(t, got.Scores, 2, "启发式得分保留")

	require.NotNil(t, seen.ResponseFormat)
	assert.Equal(t, "json_object", seen.ResponseFormat.Type)
	require.Len(t, seen.Messages, 2)
	assert.True(t, strings.HasSuffix(seen.Messages[1].Content, "HTML:\n"+htmlContent[:20]), "HTML片段按 max_chars 截断")
}

func TestRefineUnknownFramework(t *testing.T) {
	srv := replyServer(t, `{"framework":"Qwik","confidence":0.7,"complexity":"medium"}`, nil)
	defer srv.Close()

	got := Refine(context.Background(), testAnalyzer(srv.URL), "<html></html>", heuristicResult())
	require.NotNil(t, got.Primary)
	assert.Equal(t, "qwik", got.Primary.Key)
	assert.Equal(t, 0.7, got.Primary.Confidence)
}

func TestRefineFallsBack(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"非JSON", "我认为是React"},
		{"缺少字段", `{"framework":"React"}`},
		{"复杂度取值非法", `{"framework":"React","confidence":0.5,"complexity":"extreme"}`},
		{"置信度越界", `{"framework":"React","confidence":3,"complexity":"low"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := replyServer(t, tt.content, nil)
			defer srv.Close()

			heuristic := heuristicResult()
			got := Refine(context.Background(), testAnalyzer(srv.URL), "<html></html>", heuristic)
			assert.Same(t, heuristic, got)
		})
	}
}

func TestRefineHTTPErrorAndTimeout(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"quota"}}`, http.StatusTooManyRequests)
	}))
	defer failing.Close()

	heuristic := heuristicResult()
	assert.Same(t, heuristic, Refine(context.Background(), testAnalyzer(failing.URL), "", heuristic))

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Same(t, heuristic, Refine(ctx, testAnalyzer(slow.URL), "", heuristic))
}

func TestRefineWithoutAnalyzer(t *testing.T) {
	heuristic := heuristicResult()
	assert.Same(t, heuristic, Refine(context.Background(), nil, "", heuristic))
}

func TestParseVerdictVanilla(t *testing.T) {
	v, err := ParseVerdict(` {"framework":"vanilla","confidence":0.9,"complexity":"low"} `)
	require.NoError(t, err)
	got := merge(heuristicResult(), v)
	assert.True(t, got.IsVanilla())
	assert.Equal(t, models.ComplexityLow, got.Complexity)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 0))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "中文", Truncate("中文页面", 2))
}
