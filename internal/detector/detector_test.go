package detector

import (
	"fmt"
	"strings"
	"testing"

	"github.com/RecoveryAshes/sitesnap/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nextPage = `<!DOCTYPE html>
<html><head>
<script src="/_next/static/chunks/main-abc123.js" defer></script>
</head><body>
<div id="__next"><h1>Hello</h1></div>
<script id="__NEXT_DATA__" type="application/json">{"props":{}}</script>
</body></html>`

func TestNextJSDetection(t *testing.T) {
	result, err := New().Analyze(nextPage)
	require.NoError(t, err)
	require.NotNil(t, result.Primary)

	assert.Equal(t, "Next.js", result.Primary.DisplayName)
	assert.GreaterOrEqual(t, result.Primary.Confidence, 0.9)
	assert.LessOrEqual(t, result.Primary.Confidence, 1.0)
	assert.Len(t, result.Primary.Evidence, 3)
	assert.Equal(t, models.SourceHeuristic, result.Source)
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		name    string
		weights []float64
		want    float64
	}{
		{"无命中", nil, 0},
		{"单条强规则", []float64{0.7}, 0.7},
		{"强规则加弱规则", []float64{0.7, 0.2}, 0.72},
		{"多条弱规则不会膨胀", []float64{0.2, 0.2, 0.2}, 0.24},
		{"上限为1", []float64{0.9, 0.9, 0.9, 0.9, 0.9}, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Confidence(tt.weights), 1e-9)
		})
	}
}

func TestVanillaPage(t *testing.T) {
	page := `<html><head><link rel="stylesheet" href="a.css"></head>
<body><img src="a.png"><p>plain</p><script src="app.js"></script></body></html>`

	result, err := New().Analyze(page)
	require.NoError(t, err)

	assert.True(t, result.IsVanilla())
	assert.Equal(t, models.VanillaFramework, result.PrimaryName())
	assert.Empty(t, result.Scores)
	assert.Equal(t, models.ComplexityLow, result.Complexity)
	assert.Equal(t, models.DOMStats{Scripts: 1, Stylesheets: 1, Images: 1}, result.DOM)
}

func TestWeakSignalsBelowThresholdDropped(t *testing.T) {
	// 仅有 #root (弱信号 0.2) 不足以判定为 React
	result, err := New().Analyze(`<html><body><div id="root"></div></body></html>`)
	require.NoError(t, err)
	assert.True(t, result.IsVanilla())
}

func TestTiesKeepDeclaredOrder(t *testing.T) {
	sigs := []FrameworkSignature{
		{Key: "first", DisplayName: "First", Category: models.CategoryLibrary, Rules: []Rule{selector(`#shared`, Strong)}},
		{Key: "second", DisplayName: "Second", Category: models.CategoryLibrary, Rules: []Rule{selector(`#shared`, Strong)}},
		{Key: "third", DisplayName: "Third", Category: models.CategoryLibrary, Rules: []Rule{selector(`#shared`, Definitive)}},
	}
	d := NewWithSignatures(sigs)

	for i := 0; i < 5; i++ {
		result, err := d.Analyze(`<div id="shared"></div>`)
		require.NoError(t, err)
		require.Len(t, result.Scores, 3)
		assert.Equal(t, []string{"third", "first", "second"},
			[]string{result.Scores[0].Key, result.Scores[1].Key, result.Scores[2].Key})
	}
}

func TestRuleKinds(t *testing.T) {
	tests := []struct {
		name string
		page string
		want string
	}{
		{"meta generator", `<meta name="generator" content="WordPress 6.4">`, "wordpress"},
		{"内联脚本", `<script>window.__NUXT__={}</script>`, "nuxt"},
		{"属性前缀", `<div data-v-7ba5bd90 class="x"></div><div data-v-app></div>`, "vue"},
		{"class模式", `<p class="svelte-1x2y3z title">hi</p>`, "svelte"},
		{"选择器", `<app-root ng-version="17.0.0"></app-root>`, "angular"},
		{"脚本地址", `<script src="https://code.jquery.com/jquery-3.7.1.min.js"></script>`, "jquery"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := New().Analyze(tt.page)
			require.NoError(t, err)
			require.NotNil(t, result.Primary)
			assert.Equal(t, tt.want, result.Primary.Key)
		})
	}
}

func TestComplexityTiers(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<html><head>`)
	for i := 0; i < 12; i++ {
		fmt.Fprintf(&b, `<link rel="stylesheet" href="/s%d.css">`, i)
	}
	b.WriteString(`<script src="/_next/static/chunks/x.js"></script></head><body><div id="__next" v-cloak>`)
	for i := 0; i < 22; i++ {
		fmt.Fprintf(&b, `<script src="/c%d.js"></script>`, i)
	}
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&b, `<img src="/i%d.png">`, i)
	}
	b.WriteString(`</div></body></html>`)

	result, err := New().Analyze(b.String())
	require.NoError(t, err)
	assert.True(t, result.DOM.DynamicBindings)
	assert.Equal(t, models.ComplexityHigh, result.Complexity)

	assert.Equal(t, models.ComplexityLow, Tier(3))
	assert.Equal(t, models.ComplexityMedium, Tier(4))
	assert.Equal(t, models.ComplexityMedium, Tier(7))
	assert.Equal(t, models.ComplexityHigh, Tier(8))
}

func TestComplexityScoreVanilla(t *testing.T) {
	stats := models.DOMStats{Scripts: 10, Stylesheets: 4, Images: 15}
	assert.Equal(t, 4, ComplexityScore(nil, stats))

	primary := &models.FrameworkScore{Category: models.CategoryMetaFramework}
	assert.Equal(t, 8, ComplexityScore(primary, stats))
}
