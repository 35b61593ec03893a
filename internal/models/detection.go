package models

// ComplexityTier 页面客户端复杂度等级
type ComplexityTier string

const (
	ComplexityLow    ComplexityTier = "low"
	ComplexityMedium ComplexityTier = "medium"
	ComplexityHigh   ComplexityTier = "high"
)

// FrameworkCategory 框架类别,影响复杂度评分
type FrameworkCategory string

const (
	CategoryMetaFramework FrameworkCategory = "meta-framework"
	CategorySPAFramework  FrameworkCategory = "spa-framework"
	CategoryLibrary       FrameworkCategory = "library"
	CategoryCMS           FrameworkCategory = "cms"
	CategorySiteBuilder   FrameworkCategory = "site-builder"
	CategoryStaticSite    FrameworkCategory = "static-site-generator"
)

// DetectionSource 检测结果来源
type DetectionSource string

const (
	SourceHeuristic DetectionSource = "heuristic"
	SourceLLM       DetectionSource = "llm"
)

// VanillaFramework 未检测到任何框架时的主框架键
const VanillaFramework = "vanilla"

// FrameworkScore 单个框架的置信度
type FrameworkScore struct {
	Key         string            `json:"key"`
	DisplayName string            `json:"display_name"`
	Category    FrameworkCategory `json:"category"`
	Confidence  float64           `json:"confidence"`
	Evidence    []string          `json:"evidence,omitempty"`
}

// DOMStats 复杂度评估使用的DOM规模指标
type DOMStats struct {
	Scripts         int  `json:"scripts"`
	Stylesheets     int  `json:"stylesheets"`
	Images          int  `json:"images"`
	DynamicBindings bool `json:"dynamic_bindings"`
}

// DetectionResult 框架检测结果
type DetectionResult struct {
	// Scores 按置信度降序排列,低于阈值的框架已被剔除
	Scores     []FrameworkScore `json:"scores"`
	Primary    *FrameworkScore  `json:"primary,omitempty"`
	Complexity ComplexityTier   `json:"complexity"`
	// ComplexityScore 分级前的原始分数
	ComplexityScore int             `json:"complexity_score"`
	DOM             DOMStats        `json:"dom"`
	Source          DetectionSource `json:"source"`
	Notes           string          `json:"notes,omitempty"`
}

// PrimaryName 主框架展示名, 没有时返回 vanilla
func (d *DetectionResult) PrimaryName() string {
	if d == nil || d.Primary == nil {
		return VanillaFramework
	}
	return d.Primary.DisplayName
}

// Confidences 以框架键为索引的置信度映射
func (d *DetectionResult) Confidences() map[string]float64 {
	out := make(map[string]float64, len(d.Scores))
	for _, s := range d.Scores {
		out[s.Key] = s.Confidence
	}
	return out
}

// IsVanilla 是否未检测到框架
func (d *DetectionResult) IsVanilla() bool {
	return d == nil || d.Primary == nil
}
