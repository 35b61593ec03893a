package detector

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/sitesnap/internal/models"
	"github.com/RecoveryAshes/sitesnap/internal/utils"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

const (
	// ConfidenceThreshold 低于该置信度的框架被丢弃
	ConfidenceThreshold = 0.3
	// supportingFactor 除最强规则外其余命中规则的贡献系数
	supportingFactor = 0.1

	highComplexity   = 8
	mediumComplexity = 4
)

// dynamicBindingPrefixes 模板/响应式框架留在DOM中的属性标记
var dynamicBindingPrefixes = []string{"v-", ":", "@", "ng-", "x-", "hx-", "wire:", "data-bind", "data-reactroot", "_ngcontent", "data-v-"}

// Detector 框架签名检测器, 只读DOM, 不保存跨运行状态
type Detector struct {
	signatures []FrameworkSignature
}

// New 使用内置签名集创建检测器
func New() *Detector {
	return &Detector{signatures: DefaultSignatures()}
}

// NewWithSignatures 使用自定义签名集创建检测器
func NewWithSignatures(signatures []FrameworkSignature) *Detector {
	return &Detector{signatures: signatures}
}

// Analyze 解析DOM快照并检测框架
func (d *Detector) Analyze(domSnapshot string) (*models.DetectionResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(domSnapshot))
	if err != nil {
		return nil, fmt.Errorf("解析DOM快照失败: %w", err)
	}
	return d.AnalyzeDocument(doc), nil
}

// AnalyzeDocument 对已解析的文档评分
func (d *Detector) AnalyzeDocument(doc *goquery.Document) *models.DetectionResult {
	features := collectFeatures(doc)

	scores := make([]models.FrameworkScore, 0, len(d.signatures))
	for _, sig := range d.signatures {
		var weights []float64
		var evidence []string
		for _, rule := range sig.Rules {
			if features.matches(rule) {
				weights = append(weights, float64(rule.Weight()))
				evidence = append(evidence, rule.Describe())
			}
		}
		confidence := Confidence(weights)
		if confidence < ConfidenceThreshold {
			continue
		}
		scores = append(scores, models.FrameworkScore{
			Key:         sig.Key,
			DisplayName: sig.DisplayName,
			Category:    sig.Category,
			Confidence:  confidence,
			Evidence:    evidence,
		})
	}

	// 稳定排序: 同分保持签名集声明顺序
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Confidence > scores[j].Confidence
	})

	result := &models.DetectionResult{
		Scores: scores,
		DOM:    features.stats,
		Source: models.SourceHeuristic,
	}
	if len(scores) > 0 {
		primary := scores[0]
		result.Primary = &primary
	}
	result.ComplexityScore = ComplexityScore(result.Primary, features.stats)
	result.Complexity = Tier(result.ComplexityScore)

	utils.Debugf("框架检测: 主框架=%s 复杂度=%s(%d) 候选=%d",
		result.PrimaryName(), result.Complexity, result.ComplexityScore, len(scores))
	return result
}

// Confidence 最强单条规则权重 + 0.1 × 其余命中权重之和, 上限1.0
func Confidence(weights []float64) float64 {
	if len(weights) == 0 {
		return 0
	}
	maxWeight, sum := 0.0, 0.0
	for _, w := range weights {
		sum += w
		if w > maxWeight {
			maxWeight = w
		}
	}
	confidence := maxWeight + supportingFactor*(sum-maxWeight)
	// 消除浮点误差, 保留三位小数
	confidence = math.Round(confidence*1000) / 1000
	return math.Min(confidence, 1.0)
}

// ComplexityScore 框架类别权重 + DOM规模指标
func ComplexityScore(primary *models.FrameworkScore, stats models.DOMStats) int {
	score := 0
	if primary != nil {
		score += categoryWeights[primary.Category]
	}

	switch {
	case stats.Scripts >= 20:
		score += 3
	case stats.Scripts >= 10:
		score += 2
	case stats.Scripts >= 4:
		score++
	}
	switch {
	case stats.Stylesheets >= 10:
		score += 2
	case stats.Stylesheets >= 4:
		score++
	}
	switch {
	case stats.Images >= 50:
		score += 2
	case stats.Images >= 15:
		score++
	}
	if stats.DynamicBindings {
		score += 2
	}
	return score
}

// Tier 分数分级
func Tier(score int) models.ComplexityTier {
	switch {
	case score >= highComplexity:
		return models.ComplexityHigh
	case score >= mediumComplexity:
		return models.ComplexityMedium
	default:
		return models.ComplexityLow
	}
}

// pageFeatures 一次遍历收集的页面特征
type pageFeatures struct {
	root          *html.Node
	scriptSrcs    []string
	inlineScripts []string
	generators    []string
	attrNames     map[string]bool
	classTokens   map[string]bool
	stats         models.DOMStats
}

func collectFeatures(doc *goquery.Document) *pageFeatures {
	f := &pageFeatures{
		attrNames:   make(map[string]bool),
		classTokens: make(map[string]bool),
	}
	if len(doc.Nodes) > 0 {
		f.root = doc.Nodes[0]
	}

	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		for _, a := range node.Attr {
			key := strings.ToLower(a.Key)
			f.attrNames[key] = true
			if key == "class" {
				for _, token := range strings.Fields(a.Val) {
					f.classTokens[token] = true
				}
			}
			if !f.stats.DynamicBindings && hasAnyPrefix(key, dynamicBindingPrefixes) {
				f.stats.DynamicBindings = true
			}
		}

		switch node.Data {
		case "script":
			f.stats.Scripts++
			if src, ok := s.Attr("src"); ok {
				f.scriptSrcs = append(f.scriptSrcs, src)
			} else if body := s.Text(); strings.TrimSpace(body) != "" {
				f.inlineScripts = append(f.inlineScripts, body)
			}
		case "style":
			f.stats.Stylesheets++
		case "link":
			if rel, _ := s.Attr("rel"); strings.Contains(strings.ToLower(rel), "stylesheet") {
				f.stats.Stylesheets++
			}
		case "img":
			f.stats.Images++
		case "meta":
			if name, _ := s.Attr("name"); strings.EqualFold(name, "generator") {
				content, _ := s.Attr("content")
				f.generators = append(f.generators, content)
			}
		}
	})
	return f
}

// matches 对每种规则分别求值
func (f *pageFeatures) matches(rule Rule) bool {
	switch r := rule.(type) {
	case ScriptSrcRule:
		return anyMatch(r.Pattern, f.scriptSrcs)
	case SelectorRule:
		return f.root != nil && r.sel != nil && cascadia.Query(f.root, r.sel) != nil
	case MetaGeneratorRule:
		return anyMatch(r.Pattern, f.generators)
	case InlineScriptRule:
		return anyMatch(r.Pattern, f.inlineScripts)
	case AttributeRule:
		if r.ClassPattern != nil {
			for token := range f.classTokens {
				if r.ClassPattern.MatchString(token) {
					return true
				}
			}
			return false
		}
		for name := range f.attrNames {
			if strings.HasPrefix(name, r.Prefix) {
				return true
			}
		}
		return false
	default:
		utils.Warnf("未知的签名规则类型: %T", rule)
		return false
	}
}

func anyMatch(pattern *regexp.Regexp, values []string) bool {
	for _, v := range values {
		if pattern.MatchString(v) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
