package analysis

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/RecoveryAshes/sitesnap/internal/models"
	"github.com/RecoveryAshes/sitesnap/internal/utils"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed detection.schema.json
var detectionSchemaJSON []byte

var detectionSchema = mustSchema(detectionSchemaJSON)

// ErrInvalidReply 模型回复不符合约定格式
var ErrInvalidReply = errors.New("模型回复格式无效")

func mustSchema(raw []byte) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("检测结果schema无效: %v", err))
	}
	return schema
}

const systemPrompt = `你是前端技术栈识别助手。根据给出的页面HTML片段和启发式检测结果, 判断页面使用的主框架与客户端复杂度。
只返回一个JSON对象: {"framework": string, "confidence": number(0-1), "complexity": "low"|"medium"|"high", "notes": string}。
没有框架时 framework 返回 "vanilla"。`

// Analyzer 对启发式结果做二次判断
type Analyzer interface {
	Analyze(ctx context.Context, htmlContent string, heuristic *models.DetectionResult) (*models.DetectionResult, error)
}

// Config LLM分析配置
type Config struct {
	Enabled  bool   `mapstructure:"enabled"`
	BaseURL  string `mapstructure:"base_url"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	Timeout  int    `mapstructure:"timeout"`   // 秒
	MaxChars int    `mapstructure:"max_chars"` // 发送给模型的HTML最大字符数
}

// DefaultConfig 默认关闭
func DefaultConfig() Config {
	return Config{
		BaseURL:  "https://api.openai.com/v1",
		Model:    "gpt-4o-mini",
		Timeout:  30,
		MaxChars: 12000,
	}
}

// Verdict 模型返回的结构
type Verdict struct {
	Framework  string  `json:"framework"`
	Confidence float64 `json:"confidence"`
	Complexity string  `json:"complexity"`
	Notes      string  `json:"notes"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// LLMAnalyzer OpenAI兼容 /chat/completions 接口的分析器
type LLMAnalyzer struct {
	cfg        Config
	httpClient *http.Client
}

// NewLLMAnalyzer 创建分析器, httpClient为nil时使用带超时的默认客户端
func NewLLMAnalyzer(cfg Config, httpClient *http.Client) *LLMAnalyzer {
	if httpClient == nil {
		timeout := time.Duration(cfg.Timeout) * time.Second
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &LLMAnalyzer{cfg: cfg, httpClient: httpClient}
}

// Analyze 请求模型并把回复合并进启发式结果
func (a *LLMAnalyzer) Analyze(ctx context.Context, htmlContent string, heuristic *models.DetectionResult) (*models.DetectionResult, error) {
	verdict, err := a.ask(ctx, htmlContent, heuristic)
	if err != nil {
		return nil, err
	}
	return merge(heuristic, verdict), nil
}

func (a *LLMAnalyzer) ask(ctx context.Context, htmlContent string, heuristic *models.DetectionResult) (*Verdict, error) {
	hint, err := json.Marshal(heuristic)
	if err != nil {
		return nil, fmt.Errorf("序列化启发式结果失败: %w", err)
	}

	reqBody := chatRequest{
		Model: a.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("启发式结果:\n%s\n\nHTML:\n%s", hint, Truncate(htmlContent, a.cfg.MaxChars))},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	endpoint := strings.TrimRight(a.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("LLM请求失败: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("读取LLM响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("LLM接口返回HTTP %d: %s", resp.StatusCode, Truncate(string(respBody), 200))
	}

	var chat chatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReply, err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("%w: 没有返回choices", ErrInvalidReply)
	}
	return ParseVerdict(chat.Choices[0].Message.Content)
}

// ParseVerdict 按schema校验并解析模型回复
func ParseVerdict(raw string) (*Verdict, error) {
	raw = strings.TrimSpace(raw)
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("%w: 不是合法JSON", ErrInvalidReply)
	}

	result, err := detectionSchema.Validate(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReply, err)
	}
	if !result.Valid() {
		var problems []string
		for _, verr := range result.Errors() {
			field := verr.Field()
			if field == "" {
				field = "root"
			}
			problems = append(problems, field+": "+verr.Description())
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidReply, strings.Join(problems, "; "))
	}

	var v Verdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReply, err)
	}
	return &v, nil
}

// merge 模型判断替换主框架和复杂度等级, 启发式得分保留
func merge(heuristic *models.DetectionResult, v *Verdict) *models.DetectionResult {
	out := *heuristic
	out.Scores = append([]models.FrameworkScore(nil), heuristic.Scores...)
	out.Complexity = models.ComplexityTier(v.Complexity)
	out.Source = models.SourceLLM
	out.Notes = v.Notes

	if strings.EqualFold(v.Framework, models.VanillaFramework) {
		out.Primary = nil
		return &out
	}
	for i := range out.Scores {
		s := out.Scores[i]
		if strings.EqualFold(s.Key, v.Framework) || strings.EqualFold(s.DisplayName, v.Framework) {
			out.Primary = &s
			return &out
		}
	}
	out.Primary = &models.FrameworkScore{
		Key:         strings.ToLower(strings.ReplaceAll(v.Framework, " ", "-")),
		DisplayName: v.Framework,
		Confidence:  v.Confidence,
		Evidence:    []string{"llm"},
	}
	return &out
}

// Refine 总是返回可用的结果, 分析器缺失或出错时退回启发式结果
func Refine(ctx context.Context, analyzer Analyzer, htmlContent string, heuristic *models.DetectionResult) *models.DetectionResult {
	if analyzer == nil || heuristic == nil {
		return heuristic
	}
	refined, err := analyzer.Analyze(ctx, htmlContent, heuristic)
	if err != nil {
		utils.Warnf("⚠️ LLM分析失败, 使用启发式结果: %v", err)
		return heuristic
	}
	utils.Infof("🤖 LLM分析: 主框架 %s, 复杂度 %s", refined.PrimaryName(), refined.Complexity)
	return refined
}

// Truncate 按字符截断, max<=0 表示不限制
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
