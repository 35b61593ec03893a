package detector

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
)

// WeightClass 规则权重等级
type WeightClass float64

const (
	Weak       WeightClass = 0.2
	Moderate   WeightClass = 0.4
	Strong     WeightClass = 0.7
	Definitive WeightClass = 0.9
)

// Rule 签名规则
// 规则种类是封闭的: 只有本包中的类型实现了 isRule
type Rule interface {
	Weight() WeightClass
	Describe() string
	isRule()
}

// ScriptSrcRule 外部脚本地址匹配
type ScriptSrcRule struct {
	Pattern *regexp.Regexp
	Class   WeightClass
}

// SelectorRule 元素选择器存在即命中
type SelectorRule struct {
	Selector string
	Class    WeightClass
	sel      cascadia.Sel
}

// MetaGeneratorRule <meta name="generator"> 内容匹配
type MetaGeneratorRule struct {
	Pattern *regexp.Regexp
	Class   WeightClass
}

// InlineScriptRule 内联脚本内容匹配
type InlineScriptRule struct {
	Pattern *regexp.Regexp
	Class   WeightClass
}

// AttributeRule 属性名前缀或class名匹配, 两者设置其一
type AttributeRule struct {
	Prefix       string
	ClassPattern *regexp.Regexp
	Class        WeightClass
}

func (r ScriptSrcRule) Weight() WeightClass     { return r.Class }
func (r SelectorRule) Weight() WeightClass      { return r.Class }
func (r MetaGeneratorRule) Weight() WeightClass { return r.Class }
func (r InlineScriptRule) Weight() WeightClass  { return r.Class }
func (r AttributeRule) Weight() WeightClass     { return r.Class }

func (ScriptSrcRule) isRule()     {}
func (SelectorRule) isRule()      {}
func (MetaGeneratorRule) isRule() {}
func (InlineScriptRule) isRule()  {}
func (AttributeRule) isRule()     {}

func (r ScriptSrcRule) Describe() string     { return "script-src~" + r.Pattern.String() }
func (r SelectorRule) Describe() string      { return "selector " + r.Selector }
func (r MetaGeneratorRule) Describe() string { return "generator~" + r.Pattern.String() }
func (r InlineScriptRule) Describe() string  { return "inline-script~" + r.Pattern.String() }

func (r AttributeRule) Describe() string {
	if r.ClassPattern != nil {
		return "class~" + r.ClassPattern.String()
	}
	return "attr " + r.Prefix + "*"
}

// 构造函数, 在包初始化时编译, 非法模式直接panic

func scriptSrc(pattern string, w WeightClass) Rule {
	return ScriptSrcRule{Pattern: regexp.MustCompile(pattern), Class: w}
}

func selector(css string, w WeightClass) Rule {
	sel, err := cascadia.Parse(css)
	if err != nil {
		panic(fmt.Sprintf("非法的签名选择器 %q: %v", css, err))
	}
	return SelectorRule{Selector: css, Class: w, sel: sel}
}

func generator(pattern string, w WeightClass) Rule {
	return MetaGeneratorRule{Pattern: regexp.MustCompile(pattern), Class: w}
}

func inlineScript(pattern string, w WeightClass) Rule {
	return InlineScriptRule{Pattern: regexp.MustCompile(pattern), Class: w}
}

func attrPrefix(prefix string, w WeightClass) Rule {
	return AttributeRule{Prefix: strings.ToLower(prefix), Class: w}
}

func classPattern(pattern string, w WeightClass) Rule {
	return AttributeRule{ClassPattern: regexp.MustCompile(pattern), Class: w}
}
