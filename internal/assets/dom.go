package assets

import (
	"strings"

	"golang.org/x/net/html"
)

// AttrValue 读取节点属性(忽略命名空间, xlink:href 与 href 视为同一键)
func AttrValue(node *html.Node, key string) (string, bool) {
	if node == nil {
		return "", false
	}
	for _, a := range node.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr 设置节点属性, 不存在时追加
func SetAttr(node *html.Node, key, val string) {
	for i := range node.Attr {
		if node.Attr[i].Key == key {
			node.Attr[i].Val = val
			return
		}
	}
	node.Attr = append(node.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr 删除节点属性
func RemoveAttr(node *html.Node, key string) {
	kept := node.Attr[:0]
	for _, a := range node.Attr {
		if a.Key != key {
			kept = append(kept, a)
		}
	}
	node.Attr = kept
}

// TextContent 拼接元素的直接文本子节点(<style>/<script> 的内容)
func TextContent(node *html.Node) string {
	var b strings.Builder
	for c := node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

// SetTextContent 用单个文本节点替换元素内容
func SetTextContent(node *html.Node, text string) {
	for c := node.FirstChild; c != nil; {
		next := c.NextSibling
		node.RemoveChild(c)
		c = next
	}
	node.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}
