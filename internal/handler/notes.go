package handler

import (
	"bytes"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// noteRenderer 将里程碑备注按 Markdown 渲染并清洗为安全 HTML
type noteRenderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
	strict *bluemonday.Policy
}

func newNoteRenderer() *noteRenderer {
	return &noteRenderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM, extension.Linkify),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
		policy: bluemonday.UGCPolicy(),
		strict: bluemonday.StrictPolicy(),
	}
}

func (r *noteRenderer) HTML(source string) string {
	if strings.TrimSpace(source) == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(source), &buf); err != nil {
		return r.strict.Sanitize(source)
	}
	return strings.TrimSpace(r.policy.Sanitize(buf.String()))
}

// Text 去掉所有标签，用于奖励等纯文本字段
func (r *noteRenderer) Text(source string) string {
	return strings.TrimSpace(r.strict.Sanitize(source))
}
