package crawlers

import (
	"strings"

	whatwg "github.com/nlnwa/whatwg-url/url"
	"github.com/studiobloom/Reflow/internal/models"
	"github.com/studiobloom/Reflow/internal/utils"
)

// pseudoSchemes 不可抓取的伪协议前缀
// 页面中这类引用直接在规范化阶段过滤,不进入队列也不报错
var pseudoSchemes = []string{
	"javascript:",
	"mailto:",
	"tel:",
	"data:",
	"about:",
	"blob:",
}

// Canonicalizer URL规范化器
// 职责: 将页面中的原始引用解析为规范化绝对URL,作为页面与资源的去重键
//
// 规范化规则:
//   - 相对引用相对于基准URL解析 (WHATWG解析,与抓取层请求的URL形态一致)
//   - 去除fragment
//   - 主机名与协议转小写,默认端口(:80/:443)去除
//   - 尾部斜杠去除 (根路径"/"除外)
//
// 非法输入(畸形URL、伪协议、非HTTP协议)返回("", false),从不panic
type Canonicalizer struct {
	// parser WHATWG URL解析器 (与colly内部使用的解析器一致)
	parser whatwg.Parser

	// seedHost 种子URL的主机名 (小写),页面模式下的同源限制依据
	seedHost string
}

// NewCanonicalizer 创建规范化器
// seedURL必须是合法的HTTP(S)绝对URL,否则返回错误
func NewCanonicalizer(seedURL string) (*Canonicalizer, error) {
	parser := whatwg.NewParser(whatwg.WithPercentEncodeSinglePercentSign())

	parsed, err := parser.Parse(seedURL)
	if err != nil {
		return nil, err
	}

	return &Canonicalizer{
		parser:   parser,
		seedHost: strings.ToLower(parsed.Hostname()),
	}, nil
}

// SeedHost 返回种子主机名
func (c *Canonicalizer) SeedHost() string {
	return c.seedHost
}

// CanonicalizePage 规范化页面引用
// 相对于baseURL解析,仅接受与种子同主机的HTTP(S) URL
// 返回(规范化URL, true),过滤的引用返回("", false)
func (c *Canonicalizer) CanonicalizePage(rawURL, baseURL string) (string, bool) {
	canonical, host, ok := c.canonicalize(rawURL, baseURL)
	if !ok {
		return "", false
	}

	// 同源限制: 仅爬取种子主机上的页面
	if host != c.seedHost {
		return "", false
	}

	return canonical, true
}

// CanonicalizeAsset 规范化资源引用
// 与CanonicalizePage相同的规范化规则,但不做同源限制 (资源常位于CDN主机)
func (c *Canonicalizer) CanonicalizeAsset(rawURL, baseURL string) (string, bool) {
	canonical, _, ok := c.canonicalize(rawURL, baseURL)
	return canonical, ok
}

// canonicalize 公共规范化逻辑,返回(规范化URL, 小写主机名, 是否有效)
func (c *Canonicalizer) canonicalize(rawURL, baseURL string) (string, string, bool) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", "", false
	}

	// 伪协议过滤
	lower := strings.ToLower(trimmed)
	for _, scheme := range pseudoSchemes {
		if strings.HasPrefix(lower, scheme) {
			return "", "", false
		}
	}

	var parsed *whatwg.Url
	var err error
	if baseURL == "" {
		parsed, err = c.parser.Parse(trimmed)
	} else {
		parsed, err = c.parser.ParseRef(baseURL, trimmed)
	}
	if err != nil {
		// 引用级错误: 丢弃该引用并继续,绝不中断页面处理
		utils.Debugf("丢弃无效引用: %v", &models.MalformedReferenceError{
			Ref:     trimmed,
			PageURL: baseURL,
			Cause:   err,
		})
		return "", "", false
	}

	scheme := parsed.Scheme()
	if scheme != "http" && scheme != "https" {
		return "", "", false
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return "", "", false
	}

	// WHATWG解析已去除默认端口并转小写;此处仅需处理尾部斜杠
	path := parsed.Pathname()
	if path == "" {
		path = "/"
	}
	if path != "/" && strings.HasSuffix(path, "/") {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(host)
	if port := parsed.Port(); port != "" {
		b.WriteString(":")
		b.WriteString(port)
	}
	b.WriteString(path)
	b.WriteString(parsed.Search())

	return b.String(), host, true
}
