package core

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"

	"github.com/studiobloom/Reflow/internal/crawlers"
	"github.com/studiobloom/Reflow/internal/models"
	"github.com/studiobloom/Reflow/internal/utils"
)

// LinkRewriter 页面链接与资源引用重写器
// 职责: 把已抓取页面中指向站内页面和已下载资源的引用,
// 重写为输出树内的相对路径,使镜像离线可浏览
//
// 解析不到的引用保持原样 (优雅降级,绝不因单个引用中断页面重写);
// 对已重写的文档再次执行是无操作
type LinkRewriter struct {
	canon *crawlers.Canonicalizer

	// resolver 已下载资源的本地路径解析
	resolver crawlers.AssetResolver

	// pagePaths 规范化页面URL → 输出树相对路径
	pagePaths map[string]string

	// css 内联样式和<style>块的重写
	css *crawlers.StylesheetRewriter

	// rewriteStyles 是否重写内联样式 (与样式表重写开关一致)
	rewriteStyles bool
}

// NewLinkRewriter 创建链接重写器
func NewLinkRewriter(canon *crawlers.Canonicalizer, resolver crawlers.AssetResolver, pagePaths map[string]string, rewriteStyles bool) *LinkRewriter {
	return &LinkRewriter{
		canon:         canon,
		resolver:      resolver,
		pagePaths:     pagePaths,
		css:           crawlers.NewStylesheetRewriter(canon),
		rewriteStyles: rewriteStyles,
	}
}

// RewritePage 重写单个页面并返回序列化后的HTML
// 非HTML页面原样返回
func (rw *LinkRewriter) RewritePage(doc *models.PageDocument) ([]byte, []models.UnresolvedRef) {
	if !doc.IsHTML {
		return doc.Body, nil
	}

	root, err := html.Parse(bytes.NewReader(doc.Body))
	if err != nil {
		// 解析失败按原样输出,镜像宁可保留原始字节也不丢页面
		utils.Warnf("页面重写跳过 (HTML解析失败) [%s]: %v", doc.URL, err)
		return doc.Body, nil
	}

	var unresolved []models.UnresolvedRef
	rw.walk(root, doc, &unresolved)

	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		utils.Warnf("页面重写跳过 (序列化失败) [%s]: %v", doc.URL, err)
		return doc.Body, nil
	}
	return buf.Bytes(), unresolved
}

// walk 深度优先遍历DOM,按元素类别重写属性
func (rw *LinkRewriter) walk(n *html.Node, doc *models.PageDocument, unresolved *[]models.UnresolvedRef) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "a", "area":
			rw.rewritePageAttr(n, "href", doc)
		case "link":
			rw.rewriteAssetAttr(n, "href", doc)
		case "script", "iframe", "embed":
			rw.rewriteAssetAttr(n, "src", doc)
		case "img":
			rw.rewriteAssetAttr(n, "src", doc)
			rw.rewriteSrcset(n, doc)
		case "source":
			rw.rewriteAssetAttr(n, "src", doc)
			rw.rewriteSrcset(n, doc)
		case "video", "audio":
			rw.rewriteAssetAttr(n, "src", doc)
			rw.rewriteAssetAttr(n, "poster", doc)
		case "style":
			if rw.rewriteStyles && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				rewritten, refs := rw.css.Rewrite(n.FirstChild.Data, doc.URL, doc.OutputPath, rw.resolver)
				n.FirstChild.Data = rewritten
				*unresolved = append(*unresolved, refs...)
			}
		}

		// 内联style属性中的url()引用
		if rw.rewriteStyles {
			for i, attr := range n.Attr {
				if attr.Key == "style" && strings.Contains(attr.Val, "url(") {
					rewritten, refs := rw.css.Rewrite(attr.Val, doc.URL, doc.OutputPath, rw.resolver)
					n.Attr[i].Val = rewritten
					*unresolved = append(*unresolved, refs...)
				}
			}
		}
	}

	for child := n.FirstChild; child != nil; child = child.NextSibling {
		rw.walk(child, doc, unresolved)
	}
}

// rewritePageAttr 重写指向站内页面的属性
// 镜像内的页面改写为相对路径,fragment保留;站外链接原样保留
func (rw *LinkRewriter) rewritePageAttr(n *html.Node, attrName string, doc *models.PageDocument) {
	for i, attr := range n.Attr {
		if attr.Key != attrName || attr.Val == "" {
			continue
		}

		raw := attr.Val
		fragment := ""
		if idx := strings.Index(raw, "#"); idx >= 0 {
			fragment = raw[idx:]
			raw = raw[:idx]
		}
		if raw == "" {
			continue // 纯fragment链接不动
		}

		canonical, ok := rw.canon.CanonicalizePage(raw, doc.URL)
		if !ok {
			continue
		}

		target, ok := rw.pagePaths[canonical]
		if !ok {
			continue // 未抓取的页面保持原链接
		}

		n.Attr[i].Val = utils.RelativePath(doc.OutputPath, target) + fragment
	}
}

// rewriteAssetAttr 重写指向已下载资源的属性
func (rw *LinkRewriter) rewriteAssetAttr(n *html.Node, attrName string, doc *models.PageDocument) {
	for i, attr := range n.Attr {
		if attr.Key != attrName || attr.Val == "" {
			continue
		}

		if local, ok := rw.localAssetPath(attr.Val, doc); ok {
			n.Attr[i].Val = local
		}
	}
}

// rewriteSrcset 重写srcset属性,每个候选的URL部分独立重写,描述符保留
func (rw *LinkRewriter) rewriteSrcset(n *html.Node, doc *models.PageDocument) {
	for i, attr := range n.Attr {
		if attr.Key != "srcset" || attr.Val == "" {
			continue
		}

		candidates := strings.Split(attr.Val, ",")
		for j, candidate := range candidates {
			fields := strings.Fields(strings.TrimSpace(candidate))
			if len(fields) == 0 {
				continue
			}
			if local, ok := rw.localAssetPath(fields[0], doc); ok {
				fields[0] = local
			}
			candidates[j] = strings.Join(fields, " ")
		}
		n.Attr[i].Val = strings.Join(candidates, ", ")
	}
}

// localAssetPath 解析引用对应的本地相对路径
// 未下载的资源返回false,引用保持原文
func (rw *LinkRewriter) localAssetPath(ref string, doc *models.PageDocument) (string, bool) {
	if strings.HasPrefix(ref, "data:") || strings.HasPrefix(ref, "#") {
		return "", false
	}

	canonical, ok := rw.canon.CanonicalizeAsset(ref, doc.URL)
	if !ok {
		return "", false
	}

	localPath, ok := rw.resolver.ResolveLocal(canonical)
	if !ok {
		return "", false
	}

	return utils.RelativePath(doc.OutputPath, localPath), true
}
