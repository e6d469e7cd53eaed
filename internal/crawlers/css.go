package crawlers

import (
	"regexp"
	"strings"

	"github.com/studiobloom/Reflow/internal/models"
	"github.com/studiobloom/Reflow/internal/utils"
)

var (
	// cssURLPattern 匹配CSS中的 url(...) 引用 (引号可选)
	cssURLPattern = regexp.MustCompile(`url\(\s*['"]?([^'")\s]+)['"]?\s*\)`)

	// cssImportPattern 匹配不带url()包装的 @import "..." 引用
	cssImportPattern = regexp.MustCompile(`@import\s+['"]([^'"]+)['"]`)
)

// AssetResolver 资源本地路径解析接口
// 仅对已成功下载的资源返回本地相对路径;未下载的引用保持原文
type AssetResolver interface {
	// ResolveLocal 根据规范化源URL查询本地相对路径
	ResolveLocal(canonicalURL string) (string, bool)
}

// StylesheetRewriter 样式表引用重写器
// 职责: 将已下载样式表中的url()/@import引用替换为指向本地资源的相对路径
type StylesheetRewriter struct {
	canon *Canonicalizer
}

// NewStylesheetRewriter 创建样式表重写器
func NewStylesheetRewriter(canon *Canonicalizer) *StylesheetRewriter {
	return &StylesheetRewriter{canon: canon}
}

// Rewrite 重写样式表文本
// 每个引用相对于sourceURL规范化后查询resolver;
// 无对应已下载资源的引用保持字节级原样,并作为未解析引用返回 (优雅降级,非失败)
// 对已重写文本再次调用是无操作: 相对引用解析不到资源时不做改动
func (r *StylesheetRewriter) Rewrite(cssText, sourceURL, selfLocalPath string, resolver AssetResolver) (string, []models.UnresolvedRef) {
	var unresolved []models.UnresolvedRef
	seen := make(map[string]bool)

	rewriteRef := func(ref string) string {
		if strings.HasPrefix(ref, "data:") || strings.HasPrefix(ref, "#") {
			return ""
		}

		canonical, ok := r.canon.CanonicalizeAsset(ref, sourceURL)
		if !ok {
			return ""
		}

		localPath, ok := resolver.ResolveLocal(canonical)
		if !ok {
			if !seen[ref] {
				seen[ref] = true
				unresolved = append(unresolved, models.UnresolvedRef{
					Source: sourceURL,
					Ref:    ref,
				})
			}
			return ""
		}

		// 相对于样式表自身的输出位置
		return utils.RelativePath(selfLocalPath, localPath)
	}

	result := cssText
	replaceAll := func(pattern *regexp.Regexp, quoteAware bool) {
		for _, match := range pattern.FindAllStringSubmatch(result, -1) {
			ref := match[1]
			relPath := rewriteRef(ref)
			if relPath == "" || relPath == ref {
				continue
			}
			// 覆盖无引号/单引号/双引号三种写法,与下载内容字节一致
			if quoteAware {
				result = strings.ReplaceAll(result, "url("+ref+")", "url("+relPath+")")
				result = strings.ReplaceAll(result, "url('"+ref+"')", "url('"+relPath+"')")
				result = strings.ReplaceAll(result, `url("`+ref+`")`, `url("`+relPath+`")`)
			} else {
				result = strings.ReplaceAll(result, "@import '"+ref+"'", "@import '"+relPath+"'")
				result = strings.ReplaceAll(result, `@import "`+ref+`"`, `@import "`+relPath+`"`)
			}
		}
	}

	replaceAll(cssURLPattern, true)
	replaceAll(cssImportPattern, false)

	return result, unresolved
}

// ExtractStylesheetRefs 提取样式表中引用的资源URL (规范化后)
// 下载器在样式表落盘后调用,将其内嵌资源(字体、图片)加入下载队列
func ExtractStylesheetRefs(cssText, sourceURL string, canon *Canonicalizer) []string {
	var refs []string
	seen := make(map[string]bool)

	collect := func(matches [][]string) {
		for _, match := range matches {
			ref := match[1]
			if strings.HasPrefix(ref, "data:") || strings.HasPrefix(ref, "#") {
				continue
			}
			canonical, ok := canon.CanonicalizeAsset(ref, sourceURL)
			if !ok || seen[canonical] {
				continue
			}
			seen[canonical] = true
			refs = append(refs, canonical)
		}
	}

	collect(cssURLPattern.FindAllStringSubmatch(cssText, -1))
	collect(cssImportPattern.FindAllStringSubmatch(cssText, -1))

	return refs
}

// KindForAssetURL 按URL扩展名推断资源类型
// 类型仅影响统计报告,不影响本地路径方案
func KindForAssetURL(canonicalURL string) models.AssetKind {
	lower := strings.ToLower(canonicalURL)
	if idx := strings.IndexAny(lower, "?#"); idx >= 0 {
		lower = lower[:idx]
	}

	switch {
	case strings.HasSuffix(lower, ".css"):
		return models.AssetStyle
	case strings.HasSuffix(lower, ".js"), strings.HasSuffix(lower, ".mjs"):
		return models.AssetScript
	case strings.HasSuffix(lower, ".woff"), strings.HasSuffix(lower, ".woff2"),
		strings.HasSuffix(lower, ".ttf"), strings.HasSuffix(lower, ".otf"),
		strings.HasSuffix(lower, ".eot"):
		return models.AssetFont
	case strings.HasSuffix(lower, ".mp4"), strings.HasSuffix(lower, ".webm"),
		strings.HasSuffix(lower, ".mp3"), strings.HasSuffix(lower, ".ogg"),
		strings.HasSuffix(lower, ".wav"):
		return models.AssetMedia
	default:
		return models.AssetImage
	}
}
