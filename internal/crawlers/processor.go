package crawlers

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/studiobloom/Reflow/internal/models"
	"github.com/studiobloom/Reflow/internal/utils"
)

const (
	// CollectionAttr 集合绑定属性
	// 携带此属性的任意元素都被视为集合条目容器,与元素标签无关
	CollectionAttr = "data-wf-collection"

	// CollectionSlugAttr 集合条目slug属性
	CollectionSlugAttr = "data-wf-item-slug"

	// CollectionFieldAttr 集合条目字段属性 (属性值为字段名,元素文本为字段值)
	CollectionFieldAttr = "data-wf-field"
)

// PageProcessor 页面处理器
// 职责: 容忍解析已抓取页面的标记,提取超链接、资源引用和集合标记
//
// 解析基于x/net/html的容错树构建 (goquery包装),未闭合或嵌套错误的标签
// 产生尽力而为的文档树,绝不中断页面处理;页面内单个无效引用被逐个丢弃
type PageProcessor struct {
	canon *Canonicalizer
}

// NewPageProcessor 创建页面处理器
func NewPageProcessor(canon *Canonicalizer) *PageProcessor {
	return &PageProcessor{canon: canon}
}

// Process 处理页面文档,填充Links、Assets、Markers三类提取结果
// 保持各类引用在文档中的出现顺序
func (p *PageProcessor) Process(doc *models.PageDocument) error {
	gq, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Body))
	if err != nil {
		// 连容错解析都失败的输入极罕见 (如非UTF-8二进制),按无提取结果处理
		utils.Warnf("解析页面失败 [%s]: %v", doc.URL, err)
		return nil
	}

	doc.Links = p.extractLinks(gq, doc.URL)
	doc.Assets = p.extractAssets(gq, doc.URL)
	doc.Markers = p.extractMarkers(gq, doc.URL)

	return nil
}

// extractLinks 提取页面内的超链接 (规范化后,保持文档顺序,去重)
func (p *PageProcessor) extractLinks(gq *goquery.Document, pageURL string) []string {
	var links []string
	seen := make(map[string]bool)

	gq.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		canonical, ok := p.canon.CanonicalizePage(href, pageURL)
		if !ok || seen[canonical] {
			return
		}
		seen[canonical] = true
		links = append(links, canonical)
	})

	return links
}

// extractAssets 提取页面内的资源引用 (保持文档顺序,按规范化URL去重)
func (p *PageProcessor) extractAssets(gq *goquery.Document, pageURL string) []models.AssetRef {
	var assets []models.AssetRef
	seen := make(map[string]bool)

	add := func(rawURL string, kind models.AssetKind) {
		if strings.HasPrefix(strings.TrimSpace(rawURL), "data:") {
			return
		}
		canonical, ok := p.canon.CanonicalizeAsset(rawURL, pageURL)
		if !ok || seen[canonical] {
			return
		}
		seen[canonical] = true
		assets = append(assets, models.NewAssetRef(canonical, kind))
	}

	// 样式表
	gq.Find("link[rel='stylesheet'][href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		add(href, models.AssetStyle)
	})

	// 脚本
	gq.Find("script[src]").Each(func(_ int, sel *goquery.Selection) {
		src, _ := sel.Attr("src")
		add(src, models.AssetScript)
	})

	// 图片 (src + srcset的每个候选URL都是独立的资源引用)
	gq.Find("img").Each(func(_ int, sel *goquery.Selection) {
		if src, ok := sel.Attr("src"); ok {
			add(src, models.AssetImage)
		}
		if srcset, ok := sel.Attr("srcset"); ok {
			for _, candidate := range ParseSrcset(srcset) {
				add(candidate, models.AssetImage)
			}
		}
	})

	// 响应式source与音视频
	gq.Find("source").Each(func(_ int, sel *goquery.Selection) {
		if srcset, ok := sel.Attr("srcset"); ok {
			for _, candidate := range ParseSrcset(srcset) {
				add(candidate, models.AssetImage)
			}
		}
		if src, ok := sel.Attr("src"); ok {
			add(src, models.AssetMedia)
		}
	})
	gq.Find("video[src], audio[src]").Each(func(_ int, sel *goquery.Selection) {
		src, _ := sel.Attr("src")
		add(src, models.AssetMedia)
	})

	// favicon等图标
	gq.Find("link[href]").Each(func(_ int, sel *goquery.Selection) {
		rel, _ := sel.Attr("rel")
		rel = strings.ToLower(rel)
		if strings.Contains(rel, "icon") {
			href, _ := sel.Attr("href")
			add(href, models.AssetImage)
		}
	})

	// 内联style属性中的url()引用 (背景图等)
	gq.Find("[style]").Each(func(_ int, sel *goquery.Selection) {
		style, _ := sel.Attr("style")
		for _, match := range cssURLPattern.FindAllStringSubmatch(style, -1) {
			add(match[1], models.AssetImage)
		}
	})

	// <style>块中的url()引用
	gq.Find("style").Each(func(_ int, sel *goquery.Selection) {
		for _, ref := range ExtractStylesheetRefs(sel.Text(), pageURL, p.canon) {
			if !seen[ref] {
				seen[ref] = true
				assets = append(assets, models.NewAssetRef(ref, KindForAssetURL(ref)))
			}
		}
	})

	return assets
}

// extractMarkers 提取页面内的集合标记
// 检测是属性驱动的: 任何携带绑定属性的元素都是集合条目容器,与标签无关
//
// 条目识别顺序:
//  1. 容器自身携带slug属性 → 单条目
//  2. 容器内存在携带slug属性的后代 → 每个后代一个条目
//  3. 否则回退: 容器内同源链接的最后一段路径作为slug,链接URL与路径记为字段
func (p *PageProcessor) extractMarkers(gq *goquery.Document, pageURL string) []models.CollectionMarker {
	var markers []models.CollectionMarker

	gq.Find("[" + CollectionAttr + "]").Each(func(_ int, sel *goquery.Selection) {
		collectionID, _ := sel.Attr(CollectionAttr)
		if collectionID == "" {
			return
		}
		utils.Debugf("发现集合: %s (页面: %s)", collectionID, pageURL)

		// 1. 容器自身携带slug
		if slug, ok := sel.Attr(CollectionSlugAttr); ok && slug != "" {
			markers = append(markers, p.markerFrom(sel, collectionID, slug, pageURL))
			return
		}

		// 2. 携带slug属性的后代,每个一个条目
		slugged := sel.Find("[" + CollectionSlugAttr + "]")
		if slugged.Length() > 0 {
			slugged.Each(func(_ int, item *goquery.Selection) {
				slug, _ := item.Attr(CollectionSlugAttr)
				if slug == "" {
					return
				}
				markers = append(markers, p.markerFrom(item, collectionID, slug, pageURL))
			})
			return
		}

		// 3. 回退: 从同源链接推导条目
		seenSlug := make(map[string]bool)
		sel.Find("a[href]").Each(func(_ int, link *goquery.Selection) {
			href, _ := link.Attr("href")
			canonical, ok := p.canon.CanonicalizePage(href, pageURL)
			if !ok {
				return
			}

			itemPath := pathOfURL(canonical)
			slug := lastPathSegment(itemPath)
			if slug == "" || seenSlug[slug] {
				return
			}
			seenSlug[slug] = true

			markers = append(markers, models.CollectionMarker{
				CollectionID: collectionID,
				Slug:         slug,
				Fields: map[string]string{
					"url":  canonical,
					"path": itemPath,
				},
				PageURL: pageURL,
			})
		})
	})

	return markers
}

// markerFrom 从条目容器构建集合标记
// 字段来自携带字段属性的后代: 属性值为字段名,元素文本(trim后)为字段值
func (p *PageProcessor) markerFrom(item *goquery.Selection, collectionID, slug, pageURL string) models.CollectionMarker {
	fields := make(map[string]string)

	item.Find("[" + CollectionFieldAttr + "]").Each(func(_ int, fieldSel *goquery.Selection) {
		name, _ := fieldSel.Attr(CollectionFieldAttr)
		if name == "" {
			return
		}
		fields[name] = strings.TrimSpace(fieldSel.Text())
	})

	// 条目自身的链接目标也记录为字段,供集合页面跟随使用
	if link := item.Find("a[href]").First(); link.Length() > 0 {
		if href, ok := link.Attr("href"); ok {
			if canonical, ok := p.canon.CanonicalizePage(href, pageURL); ok {
				if _, exists := fields["url"]; !exists {
					fields["url"] = canonical
					fields["path"] = pathOfURL(canonical)
				}
			}
		}
	}

	return models.CollectionMarker{
		CollectionID: collectionID,
		Slug:         slug,
		Fields:       fields,
		PageURL:      pageURL,
	}
}

// ParseSrcset 解析srcset属性,返回候选URL列表
// 格式: "url1 1x, url2 2x" — 逗号分隔的候选,每个候选的第一个空白段为URL
func ParseSrcset(srcset string) []string {
	var urls []string
	for _, part := range strings.Split(srcset, ",") {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) > 0 && fields[0] != "" {
			urls = append(urls, fields[0])
		}
	}
	return urls
}

// pathOfURL 提取规范化URL的路径部分
func pathOfURL(canonicalURL string) string {
	rest := canonicalURL
	if idx := strings.Index(rest, "://"); idx >= 0 {
		rest = rest[idx+3:]
	}
	if idx := strings.IndexAny(rest, "/"); idx >= 0 {
		rest = rest[idx:]
	} else {
		return "/"
	}
	if idx := strings.IndexAny(rest, "?#"); idx >= 0 {
		rest = rest[:idx]
	}
	return rest
}

// lastPathSegment 返回路径的最后一段 (集合条目slug的回退推导)
func lastPathSegment(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return ""
	}
	segments := strings.Split(trimmed, "/")
	return segments[len(segments)-1]
}
