package crawlers

import (
	"sort"
	"strings"

	"github.com/studiobloom/Reflow/internal/models"
)

// CollectionAggregator 集合聚合器
// 职责: 将各页面观测到的集合标记增量合并为集合记录
//
// 爬取阶段单线程调用Ingest;Finalize在爬取阶段结束后调用,
// 纯函数且幂等,输出确定性排序,与标记摄入顺序无关
type CollectionAggregator struct {
	// policy 条目slug碰撞时的字段合并策略
	policy models.MergePolicy

	// collections 集合ID → 聚合状态
	collections map[string]*collectionState
}

// collectionState 单个集合的聚合中间态
type collectionState struct {
	// items slug → 聚合中间态
	items map[string]*itemState

	// pages 引用该集合的页面URL集合
	pages map[string]bool
}

// itemState 单个条目的聚合中间态
// 每个字段连同取值一起记录来源标记的非空字段数,冲突裁决始终比较
// 原始观测的字段数,而不是随合并漂移的累积字段数
type itemState struct {
	fields map[string]fieldObservation
}

// fieldObservation 单个字段的取值及其来源标记的非空字段数
type fieldObservation struct {
	value       string
	sourceCount int
}

// fieldMap 导出当前字段取值
func (it *itemState) fieldMap() map[string]string {
	fields := make(map[string]string, len(it.fields))
	for name, obs := range it.fields {
		fields[name] = obs.value
	}
	return fields
}

// field 返回单个字段取值,缺失为空串
func (it *itemState) field(name string) string {
	return it.fields[name].value
}

// NewCollectionAggregator 创建聚合器
// policy为空时使用默认策略 (非空字段更多的观测优先)
func NewCollectionAggregator(policy models.MergePolicy) *CollectionAggregator {
	if policy == "" {
		policy = models.MergeMostComplete
	}
	return &CollectionAggregator{
		policy:      policy,
		collections: make(map[string]*collectionState),
	}
}

// Ingest 摄入一个集合标记
// 同一集合ID+slug的重复观测按策略合并,绝不产生重复条目
func (a *CollectionAggregator) Ingest(marker models.CollectionMarker) {
	state, ok := a.collections[marker.CollectionID]
	if !ok {
		state = &collectionState{
			items: make(map[string]*itemState),
			pages: make(map[string]bool),
		}
		a.collections[marker.CollectionID] = state
	}

	state.pages[marker.PageURL] = true

	if marker.Slug == "" {
		return
	}

	item, ok := state.items[marker.Slug]
	if !ok {
		item = &itemState{fields: make(map[string]fieldObservation)}
		state.items[marker.Slug] = item
	}

	a.mergeFields(item, marker)
}

// mergeFields 按策略合并字段
//
// MergeMostComplete (默认): 字段级并集,冲突字段保留来自非空字段更多的
// 原始观测的值 — 比较基准是每个取值来源标记自身的字段数,字段数相同时
// 按字典序取定值,任意数量标记的合并结果都与摄入顺序无关
// MergeLastWriteWins: 后观测的非空值覆盖已有值
func (a *CollectionAggregator) mergeFields(item *itemState, marker models.CollectionMarker) {
	markerCount := marker.MarkerFieldCount()

	for name, value := range marker.Fields {
		if value == "" {
			continue
		}
		obs := fieldObservation{value: value, sourceCount: markerCount}

		current, has := item.fields[name]
		if !has {
			item.fields[name] = obs
			continue
		}

		switch a.policy {
		case models.MergeLastWriteWins:
			item.fields[name] = obs

		default: // MergeMostComplete
			switch {
			case markerCount > current.sourceCount:
				item.fields[name] = obs
			case markerCount == current.sourceCount && value < current.value:
				item.fields[name] = obs
			}
		}
	}
}

// Finalize 产出聚合结果
// 返回集合记录与CMS页面记录,均按确定性顺序排序
// (集合按ID,条目按slug,页面按字典序);可重复调用,不修改内部状态
func (a *CollectionAggregator) Finalize() ([]models.CollectionRecord, []models.CMSPageRecord) {
	collectionIDs := make([]string, 0, len(a.collections))
	for id := range a.collections {
		collectionIDs = append(collectionIDs, id)
	}
	sort.Strings(collectionIDs)

	records := make([]models.CollectionRecord, 0, len(collectionIDs))
	var pageRecords []models.CMSPageRecord

	for _, id := range collectionIDs {
		state := a.collections[id]

		slugs := make([]string, 0, len(state.items))
		for slug := range state.items {
			slugs = append(slugs, slug)
		}
		sort.Strings(slugs)

		items := make([]models.CollectionItem, 0, len(slugs))
		for _, slug := range slugs {
			item := state.items[slug]
			items = append(items, models.CollectionItem{
				Slug:   slug,
				Fields: item.fieldMap(),
			})

			// 条目页面记录: 条目自身的页面URL优先,否则用观测页面
			pageURL := item.field("url")
			pageRecords = append(pageRecords, models.CMSPageRecord{
				PageURL:      pageURL,
				CollectionID: id,
				Slug:         slug,
			})
		}

		pages := make([]string, 0, len(state.pages))
		for page := range state.pages {
			pages = append(pages, page)
		}
		sort.Strings(pages)

		records = append(records, models.CollectionRecord{
			CollectionID: id,
			Items:        items,
			Pages:        pages,
		})
	}

	// 条目无自身URL时回退为首个观测页面
	for i := range pageRecords {
		if pageRecords[i].PageURL == "" {
			for _, rec := range records {
				if rec.CollectionID == pageRecords[i].CollectionID && len(rec.Pages) > 0 {
					pageRecords[i].PageURL = rec.Pages[0]
					break
				}
			}
		}
	}

	return records, pageRecords
}

// DerivePageURLs 推导集合条目页面URL (followCollections)
// 来源有二:
//  1. 条目字段中记录的条目页面URL
//  2. 兄弟条目推导: 集合内已知条目路径的父目录 + 其余slug
//
// 返回去重后的URL列表,由协调器推入边界队列再次排空
func (a *CollectionAggregator) DerivePageURLs(origin string) []string {
	var urls []string
	seen := make(map[string]bool)

	add := func(u string) {
		if u != "" && !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}

	ids := make([]string, 0, len(a.collections))
	for id := range a.collections {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		state := a.collections[id]

		slugs := make([]string, 0, len(state.items))
		for slug := range state.items {
			slugs = append(slugs, slug)
		}
		sort.Strings(slugs)

		// 集合条目所在的公共父目录 (取slug序首个已知条目路径推导)
		collectionDir := ""
		for _, slug := range slugs {
			if p := state.items[slug].field("path"); p != "" {
				if idx := strings.LastIndex(strings.TrimSuffix(p, "/"), "/"); idx >= 0 {
					collectionDir = p[:idx]
				}
				break
			}
		}

		for _, slug := range slugs {
			item := state.items[slug]
			if u := item.field("url"); u != "" {
				add(u)
				continue
			}
			if collectionDir != "" && origin != "" {
				add(origin + collectionDir + "/" + slug)
			}
		}
	}

	return urls
}

// CollectionCount 返回已发现的集合数量
func (a *CollectionAggregator) CollectionCount() int {
	return len(a.collections)
}
