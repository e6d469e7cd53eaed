package models

import "encoding/json"

// CollectionMarker 页面上观测到的一个集合标记
// 由绑定属性驱动识别,与元素标签无关
type CollectionMarker struct {
	// CollectionID 集合标识 (绑定属性的值)
	CollectionID string

	// Slug 条目标识
	Slug string

	// Fields 条目字段数据 (字段名→值)
	Fields map[string]string

	// PageURL 观测到该标记的页面URL
	PageURL string
}

// CollectionItem 聚合后的集合条目
type CollectionItem struct {
	Slug   string            `json:"slug"`   // 条目标识
	Fields map[string]string `json:"fields"` // 聚合后的字段数据
}

// CollectionRecord 聚合后的集合记录
// cms_collections.json 的元素
type CollectionRecord struct {
	CollectionID string           `json:"collectionId"` // 集合标识
	Items        []CollectionItem `json:"items"`        // 条目列表 (按slug排序)
	Pages        []string         `json:"pages"`        // 引用该集合的页面URL (排序后)
}

// CMSPageRecord 携带集合标记的页面记录
// cms_pages.json 的元素
type CMSPageRecord struct {
	PageURL      string `json:"pageUrl"`      // 页面URL
	CollectionID string `json:"collectionId"` // 集合标识
	Slug         string `json:"slug"`         // 条目标识
}

// ToJSON 序列化为JSON
func (r *CollectionRecord) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// NonEmptyFieldCount 返回非空字段数量
func (i *CollectionItem) NonEmptyFieldCount() int {
	count := 0
	for _, v := range i.Fields {
		if v != "" {
			count++
		}
	}
	return count
}

// MarkerFieldCount 返回标记的非空字段数量
func (m *CollectionMarker) MarkerFieldCount() int {
	count := 0
	for _, v := range m.Fields {
		if v != "" {
			count++
		}
	}
	return count
}
