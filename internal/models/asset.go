package models

import (
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
)

// AssetKind 资源类型
type AssetKind string

const (
	AssetStyle  AssetKind = "style"  // 样式表
	AssetScript AssetKind = "script" // 脚本
	AssetImage  AssetKind = "image"  // 图片(含favicon)
	AssetFont   AssetKind = "font"   // 字体
	AssetMedia  AssetKind = "media"  // 音视频
)

// AssetStatus 资源下载状态
type AssetStatus string

const (
	AssetPending     AssetStatus = "pending"     // 等待下载
	AssetDownloading AssetStatus = "downloading" // 下载中
	AssetCompleted   AssetStatus = "completed"   // 下载完成
	AssetFailed      AssetStatus = "failed"      // 重试耗尽后失败 (非致命)
	AssetSkipped     AssetStatus = "skipped"     // 跳过 (robots禁止等)
)

// AssetRef 一个已发现的可下载资源及其本地目标路径
// 不变式: 每个规范化源URL只有一个AssetRef,LocalPath创建时计算一次且稳定
type AssetRef struct {
	// URL 规范化的资源源URL (可跨域,如CDN)
	URL string `json:"url"`

	// Kind 资源类型
	Kind AssetKind `json:"kind"`

	// LocalPath 输出树内的相对路径 (正斜杠分隔)
	LocalPath string `json:"local_path"`
}

// NewAssetRef 创建资源引用,本地路径由源URL确定性推导
func NewAssetRef(canonicalURL string, kind AssetKind) AssetRef {
	return AssetRef{
		URL:       canonicalURL,
		Kind:      kind,
		LocalPath: AssetLocalPath(canonicalURL),
	}
}

// AssetResult 单个资源的下载结果
type AssetResult struct {
	AssetRef

	// Status 最终状态
	Status AssetStatus `json:"status"`

	// ErrorMsg 失败原因 (仅失败时)
	ErrorMsg string `json:"error_msg,omitempty"`

	// Retries 重试次数
	Retries int `json:"retries"`

	// Size 文件大小(字节)
	Size int64 `json:"size"`

	// Hash SHA-256内容哈希 (仅成功时)
	Hash string `json:"hash,omitempty"`

	// DownloadedAt 完成时间
	DownloadedAt time.Time `json:"downloaded_at"`
}

// ToJSON 序列化为JSON
func (r *AssetResult) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// AssetLocalPath 从规范化URL推导资源的本地相对路径
// 方案: assets/<主机名>/<URL路径>,确定性且抗碰撞:
//   - 空路径或目录形式路径回退到URL哈希命名
//   - 带query的URL在扩展名前插入8位哈希标记,区分缓存破坏变体
//   - 路径段中的".."和非法字符被替换,防止逃逸输出目录
func AssetLocalPath(canonicalURL string) string {
	parsed, err := url.Parse(canonicalURL)
	if err != nil || parsed.Host == "" {
		return path.Join("assets", "asset_"+shortHash(canonicalURL))
	}

	p := strings.TrimPrefix(parsed.Path, "/")
	if p == "" || strings.HasSuffix(p, "/") {
		p = p + "asset_" + shortHash(canonicalURL)
	}

	// 清理路径段
	segments := strings.Split(p, "/")
	cleaned := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		cleaned = append(cleaned, sanitizeSegment(seg))
	}
	if len(cleaned) == 0 {
		cleaned = []string{"asset_" + shortHash(canonicalURL)}
	}
	p = strings.Join(cleaned, "/")

	// query变体标记
	if parsed.RawQuery != "" {
		ext := path.Ext(p)
		p = strings.TrimSuffix(p, ext) + "_" + shortHash(parsed.RawQuery) + ext
	}

	return path.Join("assets", strings.ToLower(parsed.Hostname()), p)
}

// sanitizeSegment 替换文件系统非法字符
func sanitizeSegment(seg string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '\\', '|', '?', '*':
			return '_'
		}
		if r < 0x20 {
			return '_'
		}
		return r
	}, seg)
}

// shortHash 返回字符串SHA-1哈希的前8位十六进制
func shortHash(s string) string {
	sum := sha1.Sum([]byte(s))
	return fmt.Sprintf("%x", sum)[:8]
}
