package core

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kennygrant/sanitize"
	"github.com/studiobloom/Reflow/internal/models"
	"github.com/studiobloom/Reflow/internal/utils"
)

// PageOutputPath 从规范化页面URL推导输出树内的相对路径
// 映射规则:
//   - 根路径 "/" → index.html
//   - 以"/"结尾的路径 → <路径>/index.html
//   - 无扩展名的路径 → <路径>.html
//   - 带扩展名的路径原样保留
func PageOutputPath(canonicalURL string) string {
	parsed, err := url.Parse(canonicalURL)
	if err != nil {
		return "index.html"
	}

	p := parsed.Path
	switch {
	case p == "" || p == "/":
		return "index.html"
	case strings.HasSuffix(p, "/"):
		return strings.TrimPrefix(p, "/") + "index.html"
	case path.Ext(p) == "":
		return strings.TrimPrefix(p, "/") + ".html"
	default:
		return strings.TrimPrefix(p, "/")
	}
}

// OutputWriter 输出树写入器
type OutputWriter struct {
	// outputDir 本次任务的输出根目录
	outputDir string

	// host 站点主机名 (zip命名用)
	host string
}

// NewOutputWriter 创建输出写入器
func NewOutputWriter(outputDir, host string) *OutputWriter {
	return &OutputWriter{outputDir: outputDir, host: host}
}

// OutputDir 输出根目录
func (w *OutputWriter) OutputDir() string {
	return w.outputDir
}

// CheckClobber 覆盖保护检查
// 输出目录已存在且非空时,没有force标志则拒绝写入
// 检查在任何网络请求之前进行,失败时不产生任何输出
func (w *OutputWriter) CheckClobber(force bool) error {
	entries, err := os.ReadDir(w.outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &models.OutputWriteError{Path: w.outputDir, Cause: err}
	}

	// 已有检查点文件的目录视为可恢复,不算冲突
	nonCheckpoint := 0
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "checkpoint_") {
			continue
		}
		nonCheckpoint++
	}

	if nonCheckpoint > 0 && !force {
		return &models.OutputWriteError{
			Path:  w.outputDir,
			Cause: fmt.Errorf("输出目录非空, 使用 --force 允许覆盖"),
		}
	}
	return nil
}

// Setup 创建输出目录结构
func (w *OutputWriter) Setup() error {
	dirs := []string{
		w.outputDir,
		filepath.Join(w.outputDir, "assets"),
		filepath.Join(w.outputDir, "reports"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &models.OutputWriteError{Path: dir, Cause: err}
		}
		utils.Debugf("创建目录: %s", dir)
	}

	utils.Infof("✅ 输出目录结构创建完成: %s", w.outputDir)
	return nil
}

// WritePage 写入单个页面文件
func (w *OutputWriter) WritePage(relPath string, body []byte) error {
	fullPath := filepath.Join(w.outputDir, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return &models.OutputWriteError{Path: fullPath, Cause: err}
	}
	if err := os.WriteFile(fullPath, body, 0644); err != nil {
		return &models.OutputWriteError{Path: fullPath, Cause: err}
	}
	return nil
}

// WriteCMSData 写出CMS集合数据
// cms_collections.json: 聚合后的集合记录
// cms_pages.json: 携带集合标记的页面记录
// 未检测到任何集合时两个文件都不写
func (w *OutputWriter) WriteCMSData(collections []models.CollectionRecord, pages []models.CMSPageRecord) error {
	if len(collections) == 0 {
		return nil
	}

	if err := w.writeJSON("cms_collections.json", collections); err != nil {
		return err
	}

	if pages == nil {
		pages = []models.CMSPageRecord{}
	}
	if err := w.writeJSON("cms_pages.json", pages); err != nil {
		return err
	}

	utils.Infof("📦 CMS数据已写出: %d个集合, %d个条目页面", len(collections), len(pages))
	return nil
}

// writeJSON 写出JSON文件到输出根目录
func (w *OutputWriter) writeJSON(filename string, data interface{}) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return &models.OutputWriteError{Path: filename, Cause: err}
	}

	fullPath := filepath.Join(w.outputDir, filename)
	if err := os.WriteFile(fullPath, jsonData, 0644); err != nil {
		return &models.OutputWriteError{Path: fullPath, Cause: err}
	}
	return nil
}

// CreateArchive 把输出树打包为zip归档
// 归档命名: <净化后的主机名>-<YYYYmmdd-HHMMSS>.zip,放在输出目录的父目录
// 输出树本身保留,归档是额外产物
func (w *OutputWriter) CreateArchive() (string, error) {
	timestamp := time.Now().Format("20060102-150405")
	name := fmt.Sprintf("%s-%s.zip", sanitize.BaseName(w.host), timestamp)
	archivePath := filepath.Join(filepath.Dir(w.outputDir), name)

	zipFile, err := os.Create(archivePath)
	if err != nil {
		return "", &models.OutputWriteError{Path: archivePath, Cause: err}
	}
	defer zipFile.Close()

	zw := zip.NewWriter(zipFile)
	defer zw.Close()

	// 确定性顺序: 先收集再排序
	var files []string
	err = filepath.Walk(w.outputDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return "", &models.OutputWriteError{Path: w.outputDir, Cause: err}
	}
	sort.Strings(files)

	for _, p := range files {
		rel, err := filepath.Rel(w.outputDir, p)
		if err != nil {
			return "", &models.OutputWriteError{Path: p, Cause: err}
		}

		entry, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return "", &models.OutputWriteError{Path: p, Cause: err}
		}

		src, err := os.Open(p)
		if err != nil {
			return "", &models.OutputWriteError{Path: p, Cause: err}
		}
		if _, err := io.Copy(entry, src); err != nil {
			src.Close()
			return "", &models.OutputWriteError{Path: p, Cause: err}
		}
		src.Close()
	}

	utils.Infof("🗜️  归档已创建: %s", archivePath)
	return archivePath, nil
}
