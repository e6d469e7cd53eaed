package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/studiobloom/Reflow/internal/models"
)

// newTestSite 构建一个带集合列表、共享样式表和失败资源的测试站点
func newTestSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head>
			<link rel="stylesheet" href="/css/site.css">
		</head><body>
			<a href="/about">关于</a>
			<nav data-wf-collection="posts">
				<a href="/blog/alpha">Alpha</a>
				<a href="/blog/beta">Beta</a>
			</nav>
			<img src="/img/logo.png">
			<img src="/img/missing.png">
		</body></html>`))
	})
	page := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte(body))
		}
	}
	mux.HandleFunc("/about", page(`<html><body><a href="/">首页</a></body></html>`))
	mux.HandleFunc("/blog/alpha", page(`<html><body>
		<article data-wf-collection="posts" data-wf-item-slug="alpha">
			<h1 data-wf-field="title">Alpha文章</h1>
		</article>
	</body></html>`))
	mux.HandleFunc("/blog/beta", page(`<html><body>
		<article data-wf-collection="posts" data-wf-item-slug="beta">
			<h1 data-wf-field="title">Beta文章</h1>
		</article>
	</body></html>`))
	mux.HandleFunc("/css/site.css", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		w.Write([]byte(".hero { background: url(/img/bg.png); }"))
	})
	mux.HandleFunc("/img/logo.png", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("logo-bytes"))
	})
	mux.HandleFunc("/img/bg.png", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("bg-bytes"))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func testExportConfig() models.ExportConfig {
	cfg := models.DefaultExportConfig()
	cfg.Workers = 2
	cfg.Delay = 0
	cfg.Timeout = 5
	cfg.ZipOutput = false
	return cfg
}

func hostOf(t *testing.T, serverURL string) string {
	t.Helper()
	parsed, err := url.Parse(serverURL)
	if err != nil {
		t.Fatalf("解析服务器URL失败: %v", err)
	}
	return parsed.Hostname()
}

func TestExporter_Export(t *testing.T) {
	server := newTestSite(t)
	base := t.TempDir()
	host := hostOf(t, server.URL)

	exporter, err := NewExporter(server.URL, testExportConfig(), base, nil, true)
	if err != nil {
		t.Fatalf("NewExporter() error = %v", err)
	}

	report, err := exporter.Export(context.Background())
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	outputDir := filepath.Join(base, host)

	// 页面落盘
	for _, rel := range []string{"index.html", "about.html", "blog/alpha.html", "blog/beta.html"} {
		if _, err := os.Stat(filepath.Join(outputDir, filepath.FromSlash(rel))); err != nil {
			t.Errorf("页面文件缺失 %s: %v", rel, err)
		}
	}
	if report.Stats.PagesFetched != 4 {
		t.Errorf("PagesFetched = %d, want 4", report.Stats.PagesFetched)
	}

	// 链接与资源引用重写
	index, err := os.ReadFile(filepath.Join(outputDir, "index.html"))
	if err != nil {
		t.Fatalf("读取index.html失败: %v", err)
	}
	for _, want := range []string{
		`href="about.html"`,
		`href="blog/alpha.html"`,
		`src="assets/` + host + `/img/logo.png"`,
		`href="assets/` + host + `/css/site.css"`,
	} {
		if !strings.Contains(string(index), want) {
			t.Errorf("index.html 缺少 %q", want)
		}
	}
	// 下载失败的资源保持原引用
	if !strings.Contains(string(index), `src="/img/missing.png"`) {
		t.Error("失败资源的引用不应被改写")
	}

	// 样式表重写
	css, err := os.ReadFile(filepath.Join(outputDir, "assets", host, "css", "site.css"))
	if err != nil {
		t.Fatalf("读取样式表失败: %v", err)
	}
	if !strings.Contains(string(css), "url(../img/bg.png)") {
		t.Errorf("样式表未重写: %s", css)
	}

	// 失败资源不中断导出
	if report.Stats.AssetsFailed != 1 {
		t.Errorf("AssetsFailed = %d, want 1", report.Stats.AssetsFailed)
	}
	if report.Stats.AssetsCompleted != 3 {
		t.Errorf("AssetsCompleted = %d, want 3 (logo+css+bg)", report.Stats.AssetsCompleted)
	}

	// CMS集合数据
	var collections []models.CollectionRecord
	data, err := os.ReadFile(filepath.Join(outputDir, "cms_collections.json"))
	if err != nil {
		t.Fatalf("读取 cms_collections.json 失败: %v", err)
	}
	if err := json.Unmarshal(data, &collections); err != nil {
		t.Fatalf("解析 cms_collections.json 失败: %v", err)
	}
	if len(collections) != 1 || collections[0].CollectionID != "posts" {
		t.Fatalf("集合数据 = %+v", collections)
	}
	slugs := make([]string, 0, 2)
	for _, item := range collections[0].Items {
		slugs = append(slugs, item.Slug)
	}
	if len(slugs) != 2 || slugs[0] != "alpha" || slugs[1] != "beta" {
		t.Errorf("集合条目 = %v, want [alpha beta]", slugs)
	}
	// 详情页的字段观测并入同一条目
	if collections[0].Items[0].Fields["title"] != "Alpha文章" {
		t.Errorf("条目字段未合并: %v", collections[0].Items[0].Fields)
	}

	// 报告与检查点
	if _, err := os.Stat(filepath.Join(outputDir, "reports", "export_report.json")); err != nil {
		t.Errorf("导出报告缺失: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outputDir, models.CheckpointFilename(host))); !os.IsNotExist(err) {
		t.Error("导出成功后检查点应当被移除")
	}
}

func TestExporter_ZipArchive(t *testing.T) {
	server := newTestSite(t)
	base := t.TempDir()

	cfg := testExportConfig()
	cfg.ZipOutput = true

	exporter, err := NewExporter(server.URL, cfg, base, nil, true)
	if err != nil {
		t.Fatalf("NewExporter() error = %v", err)
	}
	report, err := exporter.Export(context.Background())
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	if report.ArchivePath == "" {
		t.Fatal("启用zip时报告应当包含归档路径")
	}
	if filepath.Dir(report.ArchivePath) != base {
		t.Errorf("归档位置 = %s, 应当在输出目录的父目录", report.ArchivePath)
	}
	if _, err := os.Stat(report.ArchivePath); err != nil {
		t.Errorf("归档文件缺失: %v", err)
	}
}

func TestExporter_SeedUnreachable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "server error", http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	base := t.TempDir()
	host := hostOf(t, server.URL)

	exporter, err := NewExporter(server.URL, testExportConfig(), base, nil, true)
	if err != nil {
		t.Fatalf("NewExporter() error = %v", err)
	}

	_, err = exporter.Export(context.Background())
	if err == nil {
		t.Fatal("种子不可达时Export应当失败")
	}
	var serr *models.SeedUnreachableError
	if !errors.As(err, &serr) {
		t.Errorf("错误类型 = %T, want *models.SeedUnreachableError", err)
	}

	// 种子失败时不产生任何输出
	if _, err := os.Stat(filepath.Join(base, host)); !os.IsNotExist(err) {
		t.Error("种子不可达时不应创建输出目录")
	}
}

func TestExporter_ClobberProtection(t *testing.T) {
	server := newTestSite(t)
	base := t.TempDir()
	host := hostOf(t, server.URL)

	// 预置非空输出目录
	outputDir := filepath.Join(base, host)
	os.MkdirAll(outputDir, 0755)
	os.WriteFile(filepath.Join(outputDir, "index.html"), []byte("old"), 0644)

	exporter, err := NewExporter(server.URL, testExportConfig(), base, nil, true)
	if err != nil {
		t.Fatalf("NewExporter() error = %v", err)
	}

	_, err = exporter.Export(context.Background())
	if err == nil {
		t.Fatal("非空输出目录无force时应当拒绝")
	}
	var oerr *models.OutputWriteError
	if !errors.As(err, &oerr) {
		t.Errorf("错误类型 = %T, want *models.OutputWriteError", err)
	}

	// 原有内容未被触碰
	data, _ := os.ReadFile(filepath.Join(outputDir, "index.html"))
	if string(data) != "old" {
		t.Error("拒绝覆盖时不应修改已有文件")
	}
}

func TestExporter_InvalidConfig(t *testing.T) {
	cfg := testExportConfig()
	cfg.Workers = 0

	if _, err := NewExporter("https://example.com", cfg, t.TempDir(), nil, true); err == nil {
		t.Error("非法配置应当在创建时被拒绝")
	}
}
