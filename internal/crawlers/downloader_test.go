package crawlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/studiobloom/Reflow/internal/models"
)

func newTestDownloadServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/img/logo.png", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("png-bytes"))
	})
	mux.HandleFunc("/img/copy.png", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("png-bytes"))
	})
	mux.HandleFunc("/css/site.css", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		w.Write([]byte(".a { src: url(/fonts/a.woff2); }"))
	})
	mux.HandleFunc("/fonts/a.woff2", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("font-bytes"))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestDownloadManager(t *testing.T, server *httptest.Server, outputDir string) *DownloadManager {
	t.Helper()
	canon, err := NewCanonicalizer(server.URL)
	if err != nil {
		t.Fatalf("NewCanonicalizer() error = %v", err)
	}
	return NewDownloadManager(DownloadManagerConfig{
		Workers:   2,
		Timeout:   5 * time.Second,
		OutputDir: outputDir,
	}, canon)
}

func TestDownloadManager_Drain(t *testing.T) {
	server := newTestDownloadServer(t)
	outputDir := t.TempDir()
	dm := newTestDownloadManager(t, server, outputDir)

	logoURL := server.URL + "/img/logo.png"
	dm.Enqueue(models.NewAssetRef(logoURL, models.AssetImage))

	report := dm.Drain(context.Background())

	if report.Completed != 1 || report.Failed != 0 {
		t.Fatalf("Completed=%d Failed=%d, want 1/0", report.Completed, report.Failed)
	}

	localPath, ok := dm.ResolveLocal(logoURL)
	if !ok {
		t.Fatal("下载成功的资源应当可解析本地路径")
	}
	data, err := os.ReadFile(filepath.Join(outputDir, filepath.FromSlash(localPath)))
	if err != nil {
		t.Fatalf("读取落盘文件失败: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Errorf("文件内容 = %q", data)
	}
	if report.Bytes != int64(len("png-bytes")) {
		t.Errorf("Bytes = %d", report.Bytes)
	}
}

func TestDownloadManager_EnqueueDedup(t *testing.T) {
	server := newTestDownloadServer(t)
	dm := newTestDownloadManager(t, server, t.TempDir())

	ref := models.NewAssetRef(server.URL+"/img/logo.png", models.AssetImage)
	if !dm.Enqueue(ref) {
		t.Error("首次入队应当被接受")
	}
	if dm.Enqueue(ref) {
		t.Error("重复入队应当是无操作")
	}
	if dm.QueuedCount() != 1 {
		t.Errorf("QueuedCount() = %d, want 1", dm.QueuedCount())
	}
}

func TestDownloadManager_NestedStylesheetRefs(t *testing.T) {
	server := newTestDownloadServer(t)
	outputDir := t.TempDir()
	dm := newTestDownloadManager(t, server, outputDir)

	dm.Enqueue(models.NewAssetRef(server.URL+"/css/site.css", models.AssetStyle))

	report := dm.Drain(context.Background())

	// 样式表内嵌的字体在同一次排空内被下载
	if report.Completed != 2 {
		t.Fatalf("Completed = %d, want 2 (样式表+内嵌字体)", report.Completed)
	}
	fontURL := server.URL + "/fonts/a.woff2"
	if _, ok := dm.ResolveLocal(fontURL); !ok {
		t.Error("内嵌字体未被下载")
	}
}

func TestDownloadManager_FailedAsset(t *testing.T) {
	server := newTestDownloadServer(t)
	dm := newTestDownloadManager(t, server, t.TempDir())

	missingURL := server.URL + "/img/missing.png"
	dm.Enqueue(models.NewAssetRef(missingURL, models.AssetImage))
	dm.Enqueue(models.NewAssetRef(server.URL+"/img/logo.png", models.AssetImage))

	report := dm.Drain(context.Background())

	if report.Completed != 1 || report.Failed != 1 {
		t.Fatalf("Completed=%d Failed=%d, want 1/1", report.Completed, report.Failed)
	}
	if len(report.Failures) != 1 {
		t.Fatalf("Failures数 = %d, want 1", len(report.Failures))
	}
	failure := report.Failures[0]
	if failure.URL != missingURL {
		t.Errorf("失败URL = %s", failure.URL)
	}
	if failure.ErrorType != "http_error" {
		t.Errorf("ErrorType = %s, want http_error", failure.ErrorType)
	}
	// 非2xx是确定性结果,不应重试
	if failure.Retries != 0 {
		t.Errorf("Retries = %d, HTTP错误不应重试", failure.Retries)
	}
	if _, ok := dm.ResolveLocal(missingURL); ok {
		t.Error("失败的资源不应可解析本地路径")
	}
	// 检查点记录失败URL,成功URL不混入
	if got := dm.FailedURLs(); len(got) != 1 || got[0] != missingURL {
		t.Errorf("FailedURLs() = %v, want [%s]", got, missingURL)
	}
}

func TestDownloadManager_DuplicateContent(t *testing.T) {
	server := newTestDownloadServer(t)
	dm := newTestDownloadManager(t, server, t.TempDir())

	dm.Enqueue(models.NewAssetRef(server.URL+"/img/logo.png", models.AssetImage))
	dm.Enqueue(models.NewAssetRef(server.URL+"/img/copy.png", models.AssetImage))

	report := dm.Drain(context.Background())

	if len(report.Duplicates) != 1 {
		t.Fatalf("重复内容组数 = %d, want 1", len(report.Duplicates))
	}
	group := report.Duplicates[0]
	if len(group.URLs) != 2 {
		t.Errorf("重复组URL数 = %d, want 2", len(group.URLs))
	}
	if group.URLs[0] > group.URLs[1] {
		t.Error("重复组URL应当排序")
	}
}

func TestDownloadManager_MarkCompleted(t *testing.T) {
	server := newTestDownloadServer(t)
	dm := newTestDownloadManager(t, server, t.TempDir())

	logoURL := server.URL + "/img/logo.png"
	dm.MarkCompleted(logoURL)

	if dm.Enqueue(models.NewAssetRef(logoURL, models.AssetImage)) {
		t.Error("已完成的资源不应再入队")
	}
	localPath, ok := dm.ResolveLocal(logoURL)
	if !ok {
		t.Fatal("恢复登记的资源应当可解析本地路径")
	}
	if localPath != models.AssetLocalPath(logoURL) {
		t.Errorf("本地路径 = %s", localPath)
	}

	report := dm.Drain(context.Background())
	if report.Completed != 0 {
		t.Errorf("恢复登记的资源不应重新下载, Completed = %d", report.Completed)
	}
}

func TestDownloadManager_CanceledContext(t *testing.T) {
	server := newTestDownloadServer(t)
	dm := newTestDownloadManager(t, server, t.TempDir())

	dm.Enqueue(models.NewAssetRef(server.URL+"/img/logo.png", models.AssetImage))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dm.Drain(ctx)
	if dm.Enqueue(models.NewAssetRef(server.URL+"/img/copy.png", models.AssetImage)) {
		t.Error("取消后入队应当被拒绝")
	}
}
