package models

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"有效的HTTP URL", "http://example.com", false},
		{"有效的HTTPS URL", "https://example.com", false},
		{"带路径的URL", "https://example.com/path/to/resource", false},
		{"无效的协议", "ftp://example.com", true},
		{"无效的URL", "not a url", true},
		{"空URL", "", true},
		{"无协议", "example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExportConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  ExportConfig
		wantErr bool
	}{
		{
			name:    "有效配置",
			config:  DefaultExportConfig(),
			wantErr: false,
		},
		{
			name: "并发数过小",
			config: ExportConfig{
				Workers: 0,
				Delay:   0.2,
				Timeout: 30,
			},
			wantErr: true,
		},
		{
			name: "并发数过大",
			config: ExportConfig{
				Workers: 101,
				Delay:   0.2,
				Timeout: 30,
			},
			wantErr: true,
		},
		{
			name: "负数延迟",
			config: ExportConfig{
				Workers: 5,
				Delay:   -1,
				Timeout: 30,
			},
			wantErr: true,
		},
		{
			name: "超时为零",
			config: ExportConfig{
				Workers: 5,
				Delay:   0.2,
				Timeout: 0,
			},
			wantErr: true,
		},
		{
			name: "无效的合并策略",
			config: ExportConfig{
				Workers:     5,
				Delay:       0.2,
				Timeout:     30,
				MergePolicy: "newest",
			},
			wantErr: true,
		},
		{
			name: "深度超限",
			config: ExportConfig{
				Workers:  5,
				Delay:    0.2,
				Timeout:  30,
				MaxDepth: 51,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAssetLocalPath(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "普通路径镜像",
			url:  "https://cdn.example.com/css/site.css",
			want: "assets/cdn.example.com/css/site.css",
		},
		{
			name: "主机名转小写",
			url:  "https://CDN.Example.COM/js/app.js",
			want: "assets/cdn.example.com/js/app.js",
		},
		{
			name: "多级目录",
			url:  "https://example.com/images/2024/photo.jpg",
			want: "assets/example.com/images/2024/photo.jpg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AssetLocalPath(tt.url)
			if got != tt.want {
				t.Errorf("AssetLocalPath() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAssetLocalPath_EdgeCases(t *testing.T) {
	t.Run("确定性", func(t *testing.T) {
		url := "https://example.com/img/a.png?v=123"
		first := AssetLocalPath(url)
		second := AssetLocalPath(url)
		if first != second {
			t.Errorf("相同URL应产生相同路径: %v != %v", first, second)
		}
	})

	t.Run("query变体不碰撞", func(t *testing.T) {
		a := AssetLocalPath("https://example.com/img/a.png?v=1")
		b := AssetLocalPath("https://example.com/img/a.png?v=2")
		plain := AssetLocalPath("https://example.com/img/a.png")
		if a == b {
			t.Errorf("不同query应产生不同路径: %v", a)
		}
		if a == plain || b == plain {
			t.Error("带query的URL不应与无query的URL碰撞")
		}
		if !strings.HasSuffix(a, ".png") {
			t.Errorf("应保留扩展名: %v", a)
		}
		if strings.Contains(a, "?") {
			t.Errorf("路径不应包含query字符: %v", a)
		}
	})

	t.Run("空路径回退", func(t *testing.T) {
		got := AssetLocalPath("https://example.com")
		if !strings.HasPrefix(got, "assets/example.com/") {
			t.Errorf("应位于主机目录下: %v", got)
		}
	})

	t.Run("目录形式路径回退", func(t *testing.T) {
		got := AssetLocalPath("https://example.com/media/")
		if strings.HasSuffix(got, "/") {
			t.Errorf("路径不应以斜杠结尾: %v", got)
		}
	})

	t.Run("路径逃逸防护", func(t *testing.T) {
		got := AssetLocalPath("https://example.com/../../etc/passwd")
		if strings.Contains(got, "..") {
			t.Errorf("路径不应包含..: %v", got)
		}
		if !strings.HasPrefix(got, "assets/") {
			t.Errorf("路径必须位于assets/下: %v", got)
		}
	})

	t.Run("非法字符替换", func(t *testing.T) {
		got := AssetLocalPath(`https://example.com/a:b/c.png`)
		if strings.ContainsAny(got, `<>:"|?*`) {
			t.Errorf("路径不应包含非法字符: %v", got)
		}
	})
}

func TestNewAssetRef(t *testing.T) {
	ref := NewAssetRef("https://cdn.example.com/css/site.css", AssetStyle)

	if ref.URL != "https://cdn.example.com/css/site.css" {
		t.Errorf("URL = %v", ref.URL)
	}
	if ref.Kind != AssetStyle {
		t.Errorf("Kind = %v, want %v", ref.Kind, AssetStyle)
	}
	if ref.LocalPath != "assets/cdn.example.com/css/site.css" {
		t.Errorf("LocalPath = %v", ref.LocalPath)
	}
}

func TestFetchError(t *testing.T) {
	t.Run("瞬时错误可识别", func(t *testing.T) {
		err := &FetchError{URL: "https://example.com", Transient: true, Attempts: 3}
		if !IsTransientFetch(err) {
			t.Error("应识别为瞬时错误")
		}
	})

	t.Run("非2xx不是瞬时错误", func(t *testing.T) {
		err := &FetchError{URL: "https://example.com", StatusCode: 404, Transient: false}
		if IsTransientFetch(err) {
			t.Error("HTTP错误不应识别为瞬时错误")
		}
	})

	t.Run("包装后仍可识别", func(t *testing.T) {
		inner := &FetchError{URL: "https://example.com", Transient: true}
		wrapped := &SeedUnreachableError{SeedURL: "https://example.com", Cause: inner}
		if !IsTransientFetch(wrapped) {
			t.Error("errors.As应穿透包装")
		}
		var se *SeedUnreachableError
		if !errors.As(wrapped, &se) {
			t.Error("应识别为SeedUnreachableError")
		}
	})
}

func TestCheckpoint_SaveLoad(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, CheckpointFilename("example.com"))

	cp := &Checkpoint{
		TaskID:          NewTaskID(),
		SeedURL:         "https://example.com",
		VisitedPages:    []string{"https://example.com", "https://example.com/about"},
		CompletedAssets: []string{"https://cdn.example.com/css/site.css"},
	}

	if err := cp.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	loaded, err := LoadCheckpointFromFile(path)
	if err != nil {
		t.Fatalf("LoadCheckpointFromFile() error = %v", err)
	}

	if loaded.TaskID != cp.TaskID {
		t.Errorf("TaskID不匹配: got %v, want %v", loaded.TaskID, cp.TaskID)
	}
	if len(loaded.VisitedPages) != 2 {
		t.Errorf("VisitedPages长度 = %d, want 2", len(loaded.VisitedPages))
	}
	if loaded.UpdatedAt.IsZero() {
		t.Error("保存时应更新UpdatedAt")
	}
}

func TestCollectionItem_NonEmptyFieldCount(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
		want   int
	}{
		{"全部非空", map[string]string{"title": "a", "url": "b"}, 2},
		{"部分为空", map[string]string{"title": "a", "summary": ""}, 1},
		{"空map", map[string]string{}, 0},
		{"nil map", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := CollectionItem{Slug: "x", Fields: tt.fields}
			if got := item.NonEmptyFieldCount(); got != tt.want {
				t.Errorf("NonEmptyFieldCount() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestExportReport_JSON(t *testing.T) {
	report := &ExportReport{
		TaskID:  NewTaskID(),
		SeedURL: "https://example.com",
		Host:    "example.com",
		Stats:   ExportStats{PagesFetched: 3, AssetsCompleted: 7},
	}

	jsonData, err := report.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	var decoded ExportReport
	if err := decoded.FromJSON(jsonData); err != nil {
		t.Fatalf("FromJSON() error = %v", err)
	}

	if decoded.TaskID != report.TaskID {
		t.Errorf("解码后的TaskID不匹配: got %v, want %v", decoded.TaskID, report.TaskID)
	}
	if decoded.Stats.PagesFetched != 3 {
		t.Errorf("解码后的统计不匹配: got %d, want 3", decoded.Stats.PagesFetched)
	}
}

func TestMalformedReferenceError(t *testing.T) {
	cause := errors.New("invalid host")
	err := &MalformedReferenceError{
		Ref:     "https://exa mple.com/x",
		PageURL: "https://example.com/",
		Cause:   cause,
	}

	if !strings.Contains(err.Error(), "https://exa mple.com/x") {
		t.Errorf("错误信息应包含原始引用: %s", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is应穿透到底层错误")
	}
}
