package crawlers

import (
	"reflect"
	"strings"
	"testing"

	"github.com/studiobloom/Reflow/internal/models"
)

// mapResolver 测试用的资源解析器: 规范化URL → 本地相对路径
type mapResolver map[string]string

func (m mapResolver) ResolveLocal(canonicalURL string) (string, bool) {
	p, ok := m[canonicalURL]
	return p, ok
}

func newTestRewriter(t *testing.T) *StylesheetRewriter {
	t.Helper()
	canon, err := NewCanonicalizer("https://example.com")
	if err != nil {
		t.Fatalf("NewCanonicalizer() error = %v", err)
	}
	return NewStylesheetRewriter(canon)
}

func TestStylesheetRewriter_Rewrite(t *testing.T) {
	rewriter := newTestRewriter(t)
	resolver := mapResolver{
		"https://cdn.example.net/img/bg.png":    "assets/cdn.example.net/img/bg.png",
		"https://cdn.example.net/fonts/a.woff2": "assets/cdn.example.net/fonts/a.woff2",
		"https://cdn.example.net/css/base.css":  "assets/cdn.example.net/css/base.css",
	}
	sourceURL := "https://cdn.example.net/css/site.css"
	selfPath := "assets/cdn.example.net/css/site.css"

	css := `@import "/css/base.css";
.a { background: url(/img/bg.png); }
.b { background: url('/img/bg.png'); }
.c { background: url("/img/bg.png"); }
@font-face { src: url(/fonts/a.woff2); }
.d { background: url(data:image/png;base64,AAAA); }`

	got, unresolved := rewriter.Rewrite(css, sourceURL, selfPath, resolver)

	for _, want := range []string{
		`@import "base.css"`,
		"url(../img/bg.png)",
		"url('../img/bg.png')",
		`url("../img/bg.png")`,
		"url(../fonts/a.woff2)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("重写结果缺少 %q:\n%s", want, got)
		}
	}
	if !strings.Contains(got, "url(data:image/png;base64,AAAA)") {
		t.Error("data URI应当保持原样")
	}
	if len(unresolved) != 0 {
		t.Errorf("不应有未解析引用: %v", unresolved)
	}
}

func TestStylesheetRewriter_UnresolvedKeptVerbatim(t *testing.T) {
	rewriter := newTestRewriter(t)
	resolver := mapResolver{}

	css := `.a { background: url(/img/missing.png); }`
	got, unresolved := rewriter.Rewrite(css, "https://example.com/css/site.css", "assets/example.com/css/site.css", resolver)

	if got != css {
		t.Errorf("无对应资源时应当字节级原样保留:\ngot:  %s\nwant: %s", got, css)
	}
	if len(unresolved) != 1 {
		t.Fatalf("未解析引用数 = %d, want 1", len(unresolved))
	}
	if unresolved[0].Ref != "/img/missing.png" {
		t.Errorf("未解析引用 = %+v", unresolved[0])
	}
}

func TestStylesheetRewriter_Idempotent(t *testing.T) {
	rewriter := newTestRewriter(t)
	resolver := mapResolver{
		"https://example.com/img/bg.png": "assets/example.com/img/bg.png",
	}
	sourceURL := "https://example.com/css/site.css"
	selfPath := "assets/example.com/css/site.css"

	first, _ := rewriter.Rewrite(`.a { background: url(/img/bg.png); }`, sourceURL, selfPath, resolver)
	second, _ := rewriter.Rewrite(first, sourceURL, selfPath, resolver)

	if first != second {
		t.Errorf("对已重写文本再次执行应当是无操作:\nfirst:  %s\nsecond: %s", first, second)
	}
}

func TestExtractStylesheetRefs(t *testing.T) {
	canon, err := NewCanonicalizer("https://example.com")
	if err != nil {
		t.Fatalf("NewCanonicalizer() error = %v", err)
	}

	css := `@import "base.css";
.a { background: url(../img/bg.png); }
.b { background: url(../img/bg.png); }
.c { cursor: url(data:image/png;base64,AAAA); }
.d { mask: url(#clip); }`

	got := ExtractStylesheetRefs(css, "https://cdn.example.net/css/site.css", canon)
	want := []string{
		"https://cdn.example.net/img/bg.png",
		"https://cdn.example.net/css/base.css",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractStylesheetRefs() = %v, want %v", got, want)
	}
}

func TestKindForAssetURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want models.AssetKind
	}{
		{"样式表", "https://example.com/a.css", models.AssetStyle},
		{"脚本", "https://example.com/a.js", models.AssetScript},
		{"模块脚本", "https://example.com/a.mjs", models.AssetScript},
		{"字体", "https://example.com/a.woff2", models.AssetFont},
		{"视频", "https://example.com/a.mp4", models.AssetMedia},
		{"带query的样式表", "https://example.com/a.css?v=3", models.AssetStyle},
		{"未知扩展名回退为图片", "https://example.com/a.bin", models.AssetImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindForAssetURL(tt.url); got != tt.want {
				t.Errorf("KindForAssetURL(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}
