package crawlers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
	"github.com/studiobloom/Reflow/internal/models"
	"github.com/studiobloom/Reflow/internal/utils"
)

const (
	// pageFetchAttempts 页面抓取最大尝试次数 (含首次)
	pageFetchAttempts = 3

	// pageBackoffBase 页面重试线性退避基数 (等待 = 尝试次数 × 基数)
	pageBackoffBase = 500 * time.Millisecond
)

// FetchResult 一次页面抓取的结果
type FetchResult struct {
	// StatusCode HTTP状态码
	StatusCode int

	// Body 响应体 (已按Content-Encoding解压)
	Body []byte

	// ContentType HTTP Content-Type头部
	ContentType string
}

// OK 是否为2xx响应
// 非2xx是确定性的跳过页面结果,不重试
func (r *FetchResult) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// PageFetcher 页面抓取器
// 职责: 封装HTTP抓取能力,实施礼貌延迟与瞬时错误重试策略
//
// 爬取阶段是顺序单线程的,延迟在每次边界出队后、请求前执行,
// 保证对目标主机逐一请求的最小间隔
type PageFetcher struct {
	collector *colly.Collector

	// headerProvider 请求头部提供者 (默认 < 配置文件 < 命令行)
	headerProvider models.HeaderProvider

	// delay 请求间礼貌延迟
	delay time.Duration

	// 本次Visit的响应暂存 (collector同步执行,顺序使用,无需加锁)
	lastResult *FetchResult
	lastErr    error
}

// NewPageFetcher 创建页面抓取器
// timeout为单次请求超时;整个运行没有全局超时
func NewPageFetcher(delay time.Duration, timeout time.Duration, headerProvider models.HeaderProvider) *PageFetcher {
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true, // 允许访问证书过期/自签名的站点,导出工具以内容为先
			},
		},
		Timeout: timeout,
	}

	// 同步collector: 页面去重由Frontier负责,这里允许重访并自行解析HTTP错误响应
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
	)
	c.ParseHTTPErrorResponse = true
	c.SetClient(httpClient)
	c.SetRequestTimeout(timeout)

	pf := &PageFetcher{
		collector:      c,
		headerProvider: headerProvider,
		delay:          delay,
	}

	c.OnRequest(func(r *colly.Request) {
		if pf.headerProvider != nil {
			headers, err := pf.headerProvider.GetHeaders()
			if err != nil {
				utils.Warnf("获取HTTP头部失败: %v", err)
			} else {
				for name, values := range headers {
					if len(values) > 0 {
						r.Headers.Set(name, values[0])
					}
				}
			}
		}
		utils.Debugf("抓取页面: %s", r.URL.String())
	})

	c.OnResponse(func(r *colly.Response) {
		body := r.Body
		if encoding := r.Headers.Get("Content-Encoding"); encoding != "" {
			decompressed, err := decompressBody(encoding, r.Body)
			if err != nil {
				utils.Warnf("解压响应失败 [%s] (编码=%s): %v", r.Request.URL, encoding, err)
			} else {
				body = decompressed
			}
		}

		pf.lastResult = &FetchResult{
			StatusCode:  r.StatusCode,
			Body:        body,
			ContentType: r.Headers.Get("Content-Type"),
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		pf.lastErr = err
	})

	return pf
}

// Fetch 抓取一个页面
// 请求前应用礼貌延迟;瞬时网络错误按线性退避重试,重试耗尽返回FetchError;
// 非2xx响应不算错误,由调用方按跳过页面处理
func (pf *PageFetcher) Fetch(ctx context.Context, pageURL string) (*FetchResult, error) {
	// 礼貌延迟 (响应context取消)
	if pf.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pf.delay):
		}
	}

	var lastErr error
	for attempt := 1; attempt <= pageFetchAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		pf.lastResult = nil
		pf.lastErr = nil

		visitErr := pf.collector.Visit(pageURL)

		if pf.lastResult != nil {
			return pf.lastResult, nil
		}

		err := pf.lastErr
		if err == nil {
			err = visitErr
		}

		lastErr = err
		if !isTransientNetErr(err) {
			break
		}

		// 线性退避后重试
		if attempt < pageFetchAttempts {
			wait := time.Duration(attempt) * pageBackoffBase
			utils.Debugf("瞬时抓取错误 [%s] (第%d次): %v, %v后重试", pageURL, attempt, err, wait)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
	}

	return nil, &models.FetchError{
		URL:       pageURL,
		Attempts:  pageFetchAttempts,
		Transient: isTransientNetErr(lastErr),
		Cause:     lastErr,
	}
}

// isTransientNetErr 判断错误是否为可重试的瞬时网络错误
// 覆盖连接重置、超时、临时DNS失败等场景
func isTransientNetErr(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := err.Error()
	for _, marker := range []string{
		"connection reset",
		"connection refused",
		"broken pipe",
		"timeout",
		"temporary failure",
		"EOF",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// decompressBody 根据Content-Encoding头部解压响应体
// 支持 gzip, deflate, br (Brotli) 三种压缩格式
func decompressBody(contentEncoding string, body []byte) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))

	switch encoding {
	case "gzip":
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer reader.Close()
		return io.ReadAll(reader)

	case "deflate":
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()
		return io.ReadAll(reader)

	case "br":
		return io.ReadAll(brotli.NewReader(bytes.NewReader(body)))

	case "":
		return body, nil

	default:
		// 未知编码,原样返回
		utils.Warnf("未知的Content-Encoding: %s", contentEncoding)
		return body, nil
	}
}
