package crawlers

import (
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/studiobloom/Reflow/internal/utils"
	"github.com/temoto/robotstxt"
)

// RobotsGuard robots.txt检查器
// 职责: 按主机懒加载并缓存robots.txt,供页面爬取与资源下载共用
//
// 获取或解析失败时放行 (fail-open): robots支持是可选的礼貌性功能,
// 不应因目标站点robots异常而中断导出
type RobotsGuard struct {
	client    *http.Client
	userAgent string

	// cache 主机 → 解析后的robots数据 (nil表示获取失败,放行)
	cache map[string]*robotstxt.RobotsData
	mu    sync.Mutex
}

// NewRobotsGuard 创建robots检查器
func NewRobotsGuard(client *http.Client, userAgent string) *RobotsGuard {
	return &RobotsGuard{
		client:    client,
		userAgent: userAgent,
		cache:     make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed 检查URL是否被robots.txt允许访问
func (rg *RobotsGuard) Allowed(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return true
	}

	data := rg.robotsFor(parsed.Scheme, parsed.Host)
	if data == nil {
		return true
	}

	group := data.FindGroup(rg.userAgent)
	if group == nil {
		return true
	}
	return group.Test(parsed.Path)
}

// robotsFor 获取主机的robots数据 (带缓存)
func (rg *RobotsGuard) robotsFor(scheme, host string) *robotstxt.RobotsData {
	rg.mu.Lock()
	if data, ok := rg.cache[host]; ok {
		rg.mu.Unlock()
		return data
	}
	rg.mu.Unlock()

	data := rg.fetchRobots(scheme, host)

	rg.mu.Lock()
	rg.cache[host] = data
	rg.mu.Unlock()

	return data
}

// fetchRobots 抓取并解析robots.txt,任何失败返回nil (放行)
func (rg *RobotsGuard) fetchRobots(scheme, host string) *robotstxt.RobotsData {
	robotsURL := scheme + "://" + host + "/robots.txt"

	resp, err := rg.client.Get(robotsURL)
	if err != nil {
		utils.Debugf("获取robots.txt失败 [%s]: %v", robotsURL, err)
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		utils.Debugf("读取robots.txt失败 [%s]: %v", robotsURL, err)
		return nil
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		utils.Debugf("解析robots.txt失败 [%s]: %v", robotsURL, err)
		return nil
	}

	utils.Debugf("已加载robots.txt: %s", robotsURL)
	return data
}
