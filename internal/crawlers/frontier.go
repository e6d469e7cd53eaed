package crawlers

import (
	"context"
	"sort"
	"sync"

	"github.com/studiobloom/Reflow/internal/models"
)

// Frontier 页面边界队列
// 职责: 管理已发现和已访问的页面URL,FIFO出队实现广度优先爬取
//
// 每个URL的状态机: discovered → queued → fetched → processed (终态)
// discovered→queued的转移与visited集合写入在同一临界区内完成,
// 保证同一规范化URL不可能入队两次
type Frontier struct {
	// pending 待抓取队列 (FIFO)
	pending []models.PageItem

	// states URL状态表 (同时充当visited集合: 出现即已入队)
	states map[string]models.PageState

	// maxDepth 最大爬取深度 (0=不限制,深度仅作诊断用)
	maxDepth int

	// closed 队列是否已关闭 (取消后拒绝新URL)
	closed bool

	mu sync.Mutex
}

// NewFrontier 创建边界队列
func NewFrontier(maxDepth int) *Frontier {
	return &Frontier{
		pending:  make([]models.PageItem, 0, 64),
		states:   make(map[string]models.PageState),
		maxDepth: maxDepth,
	}
}

// Push 添加规范化URL到待抓取队列
// 同一URL只会入队一次;visited检查与入队在同一锁区间内原子完成
// 返回true表示URL被接受入队
func (f *Frontier) Push(canonicalURL string, depth int, sourceURL string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return false
	}

	// 深度上限 (仅在显式配置时生效)
	if f.maxDepth > 0 && depth > f.maxDepth {
		return false
	}

	// visited检查: 出现在状态表中即已入队过
	if _, seen := f.states[canonicalURL]; seen {
		return false
	}

	f.states[canonicalURL] = models.PageQueued
	f.pending = append(f.pending, models.PageItem{
		URL:       canonicalURL,
		Depth:     depth,
		SourceURL: sourceURL,
	})
	return true
}

// Pop 取出下一个待抓取URL (FIFO)
// 队列为空或context已取消时返回false;空队列即爬取阶段的终止条件
func (f *Frontier) Pop(ctx context.Context) (models.PageItem, bool) {
	if ctx.Err() != nil {
		f.Close()
		return models.PageItem{}, false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.pending) == 0 {
		return models.PageItem{}, false
	}

	item := f.pending[0]
	f.pending = f.pending[1:]
	return item, true
}

// MarkFetched 标记URL已抓取
func (f *Frontier) MarkFetched(canonicalURL string) {
	f.setState(canonicalURL, models.PageFetched)
}

// MarkProcessed 标记URL已处理完成 (终态)
func (f *Frontier) MarkProcessed(canonicalURL string) {
	f.setState(canonicalURL, models.PageProcessed)
}

func (f *Frontier) setState(canonicalURL string, state models.PageState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, seen := f.states[canonicalURL]; seen {
		f.states[canonicalURL] = state
	}
}

// Visited 检查URL是否已入队过
func (f *Frontier) Visited(canonicalURL string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, seen := f.states[canonicalURL]
	return seen
}

// MarkVisited 直接写入visited集合而不入队
// 用于从检查点恢复时跳过已完成的页面
func (f *Frontier) MarkVisited(canonicalURL string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, seen := f.states[canonicalURL]; !seen {
		f.states[canonicalURL] = models.PageProcessed
	}
}

// VisitedCount 返回已入队过的URL总数
func (f *Frontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.states)
}

// PendingCount 返回当前待抓取URL数量
func (f *Frontier) PendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// VisitedURLs 返回已入队过的URL列表 (排序后,用于检查点和报告)
func (f *Frontier) VisitedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	urls := make([]string, 0, len(f.states))
	for u := range f.states {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}

// PendingURLs 返回待抓取URL列表 (队列顺序,用于检查点)
func (f *Frontier) PendingURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	urls := make([]string, 0, len(f.pending))
	for _, item := range f.pending {
		urls = append(urls, item.URL)
	}
	return urls
}

// Close 关闭队列
// 关闭后Push被拒绝;收到外部中止信号时由协调器调用
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}
