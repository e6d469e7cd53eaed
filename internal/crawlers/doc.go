// Package crawlers 提供站点爬取、资源下载和CMS集合检测功能
//
// # 概述
//
// crawlers包实现导出流水线的发现与获取阶段:从种子URL开始的同源广度
// 优先爬取、资源的并行下载、样式表改写,以及基于绑定属性的CMS集合检测。
//
// # 核心组件
//
// ## Frontier (爬取边界)
//
// 并发安全的待爬队列与已访问集合,同一互斥锁下完成"查重+入队",
// 保证每个规范化URL整个任务期间只入队一次。
//
//	frontier := NewFrontier(maxDepth)
//	frontier.Push(seedURL, 0, "seed")
//	item, ok := frontier.Pop(ctx)
//
// ## Canonicalizer (URL规范化器)
//
// 基于whatwg-url解析器的URL规范化:解析相对引用、剥离fragment、
// 过滤伪协议(javascript:、mailto:等),页面URL附加同源检查。
//
//	canon, err := NewCanonicalizer(seedURL)
//	pageURL, ok := canon.CanonicalizePage(href, baseURL)
//	assetURL, ok := canon.CanonicalizeAsset(src, baseURL)
//
// ## PageFetcher (页面抓取器)
//
// 基于Colly的同步页面抓取器,带礼貌延迟、线性退避重试和
// gzip/deflate/brotli解压。非2xx响应不重试。
//
//	fetcher := NewPageFetcher(delay, timeout, headerProvider)
//	result, err := fetcher.Fetch(ctx, pageURL)
//
// ## PageProcessor (页面处理器)
//
// 用goquery解析已抓取页面,提取同源链接、资源引用(样式、脚本、
// 图片、srcset、媒体、内联style)和CMS集合标记。HTML解析失败
// 按空页面处理,不中断爬取。
//
// ## DownloadManager (下载管理器)
//
// 固定大小worker池消费共享下载队列,按规范化URL幂等去重。
// 样式表落盘时提取内嵌引用(字体、背景图)在同一次排空内继续下载。
// 单个资源重试耗尽后标记失败,不中断其余下载。
//
//	dm := NewDownloadManager(cfg, canon)
//	dm.Enqueue(ref)
//	report := dm.Drain(ctx)
//
// ## CollectionAggregator (集合聚合器)
//
// 合并跨页面观察到的集合项。同一(集合, slug)多次出现时按合并
// 策略处理:most_complete取字段并集(冲突保留字段更全的一侧),
// last_write_wins直接覆盖。
//
// ## StylesheetRewriter (样式表改写器)
//
// 正则匹配CSS中的url()和@import引用,把已下载资源的引用改写为
// 相对本地路径。未下载资源的引用原文保留并上报。
//
// ## RobotsGuard / DownloadGovernor
//
// RobotsGuard按主机缓存robots.txt并在抓取前检查(获取失败时放行);
// DownloadGovernor采样系统可用内存,低内存时收缩实际工作的worker数。
//
// # 并发安全
//
// 所有跨goroutine共享的组件都是并发安全的:
//   - Frontier: sync.Mutex (队列+已访问集合)
//   - DownloadManager: sync.Mutex (去重集合+队列+结果)
//   - RobotsGuard: sync.Mutex (按主机缓存)
//   - DownloadGovernor: sync.RWMutex (采样值)
//
// 爬取阶段本身是单线程顺序的,只有资源下载使用worker池。
//
// # 错误处理
//
//   - 种子不可达: 重试耗尽后返回致命错误,任务中止
//   - 普通页面抓取失败: 标记跳过并继续,不影响其余页面
//   - 资源下载失败: 记入失败报告,导出仍视为成功
//   - 无效引用: 丢弃并记debug日志,绝不中断页面处理
package crawlers
