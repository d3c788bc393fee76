package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/puppeteerthegoat5-eng/puppeter-godlike/types"
)

var resourceTypes = map[string]network.ResourceType{
	"document":   network.ResourceTypeDocument,
	"stylesheet": network.ResourceTypeStylesheet,
	"image":      network.ResourceTypeImage,
	"media":      network.ResourceTypeMedia,
	"font":       network.ResourceTypeFont,
	"script":     network.ResourceTypeScript,
	"xhr":        network.ResourceTypeXHR,
	"fetch":      network.ResourceTypeFetch,
	"websocket":  network.ResourceTypeWebSocket,
	"manifest":   network.ResourceTypeManifest,
	"other":      network.ResourceTypeOther,
}

// blockedPatterns 为每个屏蔽的资源类型生成请求拦截规则，未知类型被忽略
func blockedPatterns(names []string) []*fetch.RequestPattern {
	seen := make(map[network.ResourceType]bool, len(names))
	patterns := make([]*fetch.RequestPattern, 0, len(names))
	for _, name := range names {
		rt, ok := resourceTypes[strings.ToLower(strings.TrimSpace(name))]
		if !ok || seen[rt] {
			continue
		}
		seen[rt] = true
		patterns = append(patterns, &fetch.RequestPattern{
			URLPattern:   "*",
			ResourceType: rt,
			RequestStage: fetch.RequestStageRequest,
		})
	}
	return patterns
}

// =============================================================================
// 🌐 ChromeLauncher
// =============================================================================

// ChromeLauncher 基于 chromedp，每次 Launch 启动一个独立的浏览器进程
type ChromeLauncher struct {
	cfg    Config
	logger *zap.Logger
}

// NewChromeLauncher 创建 chromedp 启动器
func NewChromeLauncher(cfg Config, logger *zap.Logger) *ChromeLauncher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromeLauncher{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "chromedp_launcher")),
	}
}

func (l *ChromeLauncher) allocatorOptions(opts LaunchOptions) []chromedp.ExecAllocatorOption {
	o := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-accelerated-2d-canvas", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-zygote", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.WindowSize(l.cfg.ViewportWidth, l.cfg.ViewportHeight),
	)
	if l.cfg.UserAgent != "" {
		o = append(o, chromedp.UserAgent(l.cfg.UserAgent))
	}
	if opts.Proxy != "" {
		o = append(o, chromedp.ProxyServer(opts.Proxy))
	}
	if l.cfg.ExecPath != "" {
		o = append(o, chromedp.ExecPath(l.cfg.ExecPath))
	}
	return o
}

func (l *ChromeLauncher) headers() network.Headers {
	h := network.Headers{}
	if l.cfg.AcceptLanguage != "" {
		h["Accept-Language"] = l.cfg.AcceptLanguage
	}
	if l.cfg.Accept != "" {
		h["Accept"] = l.cfg.Accept
	}
	return h
}

// Launch 启动浏览器并完成视口、请求头和资源拦截设置
func (l *ChromeLauncher) Launch(ctx context.Context, opts LaunchOptions) (Page, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, l.allocatorOptions(opts)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			l.logger.Debug(fmt.Sprintf(format, args...))
		}),
	)

	tab := &chromePage{
		ctx:         tabCtx,
		cancel:      tabCancel,
		allocCancel: allocCancel,
		logger:      l.logger,
	}

	actions := []chromedp.Action{
		chromedp.EmulateViewport(int64(l.cfg.ViewportWidth), int64(l.cfg.ViewportHeight)),
		network.Enable(),
	}
	if h := l.headers(); len(h) > 0 {
		actions = append(actions, network.SetExtraHTTPHeaders(h))
	}
	if patterns := blockedPatterns(l.cfg.BlockedResourceTypes); len(patterns) > 0 {
		chromedp.ListenTarget(tabCtx, tab.onTargetEvent)
		actions = append(actions, fetch.Enable().WithPatterns(patterns))
	}

	if err := chromedp.Run(tabCtx, actions...); err != nil {
		_ = tab.Close()
		return nil, types.NewError(types.ErrBrowserLaunch, "failed to start browser").WithCause(err)
	}

	l.logger.Debug("browser launched",
		zap.Bool("headless", opts.Headless),
		zap.Bool("proxied", opts.Proxy != ""))
	return tab, nil
}

// =============================================================================
// 📄 chromePage
// =============================================================================

type chromePage struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      *zap.Logger

	closeOnce sync.Once
}

// onTargetEvent 拒绝所有被拦截的请求，拦截规则只覆盖屏蔽的资源类型
func (p *chromePage) onTargetEvent(ev any) {
	paused, ok := ev.(*fetch.EventRequestPaused)
	if !ok {
		return
	}
	go func() {
		c := chromedp.FromContext(p.ctx)
		if c == nil || c.Target == nil {
			return
		}
		execCtx := cdp.WithExecutor(p.ctx, c.Target)
		if err := fetch.FailRequest(paused.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx); err != nil {
			p.logger.Debug("fail request", zap.String("url", paused.Request.URL), zap.Error(err))
		}
	}()
}

// run 在页面上下文中执行动作，同时遵守调用方 ctx 的截止时间与取消
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Navigate 在 DOMContentLoaded 后返回，不等待图片、脚本等子资源的 load 事件
func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, navigateDOMContent(url))
}

// navigateDOMContent 发送 Page.navigate 并等待 Page.domContentEventFired。
// 监听器在发出导航前注册，事件不会丢失。
func navigateDOMContent(url string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		listenCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		loaded := make(chan struct{})
		var once sync.Once
		chromedp.ListenTarget(listenCtx, func(ev any) {
			if _, ok := ev.(*page.EventDomContentEventFired); ok {
				once.Do(func() { close(loaded) })
			}
		})

		return awaitDOMContent(ctx, func(ctx context.Context) (string, string, error) {
			_, loaderID, errText, err := page.Navigate(url).Do(ctx)
			return string(loaderID), errText, err
		}, loaded)
	})
}

// navigateFunc 发出导航，返回 loaderID 与浏览器报告的错误文本
type navigateFunc func(ctx context.Context) (loaderID, errText string, err error)

// awaitDOMContent 执行导航并等待 loaded 关闭。
// 同文档导航（loaderID 为空）不会产生新的文档事件，直接返回。
func awaitDOMContent(ctx context.Context, navigate navigateFunc, loaded <-chan struct{}) error {
	loaderID, errText, err := navigate(ctx)
	if err != nil {
		return err
	}
	if errText != "" {
		return fmt.Errorf("page load error %s", errText)
	}
	if loaderID == "" {
		return nil
	}
	select {
	case <-loaded:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *chromePage) ScrollBy(ctx context.Context, dy int) error {
	return p.run(ctx, chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", dy), nil))
}

func (p *chromePage) MoveAndClick(ctx context.Context, x, y int) error {
	fx, fy := float64(x), float64(y)
	return p.run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return input.DispatchMouseEvent(input.MouseMoved, fx, fy).Do(ctx)
		}),
		chromedp.Sleep(50*time.Millisecond),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return input.DispatchMouseEvent(input.MousePressed, fx, fy).
				WithButton(input.Left).WithClickCount(1).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return input.DispatchMouseEvent(input.MouseReleased, fx, fy).
				WithButton(input.Left).WithClickCount(1).Do(ctx)
		}),
	)
}

func (p *chromePage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return buf, nil
}

// Close 关闭标签页和浏览器进程，可重复调用
func (p *chromePage) Close() error {
	p.closeOnce.Do(func() {
		p.cancel()
		p.allocCancel()
	})
	return nil
}
