package session

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/puppeteerthegoat5-eng/puppeter-godlike/internal/ctxkeys"
	"github.com/puppeteerthegoat5-eng/puppeter-godlike/testutil"
	"github.com/puppeteerthegoat5-eng/puppeter-godlike/types"
)

// =============================================================================
// 🧪 测试替身
// =============================================================================

type fakePage struct {
	mu sync.Mutex

	navErr    error
	scrollErr error
	clickErr  error
	shotErr   error
	clickHook func()

	navigated   []string
	navDeadline bool
	navBotID    int
	scrolls     []int
	clicks      [][2]int
	closed      int
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = append(p.navigated, url)
	_, p.navDeadline = ctx.Deadline()
	p.navBotID, _ = ctxkeys.BotID(ctx)
	return p.navErr
}

func (p *fakePage) ScrollBy(_ context.Context, dy int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrolls = append(p.scrolls, dy)
	return p.scrollErr
}

func (p *fakePage) MoveAndClick(_ context.Context, x, y int) error {
	if p.clickHook != nil {
		p.clickHook()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicks = append(p.clicks, [2]int{x, y})
	return p.clickErr
}

func (p *fakePage) Screenshot(context.Context) ([]byte, error) {
	if p.shotErr != nil {
		return nil, p.shotErr
	}
	return []byte("\x89PNG"), nil
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

type fakeLauncher struct {
	page     *fakePage
	err      error
	launched []LaunchOptions
}

func (l *fakeLauncher) Launch(_ context.Context, opts LaunchOptions) (Page, error) {
	l.launched = append(l.launched, opts)
	if l.err != nil {
		return nil, l.err
	}
	return l.page, nil
}

type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *lineRecorder) log(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, msg)
}

func (r *lineRecorder) joined() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.lines, "\n")
}

func noSleep(sleeps *[]time.Duration) SleepFunc {
	var mu sync.Mutex
	return func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		*sleeps = append(*sleeps, d)
		mu.Unlock()
		return ctx.Err()
	}
}

func newTestRunner(t *testing.T, launcher Launcher, cfg Config, sleeps *[]time.Duration) *Runner {
	t.Helper()
	return NewRunner(launcher, cfg,
		WithLogger(zaptest.NewLogger(t)),
		WithSleep(noSleep(sleeps)),
		WithRand(rand.New(rand.NewPCG(1, 2))),
	)
}

// =============================================================================
// 🧪 Runner 测试
// =============================================================================

func TestRunner_SuccessfulVisit(t *testing.T) {
	page := &fakePage{}
	launcher := &fakeLauncher{page: page}
	var sleeps []time.Duration
	cfg := DefaultConfig()
	r := newTestRunner(t, launcher, cfg, &sleeps)

	rec := &lineRecorder{}
	res := r.Run(context.Background(), Job{BotID: 2, URL: "https://a.test/", Headless: true}, rec.log)

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeSuccess, res.Outcome())
	assert.Equal(t, 0, res.StepErrors)
	assert.Equal(t, []LaunchOptions{{Headless: true}}, launcher.launched)
	assert.Equal(t, []string{"https://a.test/"}, page.navigated)
	assert.True(t, page.navDeadline, "navigation must be bounded")
	assert.Equal(t, 2, page.navBotID)
	assert.Equal(t, 1, page.closed)

	require.Len(t, page.scrolls, 1)
	assert.GreaterOrEqual(t, page.scrolls[0], cfg.ScrollMin)
	assert.Less(t, page.scrolls[0], cfg.ScrollMax)

	require.Len(t, page.clicks, 1)
	assert.GreaterOrEqual(t, page.clicks[0][0], 0)
	assert.Less(t, page.clicks[0][0], cfg.ViewportWidth)
	assert.GreaterOrEqual(t, page.clicks[0][1], 0)
	assert.Less(t, page.clicks[0][1], cfg.ViewportHeight)

	require.Len(t, sleeps, 4)
	assert.Equal(t, cfg.SettleDelay, sleeps[0])
	assert.Equal(t, cfg.PostScrollDelay, sleeps[1])
	assert.Equal(t, cfg.PostClickDelay, sleeps[2])
	assert.GreaterOrEqual(t, sleeps[3], cfg.DwellMin)
	assert.Less(t, sleeps[3], cfg.DwellMax)

	lines := rec.lines
	require.NotEmpty(t, lines)
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "[Bot-2] "), line)
	}
	assert.Equal(t, "[Bot-2] Starting... Target: https://a.test/, Proxy: None, Headless: true", lines[0])
	assert.Equal(t, "[Bot-2] Navigating to https://a.test/...", lines[1])
	assert.Equal(t, "[Bot-2] Page loaded.", lines[2])
	assert.Contains(t, lines[3], "Scrolled ")
	assert.Contains(t, lines[4], "Clicking random coordinate (")
	assert.Contains(t, lines[5], "Waiting ")
	assert.Equal(t, "[Bot-2] Session finished. Closing.", lines[len(lines)-1])
}

func TestRunner_PassesProxy(t *testing.T) {
	launcher := &fakeLauncher{page: &fakePage{}}
	var sleeps []time.Duration
	r := newTestRunner(t, launcher, DefaultConfig(), &sleeps)

	rec := &lineRecorder{}
	r.Run(context.Background(), Job{BotID: 1, URL: "https://a.test/", Proxy: "http://p:8080"}, rec.log)

	assert.Equal(t, []LaunchOptions{{Proxy: "http://p:8080"}}, launcher.launched)
	assert.Contains(t, rec.joined(), "Proxy: http://p:8080, Headless: false")
}

func TestRunner_NavigationFailureSkipsInteraction(t *testing.T) {
	dir := t.TempDir()
	page := &fakePage{navErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	cfg := DefaultConfig()
	cfg.ScreenshotDir = dir
	var sleeps []time.Duration
	r := newTestRunner(t, &fakeLauncher{page: page}, cfg, &sleeps)
	r.now = func() time.Time { return time.UnixMilli(1700000000123) }

	rec := &lineRecorder{}
	res := r.Run(context.Background(), Job{BotID: 3, URL: "https://down.test/", Headless: true}, rec.log)

	require.Error(t, res.Err)
	assert.True(t, types.IsErrorCode(res.Err, types.ErrNavigationFailed))
	assert.True(t, types.IsRetryable(res.Err))
	assert.Equal(t, OutcomeNavigation, res.Outcome())
	assert.Empty(t, page.scrolls)
	assert.Empty(t, page.clicks)
	assert.Empty(t, sleeps)
	assert.Equal(t, 1, page.closed)
	assert.Contains(t, rec.joined(), "[Bot-3] Navigation FAILED: net::ERR_NAME_NOT_RESOLVED")

	want := filepath.Join(dir, "error_bot_3_1700000000123.png")
	assert.Equal(t, want, res.Screenshot)
	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), data)
}

func TestRunner_NavigationFailureHeadfulSkipsScreenshot(t *testing.T) {
	dir := t.TempDir()
	page := &fakePage{navErr: context.DeadlineExceeded}
	cfg := DefaultConfig()
	cfg.ScreenshotDir = dir
	var sleeps []time.Duration
	r := newTestRunner(t, &fakeLauncher{page: page}, cfg, &sleeps)

	res := r.Run(context.Background(), Job{BotID: 1, URL: "https://slow.test/"}, nil)

	assert.Equal(t, OutcomeNavigation, res.Outcome())
	assert.Empty(t, res.Screenshot)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunner_ScreenshotFailureIsLogged(t *testing.T) {
	page := &fakePage{navErr: errors.New("timeout"), shotErr: errors.New("target closed")}
	var sleeps []time.Duration
	cfg := DefaultConfig()
	cfg.ScreenshotDir = t.TempDir()
	r := newTestRunner(t, &fakeLauncher{page: page}, cfg, &sleeps)

	rec := &lineRecorder{}
	res := r.Run(context.Background(), Job{BotID: 1, URL: "https://x.test/", Headless: true}, rec.log)

	assert.Equal(t, OutcomeNavigation, res.Outcome())
	assert.Empty(t, res.Screenshot)
	assert.Contains(t, rec.joined(), "Failed to take error screenshot: target closed")
}

func TestRunner_LaunchFailureIsFatal(t *testing.T) {
	launcher := &fakeLauncher{err: errors.New("chrome not found")}
	var sleeps []time.Duration
	r := newTestRunner(t, launcher, DefaultConfig(), &sleeps)

	rec := &lineRecorder{}
	res := r.Run(context.Background(), Job{BotID: 1, URL: "https://a.test/"}, rec.log)

	assert.True(t, types.IsErrorCode(res.Err, types.ErrSessionFatal))
	assert.Equal(t, OutcomeFatal, res.Outcome())
	assert.Contains(t, rec.joined(), "[Bot-1] CRITICAL ERROR: chrome not found")
}

func TestRunner_InteractionFailuresContinue(t *testing.T) {
	page := &fakePage{
		scrollErr: errors.New("execution context destroyed"),
		clickErr:  errors.New("no node"),
	}
	var sleeps []time.Duration
	r := newTestRunner(t, &fakeLauncher{page: page}, DefaultConfig(), &sleeps)

	rec := &lineRecorder{}
	res := r.Run(context.Background(), Job{BotID: 1, URL: "https://a.test/"}, rec.log)

	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.StepErrors)
	assert.Equal(t, OutcomePartial, res.Outcome())
	assert.Len(t, page.clicks, 1, "click still attempted after a failed scroll")
	// settle, post-scroll, dwell: a failed click skips its follow-up delay
	require.Len(t, sleeps, 3)
	assert.Equal(t, DefaultConfig().SettleDelay, sleeps[0])
	assert.Equal(t, DefaultConfig().PostScrollDelay, sleeps[1])
	assert.GreaterOrEqual(t, sleeps[2], DefaultConfig().DwellMin)

	out := rec.joined()
	assert.Contains(t, out, "Scroll failed: execution context destroyed")
	assert.Contains(t, out, "Click failed: no node")
	assert.Contains(t, out, "Session finished. Closing.")
}

func TestRunner_RecoversPanic(t *testing.T) {
	page := &fakePage{clickHook: func() { panic("boom") }}
	var sleeps []time.Duration
	r := newTestRunner(t, &fakeLauncher{page: page}, DefaultConfig(), &sleeps)

	rec := &lineRecorder{}
	var res Result
	require.NotPanics(t, func() {
		res = r.Run(context.Background(), Job{BotID: 4, URL: "https://a.test/"}, rec.log)
	})

	assert.True(t, types.IsErrorCode(res.Err, types.ErrSessionFatal))
	assert.Equal(t, 1, page.closed)
	assert.Contains(t, rec.joined(), "[Bot-4] CRITICAL ERROR: boom")
}

func TestRunner_CancelledContextEndsSession(t *testing.T) {
	page := &fakePage{}
	var sleeps []time.Duration
	r := newTestRunner(t, &fakeLauncher{page: page}, DefaultConfig(), &sleeps)

	res := r.Run(testutil.CancelledContext(), Job{BotID: 1, URL: "https://a.test/"}, nil)

	assert.True(t, types.IsErrorCode(res.Err, types.ErrSessionFatal))
	assert.Empty(t, page.scrolls)
	assert.Equal(t, 1, page.closed)
}

func TestRunner_DurationMeasured(t *testing.T) {
	var sleeps []time.Duration
	r := newTestRunner(t, &fakeLauncher{page: &fakePage{}}, DefaultConfig(), &sleeps)

	base := time.Unix(0, 0)
	calls := 0
	r.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Second)
	}

	res := r.Run(context.Background(), Job{BotID: 1, URL: "https://a.test/"}, nil)
	assert.Equal(t, time.Second, res.Duration)
}

func TestRunner_DegenerateRanges(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ScrollMin, cfg.ScrollMax = 500, 500
	cfg.DwellMin, cfg.DwellMax = time.Second, time.Second
	cfg.NavigationTimeout = 0

	page := &fakePage{}
	var sleeps []time.Duration
	r := newTestRunner(t, &fakeLauncher{page: page}, cfg, &sleeps)
	assert.Equal(t, DefaultConfig().NavigationTimeout, r.Config().NavigationTimeout)

	r.Run(context.Background(), Job{BotID: 1, URL: "https://a.test/"}, nil)

	assert.Equal(t, []int{500}, page.scrolls)
	assert.Equal(t, time.Second, sleeps[len(sleeps)-1])
}

func TestJob_ProxyLabel(t *testing.T) {
	assert.Equal(t, "None", Job{}.ProxyLabel())
	assert.Equal(t, "socks5://h:1", Job{Proxy: "socks5://h:1"}.ProxyLabel())
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))
	assert.NoError(t, sleepContext(context.Background(), 0))

	assert.ErrorIs(t, sleepContext(testutil.CancelledContext(), time.Hour), context.Canceled)
}
