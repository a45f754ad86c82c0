// Package rodctl is the production browser.Controller, driving a headless
// Chrome through go-rod. One launcher+browser pair per correlation id; the
// coordinator guarantees only one is ever live.
package rodctl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/streamwatch/streamwatch/internal/browser"
	"github.com/streamwatch/streamwatch/internal/pkg/logs"
)

// DownloadSink receives download lifecycle events observed through the
// devtools protocol. *browser.Tracker satisfies it.
type DownloadSink interface {
	Add(d browser.Download)
	MarkCompleted(correlationID string, success bool)
}

type Options struct {
	ChromeBin   string
	UserDataDir string
	DownloadDir string
	Headless    bool
	Downloads   DownloadSink
}

type session struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
}

type Controller struct {
	opts Options

	mu       sync.Mutex
	sessions map[string]*session
}

var _ browser.Controller = (*Controller)(nil)

func New(opts Options) *Controller {
	return &Controller{
		opts:     opts,
		sessions: make(map[string]*session),
	}
}

func (c *Controller) Start(ctx context.Context, url, correlationID string, prefs browser.Preferences) (*browser.Session, error) {
	l := launcher.New().
		Headless(c.opts.Headless).
		UserDataDir(c.opts.UserDataDir)
	if c.opts.ChromeBin != "" {
		l = l.Bin(c.opts.ChromeBin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect chrome: %w", err)
	}

	page, err := stealth.Page(b)
	if err != nil {
		_ = b.Close()
		l.Kill()
		return nil, fmt.Errorf("open stealth page: %w", err)
	}
	if err := page.Navigate(url); err != nil {
		_ = b.Close()
		l.Kill()
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}

	c.watchDownloads(ctx, b, correlationID, url)

	c.mu.Lock()
	c.sessions[correlationID] = &session{launcher: l, browser: b}
	c.mu.Unlock()

	logs.CtxInfo(ctx, "[rodctl] session %s open on %s (resolution=%s)", correlationID, url, prefs.Resolution)
	return &browser.Session{CorrelationID: correlationID, StartedAt: time.Now()}, nil
}

// watchDownloads routes download begin/progress events from the devtools
// protocol into the sink, attributed to this session's correlation id. The
// watcher dies with the browser connection.
func (c *Controller) watchDownloads(ctx context.Context, b *rod.Browser, correlationID, streamURL string) {
	if c.opts.Downloads == nil {
		return
	}

	err := proto.BrowserSetDownloadBehavior{
		Behavior:      proto.BrowserSetDownloadBehaviorBehaviorAllowAndName,
		DownloadPath:  c.opts.DownloadDir,
		EventsEnabled: true,
	}.Call(b)
	if err != nil {
		logs.CtxWarn(ctx, "[rodctl] enable download events for %s: %v", correlationID, err)
		return
	}

	wait := b.EachEvent(func(e *proto.BrowserDownloadWillBegin) {
		logs.CtxInfo(ctx, "[rodctl] session %s download begins: %s", correlationID, e.SuggestedFilename)
		c.opts.Downloads.Add(browser.Download{
			CorrelationID: correlationID,
			StreamURL:     streamURL,
			Filename:      e.SuggestedFilename,
			OutputPath:    c.opts.DownloadDir,
		})
	}, func(e *proto.BrowserDownloadProgress) {
		switch e.State {
		case proto.BrowserDownloadProgressStateCompleted:
			c.opts.Downloads.MarkCompleted(correlationID, true)
		case proto.BrowserDownloadProgressStateCanceled:
			c.opts.Downloads.MarkCompleted(correlationID, false)
		}
	})
	go wait()
}

func (c *Controller) Status(correlationID string) browser.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sessions[correlationID]; ok {
		return browser.StateRunning
	}
	return browser.StateAbsent
}

func (c *Controller) Close(correlationID string) error {
	c.mu.Lock()
	sess, ok := c.sessions[correlationID]
	if ok {
		delete(c.sessions, correlationID)
	}
	c.mu.Unlock()

	if !ok {
		return nil
	}

	err := sess.browser.Close()
	sess.launcher.Kill()
	if err != nil {
		return fmt.Errorf("close chrome %s: %w", correlationID, err)
	}
	return nil
}
