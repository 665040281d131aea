package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/cjeanneret/lifelog/internal/debug"
	"github.com/disintegration/imaging"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Browser snapshots a web page through a headless Chrome driven by Rod.
// The browser is started (or connected to) on the first capture and
// reused afterwards. A failure to connect or open a page drops the
// connection so the next tick reconnects; navigation and screenshot
// failures only close that tick's page.
type Browser struct {
	url        string
	controlURL string
	stealth    bool

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// NewBrowser creates a page snapshotter for url. controlURL is the DevTools
// websocket of an external Chrome; empty launches a local headless one.
func NewBrowser(url, controlURL string, useStealth bool) *Browser {
	return &Browser{
		url:        url,
		controlURL: controlURL,
		stealth:    useStealth,
	}
}

func (b *Browser) connect() (*rod.Browser, error) {
	if b.browser != nil {
		return b.browser, nil
	}

	wsURL := b.controlURL
	if wsURL == "" {
		l := launcher.New().Headless(true)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		b.lnch = l
		debug.Info("Browser: launched local chrome (%s)", wsURL)
	} else {
		debug.Info("Browser: connecting to remote chrome (%s)", wsURL)
	}

	br := rod.New().ControlURL(wsURL)
	if err := br.Connect(); err != nil {
		b.cleanupLocked()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	b.browser = br
	return br, nil
}

func (b *Browser) openPage(br *rod.Browser) (*rod.Page, error) {
	if b.stealth {
		return stealth.Page(br)
	}
	return br.Page(proto.TargetCreateTarget{})
}

func (b *Browser) TakePhoto(ctx context.Context, size Size) (image.Image, error) {
	if err := size.Validate(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	br, err := b.connect()
	if err != nil {
		return nil, err
	}

	page, err := b.openPage(br)
	if err != nil {
		b.cleanupLocked()
		return nil, fmt.Errorf("browser: open page: %w", err)
	}
	defer func() {
		_ = page.Close()
	}()
	page = page.Context(ctx)

	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             size.Width,
		Height:            size.Height,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("browser: set viewport: %w", err)
	}
	if err := page.Navigate(b.url); err != nil {
		return nil, fmt.Errorf("browser: navigate %s: %w", b.url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("browser: wait load: %w", err)
	}

	data, err := page.Screenshot(false, nil)
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return decodeFrame(data, size)
}

// decodeFrame turns encoded screenshot bytes into an image of the requested size.
func decodeFrame(data []byte, size Size) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	return Resize(img, size), nil
}

// Close shuts down the browser connection and any locally launched Chrome.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cleanupLocked()
}

func (b *Browser) cleanupLocked() error {
	var errs []error
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("browser: close: %w", err))
		}
		b.browser = nil
	}
	if b.lnch != nil {
		b.lnch.Kill()
		b.lnch = nil
	}
	return errors.Join(errs...)
}
