package render

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// defaultCaptureTimeout bounds one headless Chromium run. Cold starts on a
// Pi Zero take several seconds.
const defaultCaptureTimeout = 30 * time.Second

// capturePNG renders url in headless Chromium at the given viewport and
// returns the PNG screenshot. The page signals readiness by exposing
// data-ready="true" on an element.
func capturePNG(parentCtx context.Context, url string, width, height int, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = defaultCaptureTimeout
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, timeout)
	defer timeoutCancel()

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(url),
		chromedp.WaitVisible(`[data-ready="true"]`, chromedp.ByQuery),
		// Small extra delay so the final paint lands before the shot.
		chromedp.Sleep(200 * time.Millisecond),
		chromedp.FullScreenshot(&png, 100),
	}

	if err := chromedp.Run(ctx, tasks); err != nil {
		return nil, fmt.Errorf("render: chromedp run failed: %w", err)
	}
	return png, nil
}
