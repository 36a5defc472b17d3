package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod/lib/proto"
	"github.com/v0xg/pagepilot/internal/action"
	"github.com/v0xg/pagepilot/internal/executor"
	"github.com/v0xg/pagepilot/internal/tab"
)

// Ping asks the runtime in id whether it is ready
func (b *Browser) Ping(ctx context.Context, id tab.ID) error {
	page, err := b.page(id)
	if err != nil {
		return err
	}
	res, err := page.Context(ctx).Eval(pingJS)
	if err != nil {
		return noResponse("ping", err)
	}

	var reply executor.PingReply
	if err := decode(res.Value, &reply); err != nil {
		return noResponse("ping", err)
	}
	if !reply.Ready() {
		return noResponse("ping", fmt.Errorf("runtime status %q", reply.Status))
	}
	return nil
}

// Inject installs the runtime into id. Injecting twice is harmless.
func (b *Browser) Inject(ctx context.Context, id tab.ID) error {
	page, err := b.page(id)
	if err != nil {
		return err
	}
	if _, err := page.Context(ctx).Eval(runtimeJS); err != nil {
		return fmt.Errorf("failed to inject runtime: %w", err)
	}
	return nil
}

// Execute runs a against the runtime in id
func (b *Browser) Execute(ctx context.Context, id tab.ID, a action.Action) (action.Result, error) {
	page, err := b.page(id)
	if err != nil {
		return action.Result{}, noResponse("execute", err)
	}
	return executor.New(&pageDOM{page: page, timeout: b.opts.ActionTimeout}, b.opts.Executor).Execute(ctx, a)
}

// Screenshot captures the visible viewport of id as PNG
func (b *Browser) Screenshot(ctx context.Context, id tab.ID) ([]byte, error) {
	page, err := b.page(id)
	if err != nil {
		return nil, err
	}
	data, err := page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return data, nil
}

// HTML serializes the document element of id
func (b *Browser) HTML(ctx context.Context, id tab.ID) (string, error) {
	page, err := b.page(id)
	if err != nil {
		return "", err
	}
	res, err := page.Context(ctx).Eval(htmlJS)
	if err != nil {
		return "", fmt.Errorf("failed to read DOM: %w", err)
	}
	return res.Value.Str(), nil
}
