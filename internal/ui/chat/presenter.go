// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/lingshu-tui/internal/controller"
)

// =============================================================================
// PRESENTER
// =============================================================================

// ViewMsg carries a fresh session view into the Bubble Tea loop.
type ViewMsg struct {
	View controller.SessionView
}

// NoticeMsg carries a controller notice into the Bubble Tea loop.
type NoticeMsg struct {
	Notice controller.Notice
}

// Presenter adapts the controller's output to a Bubble Tea program.
//
// Render and Notify never block: they park the output and wake a pump
// goroutine that delivers it with Program.Send. Consecutive views collapse
// into the newest one; notices are delivered in order.
type Presenter struct {
	mu      sync.Mutex
	view    *controller.SessionView
	notices []controller.Notice
	wake    chan struct{}
}

var _ controller.Presenter = (*Presenter)(nil)

// NewPresenter creates a presenter with nothing attached. Output produced
// before Attach is held until the pump starts.
func NewPresenter() *Presenter {
	return &Presenter{wake: make(chan struct{}, 1)}
}

// Render parks the newest view.
func (p *Presenter) Render(view controller.SessionView) {
	p.mu.Lock()
	p.view = &view
	p.mu.Unlock()
	p.signal()
}

// Notify queues a notice.
func (p *Presenter) Notify(n controller.Notice) {
	p.mu.Lock()
	p.notices = append(p.notices, n)
	p.mu.Unlock()
	p.signal()
}

func (p *Presenter) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Attach starts delivering to prog until ctx is done.
func (p *Presenter) Attach(ctx context.Context, prog *tea.Program) {
	go p.Pump(ctx, prog.Send)
}

// Pump delivers parked output through send until ctx is done.
func (p *Presenter) Pump(ctx context.Context, send func(tea.Msg)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		}

		for _, msg := range p.drain() {
			send(msg)
		}
	}
}

func (p *Presenter) drain() []tea.Msg {
	p.mu.Lock()
	defer p.mu.Unlock()

	msgs := make([]tea.Msg, 0, len(p.notices)+1)
	if p.view != nil {
		msgs = append(msgs, ViewMsg{View: *p.view})
		p.view = nil
	}
	for _, n := range p.notices {
		msgs = append(msgs, NoticeMsg{Notice: n})
	}
	p.notices = nil
	return msgs
}
