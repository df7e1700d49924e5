package overlay

import (
	"context"

	"github.com/hazyhaar/movewatch/movewatch/internal/engine"
)

// Toggle labels.
const (
	LabelStop  = "Stop Engine"
	LabelStart = "Start Engine"
)

// Alert texts.
const (
	MsgCheckFailed  = "Failed to check engine state"
	MsgToggleFailed = "Failed to toggle engine"
)

// refresh reads the engine status and relabels the toggle. Failures are
// logged only: the label keeps its previous text.
func (p *Panel) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.updateToggle(ctx); err != nil {
		p.logger.Warn("overlay: refresh engine status", "error", err)
	}
}

func (p *Panel) updateToggle(ctx context.Context) error {
	status, err := p.engine.Status(ctx)
	if err != nil {
		return err
	}
	running := status == engine.Running
	p.mu.Lock()
	p.running = running
	p.mu.Unlock()

	label := LabelStart
	if running {
		label = LabelStop
	}
	return p.surface.SetText(ctx, IDToggle, label)
}

// toggle stops a running engine or starts a stopped one, then relabels.
func (p *Panel) toggle() {
	p.async(func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()

		var err error
		if p.Running() {
			err = p.engine.Stop(ctx)
		} else {
			err = p.engine.Start(ctx)
		}
		if err == nil {
			err = p.updateToggle(ctx)
		}
		if err != nil {
			p.logger.Warn("overlay: toggle engine", "error", err)
			p.alert(ctx, MsgToggleFailed)
		}
	})
}

// checkState reports the engine status to the user.
func (p *Panel) checkState() {
	p.async(func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()

		status, err := p.engine.Status(ctx)
		if err != nil {
			p.logger.Warn("overlay: check engine state", "error", err)
			p.alert(ctx, MsgCheckFailed)
			return
		}
		p.alert(ctx, "Engine is currently "+status)
	})
}

func (p *Panel) alert(ctx context.Context, msg string) {
	if err := p.surface.Alert(ctx, msg); err != nil {
		p.logger.Warn("overlay: alert", "message", msg, "error", err)
	}
}
