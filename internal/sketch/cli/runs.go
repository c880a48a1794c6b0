package cli

import (
	"context"
	"fmt"
	"io"
	"sync"

	"sketchbook/internal/sketch/api"
)

// runPrinter writes run output as it arrives and remembers finished runs
// until someone waits for them.
type runPrinter struct {
	mu       sync.Mutex
	out      io.Writer
	finished map[string]api.RunFinished
	changed  chan struct{}
}

func newRunPrinter(out io.Writer) *runPrinter {
	return &runPrinter{
		out:      out,
		finished: make(map[string]api.RunFinished),
		changed:  make(chan struct{}),
	}
}

func (p *runPrinter) RunOutput(out api.RunOutput) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, out.Line)
}

func (p *runPrinter) RunFinished(fin api.RunFinished) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finished[fin.RunID] = fin
	close(p.changed)
	p.changed = make(chan struct{})
}

func (p *runPrinter) wait(ctx context.Context, runID string) (api.RunFinished, error) {
	for {
		p.mu.Lock()
		fin, ok := p.finished[runID]
		changed := p.changed
		p.mu.Unlock()
		if ok {
			return fin, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return api.RunFinished{}, ctx.Err()
		}
	}
}
