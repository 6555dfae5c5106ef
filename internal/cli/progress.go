package cli

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	progressTick     = 100 * time.Millisecond
	progressBarWidth = 20
)

var spinnerFrames = []rune("⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏")

// ProgressSpinner keeps one status line updated while runs are in flight: a spinner, the current
// target, finished runs and a bar of elapsed time against the longest planned run.
type ProgressSpinner struct {
	mu       sync.Mutex
	frame    int
	started  time.Time
	expected time.Duration
	target   string
	done     int
	total    int
	active   bool

	stop    chan struct{}
	stopped chan struct{}
}

func NewProgressSpinner() *ProgressSpinner {
	return &ProgressSpinner{stop: make(chan struct{}), stopped: make(chan struct{})}
}

func (p *ProgressSpinner) Start(runs int, expected time.Duration) {
	p.mu.Lock()
	p.started = time.Now()
	p.expected = expected
	p.total = runs
	p.target = "starting"
	p.active = true
	p.mu.Unlock()

	go p.loop()
}

func (p *ProgressSpinner) loop() {
	defer close(p.stopped)
	ticker := time.NewTicker(progressTick)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			p.write("\r\033[K")
			return
		case <-ticker.C:
			p.write("\r\033[K" + p.line())
		}
	}
}

func (p *ProgressSpinner) line() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	frame := spinnerFrames[p.frame%len(spinnerFrames)]
	p.frame++
	elapsed := time.Since(p.started)

	return fmt.Sprintf("%s%c %s  %s  %d/%d runs  %s / %s",
		Indent, frame, p.target, progressBar(elapsed, p.expected),
		p.done, p.total, FormatDuration(elapsed.Truncate(time.Second)), FormatDuration(p.expected))
}

func (p *ProgressSpinner) write(s string) {
	outMu.Lock()
	defer outMu.Unlock()
	_, _ = fmt.Fprint(out, s)
}

// progressBar fills proportionally to elapsed/expected and stays full once a run overshoots.
func progressBar(elapsed, expected time.Duration) string {
	filled := progressBarWidth
	if expected > 0 && elapsed < expected {
		filled = int(int64(progressBarWidth) * int64(elapsed) / int64(expected))
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", progressBarWidth-filled) + "]"
}

// Update shows the request a run is currently sending.
func (p *ProgressSpinner) Update(method, url string) {
	p.mu.Lock()
	p.target = method + " " + Truncate(url, 40)
	p.mu.Unlock()
}

func (p *ProgressSpinner) Done() {
	p.mu.Lock()
	p.done++
	p.mu.Unlock()
}

// Stop clears the status line. It is safe to call more than once.
func (p *ProgressSpinner) Stop() {
	p.mu.Lock()
	wasActive := p.active
	p.active = false
	p.mu.Unlock()
	if !wasActive {
		return
	}

	close(p.stop)
	<-p.stopped
}
