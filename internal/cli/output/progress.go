package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// ProgressWriter counts bytes written through it and redraws a progress
// line on w. Total <= 0 means the size is unknown.
type ProgressWriter struct {
	w     io.Writer
	title string
	total int64
	width int

	mu      sync.Mutex
	current int64
}

// NewProgressWriter creates a progress writer drawing to w.
func NewProgressWriter(w io.Writer, title string, total int64) *ProgressWriter {
	return &ProgressWriter{w: w, title: title, total: total, width: 30}
}

// Write records len(p) bytes of progress.
func (p *ProgressWriter) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current += int64(len(b))
	p.render()
	return len(b), nil
}

// Written returns the byte count so far.
func (p *ProgressWriter) Written() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Finish ends the progress line.
func (p *ProgressWriter) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.render()
	fmt.Fprintln(p.w)
}

func (p *ProgressWriter) render() {
	if p.total <= 0 {
		fmt.Fprintf(p.w, "\r%s %s", p.title, FormatBytes(p.current))
		return
	}

	percent := float64(p.current) / float64(p.total)
	if percent > 1 {
		percent = 1
	}
	filled := int(float64(p.width) * percent)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", p.width-filled)

	fmt.Fprintf(p.w, "\r%s [%s] %3.0f%% (%s/%s)",
		p.title, bar, percent*100, FormatBytes(p.current), FormatBytes(p.total))
}

// FormatBytes formats bytes to human readable string.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
