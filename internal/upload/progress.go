package upload

import (
	"errors"
	"io"
	"sync"
)

// progressReader reports the share of total bytes read so far. It holds the
// percentage below 100 until the source hits EOF, then reports 100 once.
type progressReader struct {
	r     io.Reader
	total int64

	mu       sync.Mutex
	read     int64
	last     int
	finished bool

	onProgress func(percent int)
	onComplete func()
}

func newProgressReader(r io.Reader, total int64, onProgress func(int), onComplete func()) *progressReader {
	return &progressReader{r: r, total: total, onProgress: onProgress, onComplete: onComplete}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.mu.Lock()
	p.read += int64(n)
	percent := p.percentLocked()
	report := percent > p.last
	if report {
		p.last = percent
	}
	complete := errors.Is(err, io.EOF) && !p.finished
	if complete {
		p.finished = true
	}
	p.mu.Unlock()

	if report && p.onProgress != nil {
		p.onProgress(percent)
	}
	if complete && p.onComplete != nil {
		p.onComplete()
	}
	return n, err
}

func (p *progressReader) percentLocked() int {
	if p.total <= 0 {
		return 0
	}
	percent := int(p.read * 100 / p.total)
	if percent > 99 {
		percent = 99
	}
	return percent
}
