package detect

import (
	"io"
	"sync"

	"github.com/veridrive/sigproof/internal/domain"
	"github.com/veridrive/sigproof/internal/ports"
)

// ChanSource adapts a channel into a detection source so embedding
// applications can push detections straight from their inference loop.
type ChanSource struct {
	ch   chan *domain.Detection
	once sync.Once
}

func NewChanSource(buffer int) *ChanSource {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChanSource{ch: make(chan *domain.Detection, buffer)}
}

// Push hands one detection to the pipeline. It returns false once the
// source is closed.
func (c *ChanSource) Push(d *domain.Detection) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	c.ch <- d
	return true
}

func (c *ChanSource) Next() (*domain.Detection, error) {
	d, open := <-c.ch
	if !open {
		return nil, io.EOF
	}
	return d, nil
}

// Close ends the stream; buffered detections are still delivered.
func (c *ChanSource) Close() error {
	c.once.Do(func() { close(c.ch) })
	return nil
}

var _ ports.DetectionSource = (*ChanSource)(nil)
