package runner

import (
	"bufio"
	"context"
	"io"
)

// DefaultInputBufferSize is the number of lines read ahead of the runner.
const DefaultInputBufferSize = 64

type line struct {
	text string
	err  error
}

// linePump reads lines on its own goroutine so that a read can be abandoned
// when the context is done.
type linePump struct {
	lines chan line
}

func newLinePump(r io.Reader) *linePump {
	p := &linePump{lines: make(chan line, DefaultInputBufferSize)}
	go func() {
		defer close(p.lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 4096), 1<<20)
		for scanner.Scan() {
			p.lines <- line{text: scanner.Text()}
		}
		err := scanner.Err()
		if err == nil {
			err = io.EOF
		}
		p.lines <- line{err: err}
	}()
	return p
}

func (p *linePump) next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case l, ok := <-p.lines:
		if !ok {
			return "", io.EOF
		}
		return l.text, l.err
	}
}
