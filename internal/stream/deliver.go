// Package stream moves generated frames into transports without dropping
// or reordering bytes.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/satindergrewal/astrosonic/internal/audio"
)

var (
	// ErrSinkBusy is returned by a sink that cannot accept bytes right now.
	// Delivery pauses until the sink drains and then resumes.
	ErrSinkBusy = errors.New("sink busy")

	// ErrSinkFailure means the transport refused bytes permanently.
	ErrSinkFailure = errors.New("sink failure")
)

// busyRetry is the pause used when a busy sink has no drain signal.
const busyRetry = 5 * time.Millisecond

// Source yields PCM frames until exhausted.
type Source interface {
	Next() ([]int16, bool)
}

// Drainer is implemented by sinks that can signal when buffered bytes
// fall back under their limit.
type Drainer interface {
	WaitDrain(ctx context.Context) error
}

// Flusher is implemented by sinks that buffer writes.
type Flusher interface {
	Flush() error
}

// Result counts what one delivery pushed into its sink.
type Result struct {
	Frames int
	Bytes  int64
	Waits  int
}

// Deliver writes header and then every frame of src into sink, one frame
// at a time. The next frame is not produced until the previous frame's
// bytes were fully accepted. The returned Result is valid on error too and
// describes the bytes that reached the sink.
func Deliver(ctx context.Context, src Source, header []byte, sink io.Writer) (Result, error) {
	var res Result

	if len(header) > 0 {
		if err := writeAll(ctx, sink, header, &res); err != nil {
			return res, err
		}
		if err := flush(sink); err != nil {
			return res, err
		}
	}

	var buf []byte
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		frame, ok := src.Next()
		if !ok {
			return res, nil
		}
		if cap(buf) < len(frame)*2 {
			buf = make([]byte, len(frame)*2)
		}
		buf = buf[:len(frame)*2]
		audio.PutSamples(buf, frame)

		if err := writeAll(ctx, sink, buf, &res); err != nil {
			return res, err
		}
		if err := flush(sink); err != nil {
			return res, err
		}
		res.Frames++
	}
}

func writeAll(ctx context.Context, sink io.Writer, p []byte, res *Result) error {
	off := 0
	for off < len(p) {
		n, err := sink.Write(p[off:])
		if n > 0 {
			off += n
			res.Bytes += int64(n)
		}
		switch {
		case err == nil && n > 0:
			continue
		case err == nil, errors.Is(err, ErrSinkBusy):
			res.Waits++
			if werr := waitDrain(ctx, sink); werr != nil {
				return werr
			}
		case errors.Is(err, ErrSinkFailure):
			return err
		default:
			return fmt.Errorf("%w: write: %w", ErrSinkFailure, err)
		}
	}
	return nil
}

func waitDrain(ctx context.Context, sink io.Writer) error {
	if d, ok := sink.(Drainer); ok {
		if err := d.WaitDrain(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, ErrSinkFailure) {
				return err
			}
			return fmt.Errorf("%w: drain: %w", ErrSinkFailure, err)
		}
		return nil
	}

	t := time.NewTimer(busyRetry)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func flush(sink io.Writer) error {
	f, ok := sink.(Flusher)
	if !ok {
		return nil
	}
	if err := f.Flush(); err != nil {
		return fmt.Errorf("%w: flush: %w", ErrSinkFailure, err)
	}
	return nil
}
