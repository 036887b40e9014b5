package ioctx

import (
	"context"
	"io"
)

// Streams is where an evaluation writes its output.
type Streams struct {
	Stdout io.Writer
	Stderr io.Writer
}

type streamsKey struct{}

func streams(ctx context.Context) Streams {
	s, _ := ctx.Value(streamsKey{}).(Streams)
	if s.Stdout == nil {
		s.Stdout = io.Discard
	}
	if s.Stderr == nil {
		s.Stderr = io.Discard
	}
	return s
}

// WithStreams sets both output streams; nil writers discard.
func WithStreams(ctx context.Context, s Streams) context.Context {
	return context.WithValue(ctx, streamsKey{}, s)
}

func StderrFromContext(ctx context.Context) io.Writer {
	return streams(ctx).Stderr
}

func StderrToContext(ctx context.Context, w io.Writer) context.Context {
	s, _ := ctx.Value(streamsKey{}).(Streams)
	s.Stderr = w
	return WithStreams(ctx, s)
}

func StdoutFromContext(ctx context.Context) io.Writer {
	return streams(ctx).Stdout
}

func StdoutToContext(ctx context.Context, w io.Writer) context.Context {
	s, _ := ctx.Value(streamsKey{}).(Streams)
	s.Stdout = w
	return WithStreams(ctx, s)
}
