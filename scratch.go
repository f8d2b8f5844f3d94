package geosbridge

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// scratch is a pool of one warm transfer buffer in engine memory. Requests
// that do not fit, or that arrive while the warm buffer is leased, get a
// temporary allocation instead.
type scratch struct {
	engine Engine
	log    *zap.Logger
	ptr    uint32
	size   uint32
	leased bool
}

func newScratch(ctx context.Context, engine Engine, size uint32, log *zap.Logger) (*scratch, error) {
	s := &scratch{engine: engine, log: log, size: size}
	if size == 0 {
		return s, nil
	}
	ptr, err := engine.Malloc(ctx, size)
	if err != nil {
		return nil, errors.Wrapf(err, "allocate %d byte scratch buffer", size)
	}
	s.ptr = ptr
	return s, nil
}

// lease is exclusive ownership of a transfer buffer until release.
type lease struct {
	ptr   uint32
	size  uint32
	owner *scratch
	temp  bool
}

func (s *scratch) acquire(ctx context.Context, size uint32) (*lease, error) {
	if !s.leased && s.ptr != 0 && size <= s.size {
		s.leased = true
		return &lease{ptr: s.ptr, size: size, owner: s}, nil
	}
	s.log.Debug("scratch buffer fallback",
		zap.Uint32("requested", size),
		zap.Uint32("capacity", s.size),
		zap.Bool("leased", s.leased))
	ptr, err := s.engine.Malloc(ctx, size)
	if err != nil {
		return nil, errors.Wrapf(err, "allocate %d byte transfer buffer", size)
	}
	return &lease{ptr: ptr, size: size, owner: s, temp: true}, nil
}

func (l *lease) release(ctx context.Context) error {
	if !l.temp {
		l.owner.leased = false
		return nil
	}
	if err := l.owner.engine.Free(ctx, l.ptr); err != nil {
		return errors.Wrapf(err, "free transfer buffer at %d", l.ptr)
	}
	return nil
}

// with runs fn with a buffer of at least size bytes and releases it on every
// exit path. A release failure is combined with fn's error.
func (s *scratch) with(ctx context.Context, size uint32, fn func(ptr uint32) error) (err error) {
	l, err := s.acquire(ctx, size)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := l.release(ctx); rerr != nil {
			if err != nil {
				s.log.Warn("release transfer buffer after failure", zap.Error(rerr))
			}
			err = errors.CombineErrors(err, rerr)
		}
	}()
	return fn(l.ptr)
}

func (s *scratch) close(ctx context.Context) error {
	if s.ptr == 0 {
		return nil
	}
	ptr := s.ptr
	s.ptr, s.size = 0, 0
	return errors.Wrap(s.engine.Free(ctx, ptr), "free scratch buffer")
}
