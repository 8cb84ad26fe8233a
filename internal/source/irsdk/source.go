package irsdk

import (
	"context"
	"errors"
	"fmt"

	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/source"
)

// memMapName is the name of the file mapping the simulator publishes.
const memMapName = `Local\IRSDKMemMapFileName`

// Mapping is a read-only view of the shared memory.
type Mapping interface {
	Bytes() []byte
	Close() error
}

// Opener attaches to the shared memory, returning source.ErrNotConnected
// when it does not exist.
type Opener func() (Mapping, error)

// Source is a source.Source over the simulator's shared memory.
type Source struct {
	open Opener

	mem     Mapping
	vars    map[string]VarHeader
	numVars int32
	buf     []byte
}

var _ source.Source = (*Source)(nil)

// New returns a Source over the platform's shared memory.
func New() *Source {
	return NewWithOpener(openSharedMemory)
}

func NewWithOpener(open Opener) *Source {
	return &Source{open: open}
}

func (s *Source) Name() string { return "irsdk" }

func (s *Source) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.mem != nil {
		return nil
	}
	mem, err := s.open()
	if err != nil {
		return err
	}
	h, err := parseHeader(mem.Bytes())
	if err == nil && !h.Connected() {
		err = source.ErrNotConnected
	}
	if err == nil {
		err = s.loadVars(mem.Bytes(), h)
	}
	if err != nil {
		_ = mem.Close()
		return err
	}
	s.mem = mem
	return nil
}

func (s *Source) loadVars(mem []byte, h Header) error {
	vars, err := parseVarHeaders(mem, h)
	if err != nil {
		return err
	}
	s.vars = vars
	s.numVars = h.NumVars
	return nil
}

// Poll copies the newest variable buffer and decodes the bound variables.
// A buffer that the simulator rewrote while it was being copied is retried
// once before the tick is reported as failed.
func (s *Source) Poll(ctx context.Context) (map[string]any, error) {
	if s.mem == nil {
		return nil, source.ErrNotConnected
	}
	mem := s.mem.Bytes()
	h, err := parseHeader(mem)
	if err != nil {
		return nil, err
	}
	if !h.Connected() {
		return nil, source.ErrNotConnected
	}
	if h.NumVars != s.numVars {
		// New session layout.
		if err := s.loadVars(mem, h); err != nil {
			return nil, err
		}
	}

	for attempt := 0; attempt < 2; attempt++ {
		vb := h.latest()
		start, end := int(vb.BufOffset), int(vb.BufOffset)+int(h.BufLen)
		if start < 0 || end > len(mem) || h.BufLen <= 0 {
			return nil, fmt.Errorf("%w: buffer at %d len %d", errShortMemory, start, h.BufLen)
		}
		s.buf = append(s.buf[:0], mem[start:end]...)

		after, err := parseHeader(mem)
		if err != nil {
			return nil, err
		}
		if after.latest().TickCount == vb.TickCount {
			return s.decode(), nil
		}
		h = after
	}
	return nil, errTorn
}

var errTorn = errors.New("irsdk: buffer changed while reading")

func (s *Source) decode() map[string]any {
	out := make(map[string]any, len(bindings))
	for _, b := range bindings {
		v, ok := s.vars[b.sdk]
		if !ok {
			continue
		}
		val, ok := v.decode(s.buf)
		if !ok {
			continue
		}
		if b.transform != nil {
			val = b.transform(val)
		}
		out[b.field] = val
	}
	return out
}

func (s *Source) Close() error {
	if s.mem == nil {
		return nil
	}
	err := s.mem.Close()
	s.mem = nil
	s.vars = nil
	s.numVars = 0
	return err
}
