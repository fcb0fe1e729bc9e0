package pass

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-post/module"
	"github.com/wippyai/wasm-post/wasm"
)

// Pipeline runs passes in order over one context.
type Pipeline []Pass

// Default returns the pipeline applied when nothing else is configured.
func Default() Pipeline {
	return Pipeline{ExportIndirectTable{}}
}

// Names returns the pass names in run order.
func (p Pipeline) Names() []string {
	names := make([]string, len(p))
	for i, ps := range p {
		names[i] = ps.Name()
	}
	return names
}

// Run applies every pass to ctx. It stops at the first failure and returns
// it wrapped with the failing pass's name; passes that already ran keep
// their effect.
func (p Pipeline) Run(ctx *module.Context) error {
	log := Logger()
	for _, ps := range p {
		before := ctx.Snapshot()
		if err := ps.Run(ctx); err != nil {
			log.Debug("pass failed", zap.String("pass", ps.Name()), zap.Error(err))
			return fmt.Errorf("pass %s: %w", ps.Name(), err)
		}
		if ce := log.Check(zap.DebugLevel, "pass applied"); ce != nil {
			changes := before.Diff(ctx.Snapshot())
			fields := []zap.Field{zap.String("pass", ps.Name()), zap.Int("changes", len(changes))}
			for _, c := range changes {
				fields = append(fields, zap.Stringer(c.Ref.String(), change(c)))
			}
			ce.Write(fields...)
		}
	}
	return nil
}

type change module.Change

func (c change) String() string {
	s := c.Before.String() + " -> " + c.After.String()
	if c.Structural {
		s += " (structural)"
	}
	return s
}

// Process decodes data, runs the pipeline and encodes the result. Each call
// works on its own context.
func (p Pipeline) Process(data []byte) ([]byte, error) {
	ctx, err := wasm.Decode(data)
	if err != nil {
		return nil, err
	}
	if err := p.Run(ctx); err != nil {
		return nil, err
	}
	return wasm.Encode(ctx)
}

// Process runs the default pipeline over an encoded module.
func Process(data []byte) ([]byte, error) {
	return Default().Process(data)
}
