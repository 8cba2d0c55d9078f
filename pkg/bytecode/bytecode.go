package bytecode

import "github.com/aspen-lang/aspen/pkg/value"

// Chunk is a Builder's finalized output plus the metadata the emitter
// needs to assemble a FunctionDescriptorData (spec §3.4): the flat
// instruction stream and its constant pool. Unlike Builder, a Chunk is
// immutable and safe to share.
type Chunk struct {
	Code   []byte
	Consts []value.Value
}

// Finish finalizes b and wraps the result as a Chunk. b must not be
// used again afterward.
func Finish(b *Builder) Chunk {
	code, consts := b.Finalize()
	return Chunk{Code: code, Consts: consts}
}
