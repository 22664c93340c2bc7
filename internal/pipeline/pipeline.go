package pipeline

// Pipeline represents a sequence of processing stages.
type Pipeline struct {
	processors []Processor
}

func New(processors ...Processor) *Pipeline {
	return &Pipeline{processors: processors}
}

// Default is the weaving pipeline: load, the passes enabled in the
// configuration, then emit.
func Default() *Pipeline {
	return New(
		&LoadProcessor{},
		&SpecializeProcessor{},
		&InjectProcessor{},
		&ImplicitProcessor{},
		&EmitProcessor{},
	)
}

// Run executes the pipeline.
func (p *Pipeline) Run(initialCtx *PipelineContext) *PipelineContext {
	ctx := initialCtx
	for _, processor := range p.processors {
		ctx = processor.Process(ctx)
		// Every stage sees the context; stages after a failure return it
		// untouched so the first diagnostic is the one reported.
	}
	return ctx
}
