package pipeline

import (
	"io"
	"log"

	"github.com/funvibe/funweave/internal/config"
	"github.com/funvibe/funweave/internal/implicit"
	"github.com/funvibe/funweave/internal/inject"
	"github.com/funvibe/funweave/internal/metadata"
	"github.com/funvibe/funweave/internal/specialize"
)

// Processor is one stage of the weaving pipeline.
type Processor interface {
	Process(ctx *PipelineContext) *PipelineContext
}

// PipelineContext carries a module through the pipeline together with
// everything the stages produce.
type PipelineContext struct {
	// FilePath is the module being woven. Source, when set, is used instead
	// of reading FilePath.
	FilePath string
	Source   []byte

	// OutputPath selects the emitted format by extension. Empty means the
	// format of FilePath.
	OutputPath string

	Config *config.WeaveConfig
	Logger *log.Logger

	Module      *metadata.Module
	Registry    *specialize.Sealed
	Injection   *inject.Report
	Typeclasses *implicit.Report

	Output []byte
	Errors []error
}

// NewPipelineContext creates a context for the module at path.
func NewPipelineContext(path string, cfg *config.WeaveConfig) *PipelineContext {
	if cfg == nil {
		cfg = config.Default()
	}
	return &PipelineContext{
		FilePath: path,
		Config:   cfg,
		Logger:   log.New(io.Discard, "", 0),
	}
}

// Failed reports whether any stage has recorded an error.
func (ctx *PipelineContext) Failed() bool { return len(ctx.Errors) > 0 }
