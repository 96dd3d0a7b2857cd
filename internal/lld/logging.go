package lld

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// phaseLogger emits a debug-level entry/exit pair around one pipeline
// phase, tagged with a per-invocation trace id so concurrent rule
// processing (outside this package's scope, but possible in the caller)
// stays distinguishable in aggregated logs.
type phaseLogger struct {
	logger  zerolog.Logger
	traceID string
}

// newPhaseLogger derives a child logger stamped with a fresh trace id for
// one UpdateHosts invocation.
func newPhaseLogger(lldRuleID uint64) *phaseLogger {
	traceID := uuid.NewString()
	return &phaseLogger{
		logger:  log.With().Str("trace_id", traceID).Uint64("lld_ruleid", lldRuleID).Logger(),
		traceID: traceID,
	}
}

func (p *phaseLogger) enter(phase string) {
	p.logger.Debug().Str("phase", phase).Msg("phase start")
}

func (p *phaseLogger) exit(phase string, err error) {
	ev := p.logger.Debug()
	if err != nil {
		ev = p.logger.Error().Err(err)
	}
	ev.Str("phase", phase).Msg("phase end")
}
