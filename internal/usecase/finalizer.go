package usecase

import (
	"strings"

	"github.com/filmarcelino/carnivore-kitchen-genie/internal/domain"
	"github.com/filmarcelino/carnivore-kitchen-genie/internal/ports"
)

type transcriptFinalizer struct {
	rules  ports.RulesEngine
	events ports.EventSink
}

func newTranscriptFinalizer(rules ports.RulesEngine, events ports.EventSink) transcriptFinalizer {
	return transcriptFinalizer{rules: rules, events: events}
}

// Finalize applies ingredient substitutions. A rules failure is reported but
// never fails the session; the raw transcript is handed off instead.
func (f transcriptFinalizer) Finalize(raw string) (string, domain.SessionStateReason) {
	raw = strings.TrimSpace(raw)
	if f.rules == nil {
		return raw, domain.SessionReasonTranscriptReady
	}

	transformed, err := f.rules.Apply(raw)
	if err != nil {
		f.events.SessionError(domain.ErrorCodeRules, err.Error())
		return raw, domain.SessionReasonTranscriptRulesError
	}

	transformed = strings.TrimSpace(transformed)
	if transformed == "" {
		return raw, domain.SessionReasonTranscriptReady
	}
	return transformed, domain.SessionReasonTranscriptReady
}
