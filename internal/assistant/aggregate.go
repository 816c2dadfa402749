package assistant

import (
	"strings"

	"go.uber.org/zap"

	"stride/internal/snapshot"
	"stride/internal/types"
)

// sectionAgg is the running accumulation for one requested section.
type sectionAgg struct {
	id          string
	reasons     map[string]bool
	reasonOrder []string
}

// Aggregate is the cross-turn accumulation of context requests for one
// top-level user message. Merging is associative and idempotent: replaying
// the same request grows nothing, and request order does not matter.
type Aggregate struct {
	order     []string
	sections  map[string]*sectionAgg
	knowledge orderedSet
	tools     orderedSet
}

// NewAggregate creates an empty aggregate.
func NewAggregate() *Aggregate {
	return &Aggregate{sections: make(map[string]*sectionAgg)}
}

// Merge folds one context request into the aggregate. Sections with ids
// outside the closed known set are dropped here, before any data lookup,
// so the service cannot request arbitrary snapshot keys.
func (a *Aggregate) Merge(req types.ContextRequest, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	if req.Empty() {
		log.Debug("ignoring empty context request")
		return
	}

	for _, sec := range req.Sections {
		if !snapshot.Known(sec.SectionID) {
			log.Debug("dropping unknown context section", zap.String("sectionId", sec.SectionID))
			continue
		}
		agg, ok := a.sections[sec.SectionID]
		if !ok {
			agg = &sectionAgg{id: sec.SectionID, reasons: make(map[string]bool)}
			a.sections[sec.SectionID] = agg
			a.order = append(a.order, sec.SectionID)
		}
		reason := strings.TrimSpace(sec.Reason)
		if reason != "" && !agg.reasons[reason] {
			agg.reasons[reason] = true
			agg.reasonOrder = append(agg.reasonOrder, reason)
		}
	}

	a.knowledge.addAll(req.DomainKnowledgeIDs)
	a.tools.addAll(req.ToolIDs)
}

// SectionIDs returns the requested section ids in insertion order.
func (a *Aggregate) SectionIDs() []string {
	return a.order
}

// Reasons returns the joined reason string for a section, or "" if none were
// given.
func (a *Aggregate) Reasons(sectionID string) string {
	agg, ok := a.sections[sectionID]
	if !ok {
		return ""
	}
	return strings.Join(agg.reasonOrder, " | ")
}

// KnowledgeIDs returns the accumulated domain-knowledge ids in insertion order.
func (a *Aggregate) KnowledgeIDs() []string {
	return a.knowledge.values
}

// ToolIDs returns the accumulated tool ids in insertion order.
func (a *Aggregate) ToolIDs() []string {
	return a.tools.values
}

// Empty reports whether nothing has been requested yet.
func (a *Aggregate) Empty() bool {
	return len(a.order) == 0 && len(a.knowledge.values) == 0 && len(a.tools.values) == 0
}

// orderedSet is a string set preserving first-insertion order.
type orderedSet struct {
	seen   map[string]bool
	values []string
}

func (s *orderedSet) addAll(ids []string) {
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if s.seen == nil {
			s.seen = make(map[string]bool)
		}
		if s.seen[id] {
			continue
		}
		s.seen[id] = true
		s.values = append(s.values, id)
	}
}
