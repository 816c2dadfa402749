package assistant

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"stride/internal/snapshot"
)

// Payload is the rendered context block for one resubmission, plus the
// fingerprint used to detect the service looping on the same request.
type Payload struct {
	Text                string
	Fingerprint         string
	HasData             bool
	HasToolRequest      bool
	HasKnowledgeRequest bool
}

// Date-like fields truncated to a calendar date before serialization. The
// timeBlocks section is exempt: scheduling data is meaningless without the
// time component.
var dateFields = map[string]bool{
	"due_date":   true,
	"created_at": true,
	"updated_at": true,
}

// BuildPayload resolves the aggregate against the snapshot and renders the
// outbound context block. Two calls with the same aggregate and unchanged
// snapshot data produce identical fingerprints.
func BuildPayload(agg *Aggregate, snap *snapshot.Snapshot) (*Payload, error) {
	p := &Payload{
		HasToolRequest:      len(agg.ToolIDs()) > 0,
		HasKnowledgeRequest: len(agg.KnowledgeIDs()) > 0,
	}

	type resolvedSection struct {
		ID   string `json:"id"`
		Data any    `json:"data"`
	}
	resolved := make([]resolvedSection, 0, len(agg.SectionIDs()))

	var b strings.Builder
	sectionIDs := agg.SectionIDs()
	if len(sectionIDs) == 0 {
		b.WriteString("No data sections were requested.\n")
	} else {
		b.WriteString("Additional context for your reply:\n")
	}

	for _, id := range sectionIDs {
		data := pruneEmpty(snap.Section(id))
		if id != snapshot.SectionTimeBlocks {
			data = normalizeDates(data)
		}
		if hasLeafValue(data) {
			p.HasData = true
		}
		resolved = append(resolved, resolvedSection{ID: id, Data: data})

		b.WriteString("\n## Section: ")
		b.WriteString(id)
		b.WriteString("\n")
		if reasons := agg.Reasons(id); reasons != "" {
			b.WriteString("Reason: ")
			b.WriteString(reasons)
			b.WriteString("\n")
		}
		serialized, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("serialize section %s: %w", id, err)
		}
		b.Write(serialized)
		b.WriteString("\n")
	}

	if p.HasToolRequest {
		fmt.Fprintf(&b, "\nRequested tools: %s\n", strings.Join(agg.ToolIDs(), ", "))
	}
	if p.HasKnowledgeRequest {
		fmt.Fprintf(&b, "\nRequested knowledge: %s\n", strings.Join(agg.KnowledgeIDs(), ", "))
	}
	p.Text = b.String()

	fp, err := fingerprint(agg.ToolIDs(), agg.KnowledgeIDs(), resolved)
	if err != nil {
		return nil, err
	}
	p.Fingerprint = fp
	return p, nil
}

// fingerprint computes a stable digest of the requested ids and the resolved
// per-section data. encoding/json serializes map keys in sorted order, so
// identical resolved data always yields identical bytes.
func fingerprint(toolIDs, knowledgeIDs []string, sections any) (string, error) {
	input := struct {
		Tools     []string `json:"tools"`
		Knowledge []string `json:"knowledge"`
		Sections  any      `json:"sections"`
	}{
		Tools:     sortedCopy(toolIDs),
		Knowledge: sortedCopy(knowledgeIDs),
		Sections:  sections,
	}
	data, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("fingerprint serialization: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

// pruneEmpty recursively removes null leaf values from maps and slices.
func pruneEmpty(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if inner == nil {
				continue
			}
			out[k] = pruneEmpty(inner)
		}
		return out
	case []any:
		out := make([]any, 0, len(val))
		for _, inner := range val {
			if inner == nil {
				continue
			}
			out = append(out, pruneEmpty(inner))
		}
		return out
	default:
		return v
	}
}

// normalizeDates truncates known date-like string fields to a calendar date.
func normalizeDates(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, inner := range val {
			if dateFields[k] {
				if s, ok := inner.(string); ok {
					val[k] = truncateDate(s)
					continue
				}
			}
			val[k] = normalizeDates(inner)
		}
		return val
	case []any:
		for i, inner := range val {
			val[i] = normalizeDates(inner)
		}
		return val
	default:
		return v
	}
}

func truncateDate(s string) string {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}

// hasLeafValue reports whether v contains at least one meaningful leaf: a
// non-empty string, a number, a bool, or any non-empty nesting of those. A
// requested section resolving to nothing does not satisfy the request.
func hasLeafValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(val) != ""
	case map[string]any:
		for _, inner := range val {
			if hasLeafValue(inner) {
				return true
			}
		}
		return false
	case []any:
		for _, inner := range val {
			if hasLeafValue(inner) {
				return true
			}
		}
		return false
	default:
		// Numbers and bools count as data.
		return true
	}
}
