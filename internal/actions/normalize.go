// Package actions converts the assistant's raw side-effect proposals into
// addressed, labeled, immutable commands and executes them against the
// domain store, individually or as an ordered batch.
package actions

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"stride/internal/types"
)

// Command is a normalized, executable representation of one proposal.
// Commands are immutable once constructed.
type Command struct {
	// Key is stable across re-renders of the same proposal list.
	Key        string
	Label      string
	Method     string
	Endpoint   string
	Intent     string
	Collection string
	Body       map[string]any
}

// IsShare reports whether the command is a share or unshare operation, which
// carry special cache semantics (sharing changes what other users see, so a
// local patch can never fully cover it).
func (c Command) IsShare() bool {
	return c.Intent == "share" || c.Intent == "unshare"
}

// Normalize converts the raw proposals of one turn into commands. The turn
// index keeps keys stable per turn; the proposal index and resolved entity id
// keep them stable within it.
func Normalize(turnIndex int, proposals []types.ActionProposal) []Command {
	cmds := make([]Command, 0, len(proposals))
	for i, p := range proposals {
		cmds = append(cmds, normalizeOne(turnIndex, i, p))
	}
	return cmds
}

func normalizeOne(turnIndex, proposalIndex int, p types.ActionProposal) Command {
	endpoint := p.Endpoint
	id, hasID := stringField(p.Payload, "id")

	if strings.Contains(endpoint, "[id]") {
		if hasID {
			endpoint = strings.ReplaceAll(endpoint, "[id]", url.PathEscape(id))
		} else {
			// No id resolved: fall back to the generic collection endpoint.
			endpoint = strings.TrimSuffix(strings.ReplaceAll(endpoint, "[id]", ""), "/")
		}
	}

	// Unshare deletions address the share record through query parameters.
	target, hasTarget := stringField(p.Payload, "target")
	shareType, hasShareType := stringField(p.Payload, "share_type")
	if strings.EqualFold(p.Method, "DELETE") && hasTarget && hasShareType {
		q := url.Values{}
		q.Set("target", target)
		q.Set("type", shareType)
		endpoint += "?" + q.Encode()
	}

	key := fmt.Sprintf("%d-%d-%s", turnIndex, proposalIndex, id)
	if !hasID {
		key = fmt.Sprintf("%d-%d-%s", turnIndex, proposalIndex, uuid.NewString()[:8])
	}

	return Command{
		Key:        key,
		Label:      deriveLabel(p),
		Method:     strings.ToUpper(p.Method),
		Endpoint:   endpoint,
		Intent:     strings.ToLower(p.Intent),
		Collection: collectionOf(p.Endpoint),
		Body:       p.Payload,
	}
}

// deriveLabel builds the human-readable command label. Explicit intents win;
// within update, payload fields are checked in a fixed precedence so the
// label never depends on incidental branch order: title, then progress, then
// task_status, then description.
func deriveLabel(p types.ActionProposal) string {
	noun := "item"
	if t, ok := stringField(p.Payload, "type"); ok {
		noun = t
	}

	switch strings.ToLower(p.Intent) {
	case "create":
		return "Create " + noun
	case "delete":
		return "Delete " + noun
	case "share":
		return "Share " + noun
	case "unshare":
		return "Unshare " + noun
	case "update":
		if _, ok := stringField(p.Payload, "title"); ok {
			return "Rename " + noun
		}
		if _, ok := numberField(p.Payload, "progress"); ok {
			return "Update progress of " + noun
		}
		if _, ok := stringField(p.Payload, "task_status"); ok {
			return "Update status of " + noun
		}
		if _, ok := stringField(p.Payload, "description"); ok {
			return "Update description of " + noun
		}
		return "Update " + noun
	default:
		return fmt.Sprintf("%s %s", strings.ToUpper(p.Method), noun)
	}
}

// collectionOf extracts the collection name from an endpoint template, e.g.
// "/api/goals/[id]" -> "goals".
func collectionOf(endpoint string) string {
	endpoint = strings.SplitN(endpoint, "?", 2)[0]
	segments := strings.Split(strings.Trim(endpoint, "/"), "/")
	for _, seg := range segments {
		if seg == "" || seg == "api" {
			continue
		}
		return seg
	}
	return ""
}

func stringField(payload map[string]any, key string) (string, bool) {
	v, ok := payload[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func numberField(payload map[string]any, key string) (float64, bool) {
	v, ok := payload[key]
	if !ok {
		return 0, false
	}
	n, ok := v.(float64)
	return n, ok
}
