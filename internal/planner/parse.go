package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"webnerd/internal/logging"
	"webnerd/internal/webtypes"
)

// rawBatch mirrors the response schema before coercion.
type rawBatch struct {
	Commands []struct {
		Type            string   `json:"type"`
		CandidateID     *int     `json:"candidate_id"`
		Text            string   `json:"text"`
		URL             string   `json:"url"`
		Key             string   `json:"key"`
		PressEnter      bool     `json:"press_enter"`
		SignatureChange bool     `json:"signature_change"`
		TimeoutMs       int      `json:"timeout_ms"`
	} `json:"commands"`
	Confidence     float64 `json:"confidence"`
	Rationale      string  `json:"rationale"`
	Breadcrumb     string  `json:"breadcrumb"`
	OverrideReason string  `json:"override_reason"`
}

// ParseCommandBatch parses an LLM reply into a CommandBatch. The parse
// is tolerant: a strict unmarshal is attempted first, then the first
// balanced JSON object is extracted from surrounding prose. Every
// failure mode degrades to a noop batch, never an error.
//
// Returned issues record anything dropped or coerced so the caller can
// log it into Evidence.
func ParseCommandBatch(reply string) (webtypes.CommandBatch, []string) {
	var issues []string

	var raw rawBatch
	if err := json.Unmarshal([]byte(reply), &raw); err != nil {
		extracted := ExtractJSON(reply)
		if err2 := json.Unmarshal([]byte(extracted), &raw); err2 != nil {
			logging.PlannerDebug("reply not parseable as JSON: %v", err2)
			return webtypes.NoopBatch(fmt.Sprintf("planner reply was not valid JSON: %v", err2)),
				[]string{fmt.Sprintf("llm-parse-error: %v", err2)}
		}
		issues = append(issues, "llm-parse-recovered: extracted JSON object from prose")
	}

	batch := webtypes.CommandBatch{
		Confidence:     clamp01(raw.Confidence),
		Rationale:      raw.Rationale,
		Breadcrumb:     raw.Breadcrumb,
		OverrideReason: strings.TrimSpace(raw.OverrideReason),
	}

	for _, rc := range raw.Commands {
		ct := webtypes.CommandType(strings.ToLower(strings.TrimSpace(rc.Type)))
		if !webtypes.KnownCommandType(ct) {
			issues = append(issues, fmt.Sprintf("dropped unknown command type %q", rc.Type))
			continue
		}
		cmd := webtypes.Command{
			Type:            ct,
			Text:            rc.Text,
			URL:             rc.URL,
			Key:             rc.Key,
			PressEnter:      rc.PressEnter,
			SignatureChange: rc.SignatureChange,
			TimeoutMs:       rc.TimeoutMs,
		}
		if rc.CandidateID != nil {
			cmd.CandidateID = *rc.CandidateID
		}
		batch.Commands = append(batch.Commands, cmd)
	}

	if len(batch.Commands) > webtypes.MaxCommandsPerBatch {
		issues = append(issues, fmt.Sprintf("capped %d commands to %d", len(batch.Commands), webtypes.MaxCommandsPerBatch))
		batch.Commands = batch.Commands[:webtypes.MaxCommandsPerBatch]
	}

	if len(batch.Commands) == 0 {
		issues = append(issues, "no usable commands in reply, substituting noop")
		noop := webtypes.NoopBatch("planner reply contained no usable commands")
		noop.Rationale = firstNonEmpty(batch.Rationale, noop.Rationale)
		noop.Breadcrumb = firstNonEmpty(batch.Breadcrumb, noop.Breadcrumb)
		return noop, issues
	}

	if batch.Breadcrumb == "" {
		batch.Breadcrumb = "Step executed."
	}
	return batch, issues
}

// ExtractJSON extracts the first balanced JSON object or array from a
// potentially mixed-format response (prose, markdown fences, etc).
func ExtractJSON(text string) string {
	// Prefer fenced code blocks when present.
	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			if inner := ExtractJSON(rest[:end]); inner != "{}" {
				return inner
			}
		}
	}

	start := strings.Index(text, "{")
	if start == -1 {
		start = strings.Index(text, "[")
	}
	if start == -1 {
		return "{}"
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		ch := text[i]

		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch ch {
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return "{}"
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
