package provider

import (
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultHistoryWindow = 8

// buildSystemPrompt renders the static contract: what the agent is, which
// actions exist, and the JSON shape the model must reply with.
func buildSystemPrompt(req schemas.DecisionRequest) string {
	var b strings.Builder

	b.WriteString("You are an autonomous web-browsing agent. You control a real browser one action at a time. ")
	b.WriteString("Each turn you receive the goal, a text summary of the current page, a table of interactable elements, and the actions taken so far. ")
	b.WriteString("Choose exactly one next action that makes progress toward the goal.\n\n")

	b.WriteString("Available actions:\n")
	if len(req.Actions) > 0 {
		for _, usage := range req.Actions {
			b.WriteString("- ")
			b.WriteString(string(usage.Kind))
			if usage.Usage != "" {
				b.WriteString(": ")
				b.WriteString(usage.Usage)
			}
			if usage.RequiresElement {
				b.WriteString(" (requires element_id)")
			}
			b.WriteString("\n")
		}
	} else {
		for _, kind := range req.Kinds {
			b.WriteString("- ")
			b.WriteString(string(kind))
			b.WriteString("\n")
		}
	}

	b.WriteString("\nReply with a single JSON object and nothing else:\n")
	b.WriteString(`{"action": "<kind>", "reasoning": "<one or two sentences>", "element_id": "<id from the table, when required>", "params": {}, "payload": {}}`)
	b.WriteString("\n\nRules:\n")
	b.WriteString("- element_id must be an id from the current element table; never invent one.\n")
	b.WriteString("- Put action inputs in params (text, url, value, key, direction, seconds, x, y).\n")
	b.WriteString("- Use extract to record data you can already read on the page; put the data in payload.\n")
	b.WriteString("- Use complete once the goal is achieved, terminate if it cannot be achieved.\n")

	return b.String()
}

// buildUserPrompt renders the per-step observation: goal, page, element
// table, and a bounded window of recent history.
func buildUserPrompt(req schemas.DecisionRequest, historyWindow int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "GOAL: %s\n", req.Goal)
	fmt.Fprintf(&b, "STEP: %d of %d\n\n", req.Step, req.MaxSteps)

	b.WriteString("CURRENT PAGE\n")
	if req.State != nil {
		fmt.Fprintf(&b, "URL: %s\n", req.State.URL)
		fmt.Fprintf(&b, "Title: %s\n", req.State.Title)

		b.WriteString("\nPAGE SUMMARY\n")
		if summary := strings.TrimSpace(req.State.Summary); summary != "" {
			b.WriteString(summary)
			b.WriteString("\n")
		} else {
			b.WriteString("(no visible text)\n")
		}

		b.WriteString("\nELEMENTS\n")
		if len(req.State.Elements) == 0 {
			b.WriteString("(none visible)\n")
		}
		for _, el := range req.State.Elements {
			b.WriteString(formatElement(el))
			b.WriteString("\n")
		}
	} else {
		b.WriteString("(no page state)\n")
	}

	b.WriteString("\nRECENT ACTIONS\n")
	lines := formatHistory(req.History, historyWindow)
	if len(lines) == 0 {
		b.WriteString("(none yet)\n")
	}
	for _, line := range lines {
		b.WriteString(line)
		b.WriteString("\n")
	}

	return b.String()
}

// formatElement renders one table row the way models read best: id, tag
// with discriminating attributes, and the visible label.
func formatElement(el schemas.ElementDescriptor) string {
	tag := el.Tag
	if el.Type != "" {
		tag += " type=" + el.Type
	}
	if el.Name != "" {
		tag += " name=" + el.Name
	}
	if el.Role != "" {
		tag += " role=" + el.Role
	}

	line := fmt.Sprintf("%s: <%s>", el.ID, tag)

	label := el.Text
	if label == "" {
		label = el.AriaLabel
	}
	if label == "" && el.Placeholder != "" {
		label = "placeholder: " + el.Placeholder
	}
	if label != "" {
		line += fmt.Sprintf(" %q", truncate(label, 80))
	}
	return line
}

// formatHistory renders the last window entries, oldest first. A window of
// zero or less falls back to the default.
func formatHistory(history []schemas.ActionRecord, window int) []string {
	if window <= 0 {
		window = defaultHistoryWindow
	}
	if len(history) > window {
		history = history[len(history)-window:]
	}

	lines := make([]string, 0, len(history))
	for _, entry := range history {
		line := fmt.Sprintf("step %d: %s", entry.Step, entry.Kind)
		if entry.ElementID != "" {
			line += " " + entry.ElementID
		}
		if entry.Success {
			line += " -> ok"
		} else {
			line += fmt.Sprintf(" -> failed (%s: %s)", entry.ErrorCode, truncate(entry.Error, 120))
		}
		lines = append(lines, line)
	}
	return lines
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

var jsonBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// parseDecision extracts the decision object from a model reply. Markdown
// fences and surrounding prose are tolerated; a reply with no parseable
// object or no action name is an error the caller may retry.
func parseDecision(text string) (*schemas.RawDecision, error) {
	raw := strings.TrimSpace(text)
	if m := jsonBlockRe.FindStringSubmatch(raw); m != nil {
		raw = strings.TrimSpace(m[1])
	}

	dec, err := decodeDecision(raw)
	if err != nil {
		start := strings.Index(raw, "{")
		end := strings.LastIndex(raw, "}")
		if start >= 0 && end > start {
			dec, err = decodeDecision(raw[start : end+1])
		}
	}
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(dec.Kind) == "" {
		return nil, fmt.Errorf("decision does not name an action")
	}
	return dec, nil
}

func decodeDecision(raw string) (*schemas.RawDecision, error) {
	var dec schemas.RawDecision
	if err := json.Unmarshal([]byte(raw), &dec); err != nil {
		return nil, fmt.Errorf("decoding decision: %w", err)
	}
	return &dec, nil
}
