package conversation

import "strings"

// DefaultWindow bounds sanitized views to roughly ten user/assistant turn
// pairs so prompts stay a fixed size no matter how old the session is.
const DefaultWindow = 20

// Marker pairs stripped from assistant messages. Personas emit these blocks
// for self-reflection; they must never feed back into a later prompt.
var annotationMarkers = [][2]string{
	{"<inner_thought>", "</inner_thought>"},
	{"<inner_monologue>", "</inner_monologue>"},
}

// Sanitize projects a history into the bounded, annotation-free view fed to
// the classifier and to persona handlers. It is a pure function: the input
// slice and its messages are never mutated.
//
// Rules, applied in order:
//  1. routing-decision notes are removed (tag match, not content sniffing)
//  2. assistant messages have all matched annotation blocks removed;
//     unterminated markers are left untouched
//  3. assistant messages that are empty after stripping are dropped
//  4. everything else passes through unchanged
//  5. only the last `window` messages are kept (DefaultWindow if <= 0)
func Sanitize(history []Message, window int) []Message {
	if window <= 0 {
		window = DefaultWindow
	}

	out := make([]Message, 0, len(history))
	for _, msg := range history {
		if msg.IsRoutingNote() {
			continue
		}
		if msg.Role == RoleAssistant {
			content := strings.TrimSpace(StripAnnotations(msg.Content))
			if content == "" {
				continue
			}
			msg.Content = content
		}
		out = append(out, msg)
	}

	if len(out) > window {
		out = out[len(out)-window:]
	}
	return out
}

// StripAnnotations removes every matched annotation block from text.
// Matching is non-greedy: each opening marker pairs with the nearest
// closing marker after it. A marker without its counterpart is kept as-is
// rather than guessed at.
func StripAnnotations(text string) string {
	for _, pair := range annotationMarkers {
		text = stripMarked(text, pair[0], pair[1])
	}
	return text
}

func stripMarked(text, open, close string) string {
	for {
		start := strings.Index(text, open)
		if start < 0 {
			return text
		}
		rest := text[start+len(open):]
		end := strings.Index(rest, close)
		if end < 0 {
			return text
		}
		text = text[:start] + rest[end+len(close):]
	}
}
