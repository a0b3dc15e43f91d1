package router

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tfclaw/tfclaw/internal/wire"
)

// renderCaptureMenu renders capture sources as the numbered list a
// following plain-number reply selects from.
func renderCaptureMenu(sources []wire.CaptureSource) string {
	if len(sources) == 0 {
		return "No capture sources available."
	}
	var b strings.Builder
	b.WriteString("Reply with a number to capture:\n")
	for i, src := range sources {
		label := src.Label
		if label == "" {
			label = src.SourceID
		}
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, label, src.Source)
	}
	return strings.TrimRight(b.String(), "\n")
}

// intent is what one inbound chat message resolves to: either a typed
// client.command payload the router builds itself (capture selection),
// or free text forwarded as tfclaw.command for the agent's own text
// interpreter to handle.
type intent struct {
	typed *wire.ClientCommandPayload
	text  string
}

// interpret resolves one inbound message against chat state, per
// spec.md §4.4's mode rules. It may mutate st (clearing an answered
// capture menu).
func interpret(st *ChatState, text string) intent {
	trimmed := strings.TrimSpace(text)

	if st.Mode == ModeControl {
		if !st.CaptureMenu.expired() {
			if n, err := strconv.Atoi(trimmed); err == nil {
				idx := n - 1
				if idx >= 0 && idx < len(st.CaptureMenu.Sources) {
					src := st.CaptureMenu.Sources[idx]
					st.CaptureMenu = nil
					return intent{typed: &wire.ClientCommandPayload{
						Command:  wire.CommandScreenCapture,
						Source:   src.Source,
						SourceID: src.SourceID,
					}}
				}
			}
		}
		if strings.EqualFold(trimmed, "capture") {
			return intent{typed: &wire.ClientCommandPayload{Command: wire.CommandCaptureList}}
		}
		return intent{text: trimmed}
	}

	// passthrough
	switch {
	case strings.HasPrefix(trimmed, "//"):
		return intent{text: "/tmux send /" + trimmed[2:]}
	case strings.HasPrefix(trimmed, "/") || strings.HasPrefix(trimmed, "."):
		return intent{text: trimmed}
	default:
		return intent{text: "/tmux send " + trimmed}
	}
}

var (
	rePassthroughOn  = regexp.MustCompile(`(?i)passthrough enabled\.`)
	rePassthroughOff = regexp.MustCompile(`(?i)passthrough disabled\.`)
	reTmuxTarget     = regexp.MustCompile(`\[tmux ([^\]]+)\]`)
	reTargetSet      = regexp.MustCompile("Target set to `([^`]+)`")
	reStreamMode     = regexp.MustCompile(`(?i)stream_mode\s+(\S+)`)
)

// applyModeDiscovery inspects an agent reply's text and updates the
// chat's cached mode state accordingly (spec.md §4.4, "Mode discovery
// from replies"): the agent is the source of truth for mode/target, the
// gateway only mirrors it for the "[mode] <modeTag>" header.
func applyModeDiscovery(st *ChatState, output string) {
	if rePassthroughOn.MatchString(output) {
		st.Mode = ModePassthrough
	}
	if rePassthroughOff.MatchString(output) {
		st.Mode = ModeControl
	}
	if m := reTmuxTarget.FindStringSubmatch(output); m != nil {
		st.PaneTarget = m[1]
	}
	if m := reTargetSet.FindStringSubmatch(output); m != nil {
		st.PaneTarget = m[1]
	}
	if m := reStreamMode.FindStringSubmatch(output); m != nil {
		st.StreamMode = m[1]
	}
}
