package relayclient

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tfclaw/tfclaw/internal/util/id"
	"github.com/tfclaw/tfclaw/internal/wire"
)

// textSession is one chat's (sessionKey's) view onto this agent: which
// terminal its plain text currently targets, and whether it's in
// multiplexer-passthrough mode. The gateway mirrors this via "mode
// discovery from replies" (spec.md §4.4); the agent is the source of
// truth.
type textSession struct {
	target     string
	passthrough bool
	streamMode  string
}

// handleTfclawCommand interprets the free-text vocabulary spec.md §4.4
// assigns to control mode (help/state/list/new/use/attach/close/key/
// ctrlc/ctrld, directed "<ref>: text", and the /tmux and /passthrough
// alias family) and replies with a single rendered text result.
func (c *Client) handleTfclawCommand(ctx context.Context, p wire.ClientCommandPayload) {
	sessionKey := p.SessionKey
	if sessionKey == "" {
		sessionKey = "default"
	}

	c.sessionsMu.Lock()
	sess, ok := c.sessions[sessionKey]
	if !ok {
		sess = &textSession{streamMode: "auto"}
		c.sessions[sessionKey] = sess
	}
	c.sessionsMu.Unlock()

	out, err := c.dispatchText(ctx, sess, strings.TrimSpace(p.Text))
	if err != nil {
		c.sendError(ctx, "tfclaw_command_failed", err.Error(), p.RequestID)
		return
	}
	_ = c.sendResult(ctx, p.RequestID, withModeHeader(sess, out))
}

func withModeHeader(sess *textSession, body string) string {
	tag := "control"
	if sess.passthrough {
		tag = "passthrough"
	}
	return fmt.Sprintf("[mode] %s\n%s", tag, body)
}

func (c *Client) dispatchText(ctx context.Context, sess *textSession, text string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("empty command")
	}

	lower := strings.ToLower(text)
	fields := strings.Fields(text)
	cmd := strings.ToLower(fields[0])
	rest := strings.TrimSpace(strings.TrimPrefix(text, fields[0]))

	switch {
	case cmd == "help":
		return helpText(), nil

	case cmd == "state":
		return c.renderState(sess), nil

	case cmd == "list":
		return c.renderList(), nil

	case cmd == "new":
		title := rest
		if title == "" {
			title = "shell"
		}
		tid := id.NewTerminalID()
		if err := c.mgr.CreateTerminal(ctx, tid, title, c.cfg.DefaultCwd); err != nil {
			return "", err
		}
		sess.target = tid
		_ = c.publishTerminalList(ctx)
		return fmt.Sprintf("Created terminal `%s`. Target set to `%s`.", tid, tid), nil

	case cmd == "use":
		tid, err := c.resolveRef(rest)
		if err != nil {
			return "", err
		}
		sess.target = tid
		return fmt.Sprintf("Target set to `%s`.", tid), nil

	case cmd == "attach":
		tid, err := c.resolveRefOrCurrent(sess, rest)
		if err != nil {
			return "", err
		}
		sess.target = tid
		sess.passthrough = true
		return fmt.Sprintf("passthrough enabled.\n[tmux %s]", tid), nil

	case cmd == "close":
		tid, err := c.resolveRefOrCurrent(sess, rest)
		if err != nil {
			return "", err
		}
		if err := c.mgr.CloseTerminal(ctx, tid); err != nil {
			return "", err
		}
		if sess.target == tid {
			sess.target = ""
		}
		_ = c.publishTerminalList(ctx)
		return fmt.Sprintf("Closed terminal `%s`.", tid), nil

	case cmd == "key":
		if rest == "" {
			return "", fmt.Errorf("key requires a keyspec, e.g. \"key Enter\"")
		}
		if sess.target == "" {
			return "", fmt.Errorf("no target terminal; use `use <ref>` first")
		}
		if err := c.mgr.SendInput(ctx, sess.target, []byte(rest)); err != nil {
			return "", err
		}
		return fmt.Sprintf("Sent key `%s` to `%s`.", rest, sess.target), nil

	case cmd == "ctrlc":
		return c.sendControlByte(ctx, sess, 0x03, "Ctrl-C")

	case cmd == "ctrld":
		return c.sendControlByte(ctx, sess, 0x04, "Ctrl-D")

	case lower == ".exit" || lower == "/passthrough off":
		sess.passthrough = false
		return "passthrough disabled.", nil

	case lower == "/passthrough on":
		sess.passthrough = true
		return "passthrough enabled.", nil

	case strings.HasPrefix(text, "/tmux send "):
		body := strings.TrimPrefix(text, "/tmux send ")
		return c.sendToTarget(ctx, sess, body)

	case strings.HasPrefix(text, "/tmux ") || strings.HasPrefix(text, "/pt ") || strings.HasPrefix(text, "/t "):
		target := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(strings.TrimPrefix(text, "/tmux "), "/pt "), "/t "))
		tid, err := c.resolveRef(target)
		if err != nil {
			return "", err
		}
		sess.target = tid
		return fmt.Sprintf("Target set to `%s`.\n[tmux %s]", tid, tid), nil

	default:
		if ref, body, ok := splitDirected(text); ok {
			if tid, err := c.resolveRef(ref); err == nil {
				return c.sendToExplicit(ctx, tid, body)
			}
		}
		return c.sendToTarget(ctx, sess, text)
	}
}

func (c *Client) sendControlByte(ctx context.Context, sess *textSession, b byte, label string) (string, error) {
	if sess.target == "" {
		return "", fmt.Errorf("no target terminal; use `use <ref>` first")
	}
	if err := c.mgr.SendInput(ctx, sess.target, []byte{b}); err != nil {
		return "", err
	}
	return fmt.Sprintf("Sent %s to `%s`.", label, sess.target), nil
}

func (c *Client) sendToTarget(ctx context.Context, sess *textSession, body string) (string, error) {
	if sess.target == "" {
		return "", fmt.Errorf("no target terminal; use `use <ref>` first")
	}
	return c.sendToExplicit(ctx, sess.target, body)
}

func (c *Client) sendToExplicit(ctx context.Context, terminalID, body string) (string, error) {
	if err := c.mgr.SendInput(ctx, terminalID, []byte(body+"\r")); err != nil {
		return "", err
	}
	return fmt.Sprintf("Sent to `%s`.", terminalID), nil
}

// splitDirected recognizes "<ref>: <text>", the syntax for aiming one
// line at a terminal without switching the session's current target.
func splitDirected(text string) (ref, body string, ok bool) {
	idx := strings.Index(text, ": ")
	if idx <= 0 {
		return "", "", false
	}
	ref = text[:idx]
	if strings.ContainsAny(ref, " \t") {
		return "", "", false
	}
	return ref, text[idx+2:], true
}

// resolveRef accepts a 1-based list index or a terminal id prefix.
func (c *Client) resolveRef(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("missing terminal reference")
	}
	ids := sortedTerminals(c.mgr.Terminals())
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(ids) {
			return "", fmt.Errorf("no terminal #%d", n)
		}
		return ids[n-1], nil
	}
	for _, tid := range ids {
		if tid == ref || strings.HasPrefix(tid, ref) {
			return tid, nil
		}
	}
	return "", fmt.Errorf("no terminal matching %q", ref)
}

func (c *Client) resolveRefOrCurrent(sess *textSession, ref string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		if sess.target == "" {
			return "", fmt.Errorf("no current terminal and no reference given")
		}
		return sess.target, nil
	}
	return c.resolveRef(ref)
}

func (c *Client) renderList() string {
	ids := sortedTerminals(c.mgr.Terminals())
	if len(ids) == 0 {
		return "No terminals."
	}
	var b strings.Builder
	for i, tid := range ids {
		fmt.Fprintf(&b, "%d. `%s`\n", i+1, tid)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *Client) renderState(sess *textSession) string {
	target := sess.target
	if target == "" {
		target = "(none)"
	}
	return fmt.Sprintf("target=%s stream_mode=%s terminals=%d", target, sess.streamMode, len(c.mgr.Terminals()))
}

func sortedTerminals(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}

func helpText() string {
	return "Commands: help, state, list, new [title], use <ref>, attach [ref], " +
		"close [ref], key <keyspec>, ctrlc, ctrld, capture, <ref>: <text>, " +
		"/tmux <ref>, /tmux send <text>, /passthrough on|off, .exit"
}
