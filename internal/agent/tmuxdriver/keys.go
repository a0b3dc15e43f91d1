package tmuxdriver

// keyEvent is one send-keys invocation: either a literal string (sent
// with -l so tmux doesn't interpret it as a key name) or a named tmux
// key.
type keyEvent struct {
	text    string
	literal bool
}

// vtKeyNames maps VT100/xterm escape sequences for non-printable keys to
// the tmux key names send-keys understands. Named keys must be sent
// without -l so tmux resolves them instead of typing the sequence
// literally.
var vtKeyNames = map[string]string{
	"\x1b[Z":    "BTab",
	"\x1b[A":    "Up",
	"\x1bOA":    "Up",
	"\x1b[B":    "Down",
	"\x1bOB":    "Down",
	"\x1b[C":    "Right",
	"\x1bOC":    "Right",
	"\x1b[D":    "Left",
	"\x1bOD":    "Left",
	"\x1b[H":    "Home",
	"\x1bOH":    "Home",
	"\x1b[F":    "End",
	"\x1bOF":    "End",
	"\x1b[5~":   "PgUp",
	"\x1b[6~":   "PgDn",
	"\x1b[2~":   "IC",
	"\x1b[3~":   "DC",
	"\x1bOP":    "F1",
	"\x1bOQ":    "F2",
	"\x1bOR":    "F3",
	"\x1bOS":    "F4",
	"\x1b[15~":  "F5",
	"\x1b[17~":  "F6",
	"\x1b[18~":  "F7",
	"\x1b[19~":  "F8",
	"\x1b[20~":  "F9",
	"\x1b[21~":  "F10",
	"\x1b[23~":  "F11",
	"\x1b[24~":  "F12",
	"\x1b":      "Escape",
	"\x7f":      "BSpace",
	"\t":        "Tab",
	"\x03":      "C-c",
	"\x04":      "C-d",
	"\x1a":      "C-z",
}

// inputMarkers are the whole-string shortcut markers a client may send in
// place of raw bytes for keys that don't round-trip cleanly through chat
// platforms. Recognized only when they are the entire input string, not
// as a substring of a larger write.
var inputMarkers = map[string]string{
	"__CTRL_C__": "C-c",
	"__CTRL_D__": "C-d",
	"__CTRL_Z__": "C-z",
	"__ENTER__":  "Enter",
}

// longestVTPrefix is the length, in bytes, of the longest key in
// vtKeyNames — bounds how far translateInput needs to look ahead when
// matching an escape sequence.
var longestVTPrefix = func() int {
	max := 0
	for k := range vtKeyNames {
		if len(k) > max {
			max = len(k)
		}
	}
	return max
}()

// translateInput scans a raw input byte stream (as relayed from
// terminal.input's data field) into a sequence of tmux send-keys
// events: a whole-string shortcut marker becomes exactly one named key;
// otherwise \r/\n (and \r\n as one unit) become Enter, 0x00 is dropped,
// known control sequences become named keys, and everything else is
// coalesced into literal runs.
func translateInput(data []byte) []keyEvent {
	if name, ok := inputMarkers[string(data)]; ok {
		return []keyEvent{{text: name}}
	}

	var events []keyEvent
	var literal []byte

	flushLiteral := func() {
		if len(literal) > 0 {
			events = append(events, keyEvent{text: string(literal), literal: true})
			literal = nil
		}
	}

	i := 0
	for i < len(data) {
		b := data[i]

		if b == 0x00 {
			i++
			continue
		}

		if b == '\r' || b == '\n' {
			flushLiteral()
			events = append(events, keyEvent{text: "Enter"})
			i++
			if b == '\r' && i < len(data) && data[i] == '\n' {
				i++
			}
			continue
		}

		matched := false
		for l := longestVTPrefix; l >= 1; l-- {
			if i+l > len(data) {
				continue
			}
			if name, ok := vtKeyNames[string(data[i:i+l])]; ok {
				flushLiteral()
				events = append(events, keyEvent{text: name})
				i += l
				matched = true
				break
			}
		}
		if !matched {
			literal = append(literal, b)
			i++
		}
	}
	flushLiteral()
	return events
}
