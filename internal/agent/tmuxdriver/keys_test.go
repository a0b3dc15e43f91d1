package tmuxdriver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranslateInputLiteralRun(t *testing.T) {
	events := translateInput([]byte("hello"))
	assert.Equal(t, []keyEvent{{text: "hello", literal: true}}, events)
}

func TestTranslateInputNamedKey(t *testing.T) {
	events := translateInput([]byte("\x1b[A"))
	assert.Equal(t, []keyEvent{{text: "Up"}}, events)
}

func TestTranslateInputMixed(t *testing.T) {
	events := translateInput([]byte("ls\r"))
	assert.Equal(t, []keyEvent{
		{text: "ls", literal: true},
		{text: "Enter"},
	}, events)
}

func TestTranslateInputControlSequenceBetweenLiterals(t *testing.T) {
	events := translateInput([]byte("ab\x1b[Bcd"))
	assert.Equal(t, []keyEvent{
		{text: "ab", literal: true},
		{text: "Down"},
		{text: "cd", literal: true},
	}, events)
}

func TestTranslateInputCtrlC(t *testing.T) {
	events := translateInput([]byte("\x03"))
	assert.Equal(t, []keyEvent{{text: "C-c"}}, events)
}

func TestTranslateInputEmpty(t *testing.T) {
	assert.Nil(t, translateInput(nil))
}

func TestTranslateInputCRLFIsOneEnter(t *testing.T) {
	events := translateInput([]byte("ls\r\n"))
	assert.Equal(t, []keyEvent{
		{text: "ls", literal: true},
		{text: "Enter"},
	}, events)
}

func TestTranslateInputNulIsSkipped(t *testing.T) {
	events := translateInput([]byte("a\x00b"))
	assert.Equal(t, []keyEvent{{text: "ab", literal: true}}, events)
}

func TestTranslateInputWholeStringMarkers(t *testing.T) {
	cases := map[string]string{
		"__CTRL_C__": "C-c",
		"__CTRL_D__": "C-d",
		"__CTRL_Z__": "C-z",
		"__ENTER__":  "Enter",
	}
	for marker, want := range cases {
		events := translateInput([]byte(marker))
		assert.Equal(t, []keyEvent{{text: want}}, events, "marker %s", marker)
	}
}

func TestTranslateInputMarkerOnlyRecognizedWholeString(t *testing.T) {
	events := translateInput([]byte("__CTRL_C__ extra"))
	assert.Equal(t, []keyEvent{{text: "__CTRL_C__ extra", literal: true}}, events,
		"a marker embedded in a larger string is just literal text, not a key action")
}
