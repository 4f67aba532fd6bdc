// Package interpret turns raw oracle text into the structures the rest of the
// pipeline acts on: fenced modification blocks and chart specifications.
package interpret

import (
	"errors"
	"strings"
)

const fence = "```"

// ErrUnterminatedBlock means an opening fence was found without a closing one.
var ErrUnterminatedBlock = errors.New("fenced block has no closing marker")

// ExtractBlock returns the trimmed text between the first "```"+lang marker and
// the next "```". With no opening marker it returns ("", false, nil).
func ExtractBlock(text, lang string) (string, bool, error) {
	open := fence + lang
	start := strings.Index(text, open)
	if start < 0 {
		return "", false, nil
	}
	rest := text[start+len(open):]
	end := strings.Index(rest, fence)
	if end < 0 {
		return "", false, ErrUnterminatedBlock
	}
	return strings.TrimSpace(rest[:end]), true, nil
}

// unwrapFence strips a fence when the whole text is one fenced block, e.g.
// "```json\n{...}\n```". Any other text is returned unchanged.
func unwrapFence(text string) string {
	if !strings.HasPrefix(text, fence) || !strings.HasSuffix(text, fence) || len(text) < 2*len(fence) {
		return text
	}
	inner := text[len(fence) : len(text)-len(fence)]
	if strings.Contains(inner, fence) {
		return text
	}
	// drop the info string on the opening line
	if nl := strings.IndexByte(inner, '\n'); nl >= 0 {
		info := strings.TrimSpace(inner[:nl])
		if !strings.ContainsAny(info, "{[") {
			inner = inner[nl+1:]
		}
	}
	return strings.TrimSpace(inner)
}
