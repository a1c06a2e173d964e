package extraction

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

var (
	errEmptyOutput  = errors.New("empty model output")
	errTrailingData = errors.New("trailing data after JSON object")

	fencedJSON     = regexp.MustCompile("(?s)```(?:json)?\\s*(.+?)\\s*```")
	trailingCommas = regexp.MustCompile(`,\s*([}\]])`)
)

// parseObject decodes a JSON object from model output. Models often wrap
// the object in a markdown fence or surround it with prose, so those forms
// are tried after a direct decode.
func parseObject(text string) (map[string]any, error) {
	text = strings.TrimSpace(strings.TrimPrefix(text, "\ufeff"))
	if text == "" {
		return nil, errEmptyOutput
	}

	candidates := []string{text}
	if m := fencedJSON.FindStringSubmatch(text); len(m) > 1 {
		candidates = append(candidates, m[1])
	}
	if start := strings.Index(text, "{"); start >= 0 {
		if obj := balancedObject(text[start:]); obj != "" {
			candidates = append(candidates, obj)
		}
	}

	for _, c := range candidates {
		for _, s := range []string{c, trailingCommas.ReplaceAllString(c, "$1")} {
			if out, err := decodeObject(s); err == nil && out != nil {
				return out, nil
			}
		}
	}
	return nil, fmt.Errorf("no JSON object in model output: %s", clip(text, 100))
}

// decodeObject decodes s keeping numbers as json.Number. Trailing content
// after the object is rejected.
func decodeObject(s string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errTrailingData
	}
	return out, nil
}

// balancedObject returns the prefix of s up to the brace closing s[0],
// ignoring braces inside strings.
func balancedObject(s string) string {
	depth := 0
	inString := false
	escape := false
	for i, ch := range s {
		switch {
		case escape:
			escape = false
		case ch == '\\' && inString:
			escape = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
