package cpu

import (
	"encoding/json"
	"fmt"

	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// Diff renders an ASCII diff between two contexts. The bool reports whether
// they differ; the string is empty when they match.
func Diff(expected, actual *Context, coloring bool) (string, bool, error) {
	expJSON, err := json.Marshal(expected)
	if err != nil {
		return "", false, fmt.Errorf("marshal expected: %w", err)
	}
	actJSON, err := json.Marshal(actual)
	if err != nil {
		return "", false, fmt.Errorf("marshal actual: %w", err)
	}
	differ := gojsondiff.New()
	delta, err := differ.Compare(expJSON, actJSON)
	if err != nil {
		return "", false, fmt.Errorf("diffing JSON: %w", err)
	}
	if !delta.Modified() {
		return "", false, nil
	}
	var leftObj interface{}
	_ = json.Unmarshal(expJSON, &leftObj)
	cfg := formatter.AsciiFormatterConfig{
		ShowArrayIndex: true,
		Coloring:       coloring,
	}
	asciiDiff, err := formatter.NewAsciiFormatter(leftObj, cfg).Format(delta)
	if err != nil {
		return "", true, fmt.Errorf("formatting diff: %w", err)
	}
	return asciiDiff, true, nil
}
