// Package report extracts headline metrics from automation run output.
// The generated scripts print a line-oriented report; parsing is tolerant
// of missing sections so partial runs still yield whatever was measured.
package report

import (
	"bufio"
	"strconv"
	"strings"
)

// Metrics holds the headline numbers pulled from a run report.
type Metrics struct {
	WordCount   int      `json:"word_count"`
	TotalLinks  int      `json:"total_links"`
	LoadTimeMS  int      `json:"load_time_ms"`
	DOMElements int      `json:"dom_elements"`
	Screenshots []string `json:"screenshots,omitempty"`
}

// Empty reports whether no metric was found at all.
func (m Metrics) Empty() bool {
	return m.WordCount == 0 && m.TotalLinks == 0 && m.LoadTimeMS == 0 &&
		m.DOMElements == 0 && len(m.Screenshots) == 0
}

// Parse scans run output for the report labels and returns the metrics it
// finds. Unrecognized lines are skipped.
func Parse(output string) Metrics {
	var m Metrics
	sc := bufio.NewScanner(strings.NewReader(output))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "Word Count:"):
			m.WordCount = parseNumber(strings.TrimPrefix(line, "Word Count:"))
		case strings.HasPrefix(line, "Total Links:"):
			m.TotalLinks = parseNumber(strings.TrimPrefix(line, "Total Links:"))
		case strings.HasPrefix(line, "Total Load Time:"):
			m.LoadTimeMS = parseNumber(strings.TrimPrefix(line, "Total Load Time:"))
		case strings.HasPrefix(line, "Total DOM Elements:"):
			m.DOMElements = parseNumber(strings.TrimPrefix(line, "Total DOM Elements:"))
		case strings.HasPrefix(line, "Screenshot saved:"):
			if name := strings.TrimSpace(strings.TrimPrefix(line, "Screenshot saved:")); name != "" {
				m.Screenshots = append(m.Screenshots, name)
			}
		}
	}
	return m
}

// parseNumber reads the leading integer from a value like "12,345 words"
// or "456ms". Returns 0 when no digits are present.
func parseNumber(raw string) int {
	raw = strings.TrimSpace(raw)
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
			continue
		}
		if r == ',' {
			continue
		}
		break
	}
	if digits.Len() == 0 {
		return 0
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0
	}
	return n
}
