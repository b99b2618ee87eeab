package answer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fin-agent/backend/internal/storage/models"
)

// labelPattern matches the four requested section labels at line start,
// tolerating numbering, markdown bold, and a trailing colon or dash.
var labelPattern = regexp.MustCompile(
	`(?mi)^[ \t]*(?:\d+[.)][ \t]*)?(?:\*\*)?[ \t]*(answer|reasoning|citations?|confidence(?:[ \t]+level)?)[ \t]*(?:\*\*)?[ \t]*[:\-]`)

// ParseAnswer splits a completion into the four labeled parts the generation
// prompt requests. All four must be present; anything else is ErrParse and
// the caller keeps the raw text.
func ParseAnswer(raw string) (*models.ParsedAnswer, error) {
	matches := labelPattern.FindAllStringSubmatchIndex(raw, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no labeled sections found", models.ErrParse)
	}

	sections := make(map[string]string, 4)
	for i, m := range matches {
		label := canonicalLabel(raw[m[2]:m[3]])

		bodyStart := m[1]
		bodyEnd := len(raw)
		if i+1 < len(matches) {
			bodyEnd = matches[i+1][0]
		}

		if _, dup := sections[label]; !dup {
			sections[label] = strings.TrimSpace(raw[bodyStart:bodyEnd])
		}
	}

	for _, required := range []string{"answer", "reasoning", "citations", "confidence"} {
		if _, ok := sections[required]; !ok {
			return nil, fmt.Errorf("%w: missing %s section", models.ErrParse, required)
		}
	}

	return &models.ParsedAnswer{
		Answer:     sections["answer"],
		Reasoning:  sections["reasoning"],
		Citations:  sections["citations"],
		Confidence: normalizeConfidence(sections["confidence"]),
	}, nil
}

func canonicalLabel(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	switch {
	case strings.HasPrefix(label, "citation"):
		return "citations"
	case strings.HasPrefix(label, "confidence"):
		return "confidence"
	default:
		return label
	}
}

func normalizeConfidence(value string) string {
	lower := strings.ToLower(value)
	switch {
	case strings.Contains(lower, "high"):
		return "High"
	case strings.Contains(lower, "medium"):
		return "Medium"
	case strings.Contains(lower, "low"):
		return "Low"
	default:
		return value
	}
}
