package session

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/agusx1211/hitlctl/model"
)

const titleLimit = 40

var lotPattern = regexp.MustCompile(`(?i)LOT[-\s]?(\S+)`)

// Title names a thread after the operator's first request.
func Title(text string) string {
	text = strings.TrimSpace(text)
	if m := lotPattern.FindStringSubmatch(text); m != nil {
		return fmt.Sprintf("LOT-%s inspection", m[1])
	}
	r := []rune(text)
	if len(r) > titleLimit {
		return string(r[:titleLimit]) + "..."
	}
	return text
}

func titleOf(entries []model.Entry) string {
	for _, e := range entries {
		if e.Role == model.RoleUser {
			return Title(e.Content)
		}
	}
	return ""
}
