package router

import (
	"strings"
)

// helpText lists commands visible to the caller. Owner-only commands are
// shown to owners only.
func (m *CommandManager) helpText(owner bool) string {
	var b strings.Builder
	b.WriteString("These commands are supported:\n")
	for _, c := range m.Commands() {
		if c.Access == AccessOwnerOnly && !owner {
			continue
		}
		usage := c.Usage
		if usage == "" {
			usage = "/" + c.Name
		}
		b.WriteString(usage)
		if c.Description != "" {
			b.WriteString(" - ")
			b.WriteString(c.Description)
		}
		if c.Access == AccessOwnerOnly {
			b.WriteString(" 🔒")
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
