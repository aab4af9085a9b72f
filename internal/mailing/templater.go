package mailing

import (
	"regexp"

	"github.com/ignite/bulkmail/internal/domain"
)

var placeholderRe = regexp.MustCompile(`%recipient\.([A-Za-z0-9_.\-]+)%`)

// Render replaces every %recipient.<field>% token in template with the
// recipient's value for field. Tokens whose field is not present in vars
// are left verbatim.
func Render(template string, vars domain.RecipientVars) string {
	if len(vars) == 0 {
		return template
	}
	return placeholderRe.ReplaceAllStringFunc(template, func(tok string) string {
		field := placeholderRe.FindStringSubmatch(tok)[1]
		if v, ok := vars[field]; ok {
			return v
		}
		return tok
	})
}

// RenderMessage renders subject and bodies of msg for one recipient.
func RenderMessage(msg domain.Message, vars domain.RecipientVars) (subject, html, text string) {
	return Render(msg.Subject, vars), Render(msg.HTML, vars), Render(msg.Text, vars)
}
