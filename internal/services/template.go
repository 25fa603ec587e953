package services

import (
	"html"
	"regexp"
	"strings"

	"github.com/nimasrn/vendzz-dispatch/internal/model"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([\p{L}0-9_.\-]+)\s*\}\}`)

// Render replaces {{variable}} placeholders with lead data. Unknown
// variables render as an empty string.
func Render(tpl string, l model.Lead) string {
	return render(tpl, l, false)
}

// RenderHTML is Render for HTML bodies; lead values are escaped.
func RenderHTML(tpl string, l model.Lead) string {
	return render(tpl, l, true)
}

// RenderVariant picks the template for the recipient at ordinal, rotating
// through the variants.
func RenderVariant(tpls []string, ordinal int, l model.Lead, escape bool) string {
	if len(tpls) == 0 {
		return ""
	}
	if ordinal < 0 {
		ordinal = -ordinal
	}
	return render(tpls[ordinal%len(tpls)], l, escape)
}

func render(tpl string, l model.Lead, escape bool) string {
	return placeholderRe.ReplaceAllStringFunc(tpl, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		v := lookupVar(name, l)
		if escape {
			return html.EscapeString(v)
		}
		return v
	})
}

func lookupVar(name string, l model.Lead) string {
	switch strings.ToLower(name) {
	case "nome", "name":
		return l.Name
	case "first_name", "primeiro_nome":
		if f := strings.Fields(l.Name); len(f) > 0 {
			return f[0]
		}
		return ""
	case "telefone", "phone", "whatsapp", "celular":
		return l.Phone
	case "email", "e-mail":
		return l.Email
	}
	if v, ok := l.CapturedFields[name]; ok {
		return v
	}
	for k, v := range l.CapturedFields {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
