package leads

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nimasrn/vendzz-dispatch/internal/model"
)

// ErrRecipientUnresolvable marks a lead without a usable address for a channel.
var ErrRecipientUnresolvable = errors.New("recipient unresolvable")

var (
	phonePrefixes = []string{"telefone", "phone", "whatsapp", "celular"}
	phoneHints    = []string{"tel", "fone", "phone", "whats", "cel", "mobile"}
	emailPrefixes = []string{"email", "e-mail", "mail"}
	namePrefixes  = []string{"nome", "name", "first_name"}
)

// Extract projects a quiz response into a Lead. It never fails: fields that
// cannot be found stay empty.
func Extract(resp *model.QuizResponse) model.Lead {
	keys := make([]string, 0, len(resp.Responses))
	captured := make(map[string]string, len(resp.Responses))
	for k, v := range resp.Responses {
		s := strings.TrimSpace(stringify(v))
		if s == "" {
			continue
		}
		keys = append(keys, k)
		captured[k] = s
	}
	sort.Strings(keys)

	return model.Lead{
		ResponseID:     resp.ID,
		Phone:          findPhone(keys, captured),
		Email:          findEmail(keys, captured),
		Name:           findName(keys, captured),
		CapturedFields: captured,
		IsComplete:     resp.IsComplete,
		SubmittedAt:    resp.SubmittedAt.UTC(),
	}
}

// Recipient returns the normalized address of l on ch.
func Recipient(l model.Lead, ch model.Channel) (string, error) {
	if r := l.Recipient(ch); r != "" {
		return r, nil
	}
	return "", ErrRecipientUnresolvable
}

func findPhone(keys []string, fields map[string]string) string {
	for _, prefix := range phonePrefixes {
		for _, k := range keys {
			if !strings.HasPrefix(strings.ToLower(k), prefix) {
				continue
			}
			if p, err := NormalizePhone(fields[k]); err == nil {
				return p
			}
		}
	}
	for _, k := range keys {
		if !containsAny(strings.ToLower(k), phoneHints) {
			continue
		}
		if p, err := NormalizePhone(fields[k]); err == nil {
			return p
		}
	}
	return ""
}

func findEmail(keys []string, fields map[string]string) string {
	for _, prefix := range emailPrefixes {
		for _, k := range keys {
			if !strings.HasPrefix(strings.ToLower(k), prefix) {
				continue
			}
			if e := strings.ToLower(fields[k]); ValidEmail(e) {
				return e
			}
		}
	}
	for _, k := range keys {
		if !strings.Contains(strings.ToLower(k), "mail") {
			continue
		}
		if e := strings.ToLower(fields[k]); ValidEmail(e) {
			return e
		}
	}
	return ""
}

func findName(keys []string, fields map[string]string) string {
	for _, prefix := range namePrefixes {
		for _, k := range keys {
			if strings.HasPrefix(strings.ToLower(k), prefix) {
				return fields[k]
			}
		}
	}
	return ""
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// stringify flattens the shapes quiz answers come in: plain values, answer
// objects and multiple choice lists.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case map[string]any:
		for _, k := range []string{"value", "answer", "text"} {
			if inner, ok := t[k]; ok {
				return stringify(inner)
			}
		}
		return ""
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := stringify(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprint(v)
}

// Matches applies the audience and date filter of a campaign.
func Matches(l model.Lead, audience model.Audience, dateFilter *time.Time) bool {
	switch audience {
	case model.AudienceCompleted:
		if !l.IsComplete {
			return false
		}
	case model.AudienceAbandoned:
		if l.IsComplete {
			return false
		}
	}
	if dateFilter != nil && l.SubmittedAt.Before(*dateFilter) {
		return false
	}
	return true
}

// Resolve extracts leads from responses and keeps those in the audience.
func Resolve(responses []*model.QuizResponse, audience model.Audience, dateFilter *time.Time) []model.Lead {
	out := make([]model.Lead, 0, len(responses))
	for _, r := range responses {
		l := Extract(r)
		if Matches(l, audience, dateFilter) {
			out = append(out, l)
		}
	}
	return out
}
