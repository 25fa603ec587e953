package leads

import (
	"errors"
	"regexp"
	"strings"
)

var ErrInvalidPhone = errors.New("invalid phone")

var emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// NormalizePhone returns the number as international digits without '+'.
// Local Brazilian numbers (DDD + number, 10 or 11 digits) get the 55 prefix,
// numbers written with '+' or a 00 prefix are kept as dialed.
func NormalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidPhone
	}
	international := strings.HasPrefix(raw, "+")

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	phone := b.String()

	if !international && strings.HasPrefix(phone, "00") {
		phone = phone[2:]
		international = true
	}
	if international {
		if len(phone) < 10 || len(phone) > 15 || phone[0] == '0' {
			return "", ErrInvalidPhone
		}
		return phone, nil
	}

	phone = strings.TrimLeft(phone, "0")
	if len(phone) == 10 || len(phone) == 11 {
		phone = "55" + phone
	}
	if len(phone) < 12 || len(phone) > 15 {
		return "", ErrInvalidPhone
	}
	return phone, nil
}

func ValidEmail(email string) bool {
	return emailRe.MatchString(email)
}
