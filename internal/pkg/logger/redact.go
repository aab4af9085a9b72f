package logger

import "strings"

// RedactEmail masks the local part of an address and keeps the domain.
// "john.doe@example.com" → "jo***@example.com", "ab@example.com" →
// "***@example.com". A display-name form such as "News <news@example.com>"
// is reduced to the masked bare address so the name does not leak either.
func RedactEmail(email string) string {
	email = strings.TrimSpace(email)
	if i := strings.LastIndexByte(email, '<'); i >= 0 {
		email = strings.TrimSuffix(email[i+1:], ">")
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" || strings.Contains(domain, "@") {
		return "***@***"
	}
	if len(local) > 2 {
		return local[:2] + "***@" + domain
	}
	return "***@" + domain
}
