package logger

import (
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

// secretKeys are field names whose values are never written.
var secretKeys = map[string]bool{
	"password":      true,
	"backup_code":   true,
	"session_id":    true,
	"sessionid":     true,
	"access_token":  true,
	"token":         true,
	"verify_token":  true,
	"app_secret":    true,
	"authorization": true,
	"cookie":        true,
	"passphrase":    true,
}

func isSecretKey(key string) bool {
	return secretKeys[strings.ToLower(key)]
}

// secretPattern matches credentials embedded in URLs, cookies and headers,
// e.g. the access_token query parameter net/http includes in Graph API
// errors.
var secretPattern = regexp.MustCompile(`(?i)\b(access_token|sessionid|session_id|client_secret|fb_exchange_token|password)=([^&\s;"']+)`)

var bearerPattern = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._~+/=-]+`)

// Redact masks credentials found in s.
func Redact(s string) string {
	if !strings.ContainsAny(s, "=") && !strings.Contains(strings.ToLower(s), "bearer") {
		return s
	}
	s = secretPattern.ReplaceAllString(s, "${1}="+redacted)
	return bearerPattern.ReplaceAllString(s, "Bearer "+redacted)
}
