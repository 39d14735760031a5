package guard

import (
	"path/filepath"
	"strings"
)

// Files whose contents must never be read into memory, let alone sanitized.
var sensitiveFilenames = map[string]struct{}{
	".env":                 {},
	".env.local":           {},
	".env.development":     {},
	".env.production":      {},
	".env.staging":         {},
	".env.test":            {},
	"credentials.json":     {},
	"service-account.json": {},
	"secrets.yaml":         {},
	"secrets.yml":          {},
	"secrets.json":         {},
	".npmrc":               {},
	".pypirc":              {},
	".netrc":               {},
	"id_rsa":               {},
	"id_ed25519":           {},
	"id_ecdsa":             {},
	"id_dsa":               {},
	"htpasswd":             {},
	".htpasswd":            {},
	"shadow":               {},
	"passwd":               {},
}

var sensitiveExtensions = map[string]struct{}{
	".pem":      {},
	".key":      {},
	".p12":      {},
	".pfx":      {},
	".jks":      {},
	".keystore": {},
	".cer":      {},
	".crt":      {},
}

// IsSensitivePath reports whether a file is inherently sensitive. Callers
// must consult this before reading file bytes; Sanitize is never a substitute
// for the pre-filter.
func IsSensitivePath(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	if _, ok := sensitiveFilenames[name]; ok {
		return true
	}
	if _, ok := sensitiveExtensions[strings.ToLower(filepath.Ext(name))]; ok {
		return true
	}
	// Anything that self-describes as a private key.
	if strings.Contains(name, "private") && strings.Contains(name, "key") {
		return true
	}
	return false
}
