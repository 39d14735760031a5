package guard

import "regexp"

// Severity ranks how damaging a leaked match would be. Informational entries
// may appear in reports without being redacted; everything else is either
// redacted or dropped.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Pattern is a named secret detector. When the expression has a capture
// group, group 1 is the secret span; otherwise the whole match is.
type Pattern struct {
	Name       string
	Severity   Severity
	Confidence float64
	re         *regexp.Regexp
}

// NewPattern compiles a caller-supplied pattern for catalog extension.
func NewPattern(name string, severity Severity, confidence float64, expr string) (Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, err
	}
	return Pattern{Name: name, Severity: severity, Confidence: confidence, re: re}, nil
}

func mustPattern(name string, severity Severity, confidence float64, expr string) Pattern {
	return Pattern{Name: name, Severity: severity, Confidence: confidence, re: regexp.MustCompile(expr)}
}

// builtinPatterns is the fixed catalog. Confidence values mirror how
// distinctive each shape is; generic shapes rank lower so the minimum
// confidence threshold can tune them out.
var builtinPatterns = []Pattern{
	// Cloud provider credentials
	mustPattern("aws_access_key", SeverityCritical, 0.95, `(?:^|[^A-Z0-9])(AKIA[0-9A-Z]{16})(?:[^A-Z0-9]|$)`),
	mustPattern("aws_secret_key", SeverityHigh, 0.7, `(?:^|[^A-Za-z0-9/+=])([A-Za-z0-9/+=]{40})(?:[^A-Za-z0-9/+=]|$)`),
	mustPattern("google_api_key", SeverityCritical, 1.0, `AIza[0-9A-Za-z\-_]{35}`),
	mustPattern("azure_storage_key", SeverityCritical, 1.0, `(?i)DefaultEndpointsProtocol=https;AccountName=[^;]+;AccountKey=([^;\s]+)`),

	// Forge and CI tokens
	mustPattern("github_token", SeverityCritical, 1.0, `gh[pousr]_[a-zA-Z0-9]{36}`),
	mustPattern("github_fine_grained", SeverityCritical, 1.0, `github_pat_[a-zA-Z0-9_]{22,}`),
	mustPattern("gitlab_token", SeverityCritical, 1.0, `glpat-[a-zA-Z0-9\-_]{20,}`),
	mustPattern("npm_token", SeverityHigh, 1.0, `//registry\.npmjs\.org/:_authToken=(\S+)`),
	mustPattern("pypi_token", SeverityHigh, 1.0, `pypi-[a-zA-Z0-9_\-]{40,}`),

	// SaaS keys
	mustPattern("slack_token", SeverityCritical, 1.0, `xox[baprs]-[0-9]{10,13}-[0-9]{10,13}-[a-zA-Z0-9]{23,25}`),
	mustPattern("slack_webhook", SeverityHigh, 1.0, `https://hooks\.slack\.com/services/T[a-zA-Z0-9_]+/B[a-zA-Z0-9_]+/[a-zA-Z0-9_]+`),
	mustPattern("stripe_live_key", SeverityCritical, 1.0, `sk_live_[a-zA-Z0-9]{24,}`),
	mustPattern("stripe_test_key", SeverityMedium, 0.9, `sk_test_[a-zA-Z0-9]{24,}`),
	mustPattern("sendgrid_api_key", SeverityCritical, 1.0, `SG\.[a-zA-Z0-9_\-]{22}\.[a-zA-Z0-9_\-]{43}`),
	mustPattern("mailgun_api_key", SeverityHigh, 0.9, `key-[a-f0-9]{32}`),
	mustPattern("twilio_account_sid", SeverityMedium, 0.8, `AC[a-f0-9]{32}`),

	// Model provider keys
	mustPattern("anthropic_api_key", SeverityCritical, 1.0, `sk-ant-api[a-zA-Z0-9\-_]{80,}`),
	mustPattern("openai_api_key", SeverityCritical, 1.0, `sk-proj-[a-zA-Z0-9\-_]{40,}`),

	// Structured credentials
	mustPattern("jwt_token", SeverityHigh, 0.85, `eyJ[a-zA-Z0-9_\-]+\.eyJ[a-zA-Z0-9_\-]+\.[a-zA-Z0-9_\-]*`),
	mustPattern("private_key_block", SeverityCritical, 1.0, `-----BEGIN (?:RSA |EC |DSA |OPENSSH |PGP |ENCRYPTED )?PRIVATE KEY(?: BLOCK)?-----`),

	// Connection URLs with embedded passwords
	mustPattern("postgres_url", SeverityCritical, 1.0, `(?i)postgres(?:ql)?://[^:\s]+:([^@\s]+)@[^/\s]+`),
	mustPattern("mysql_url", SeverityCritical, 1.0, `(?i)mysql://[^:\s]+:([^@\s]+)@[^/\s]+`),
	mustPattern("mongodb_url", SeverityCritical, 1.0, `(?i)mongodb(?:\+srv)?://[^:\s]+:([^@\s]+)@[^\s]+`),
	mustPattern("redis_url", SeverityHigh, 1.0, `(?i)redis://[^:\s]*:([^@\s]+)@[^\s]+`),

	// Generic assignment and header shapes
	mustPattern("password_assignment", SeverityHigh, 0.8,
		`(?i)(?:password|passwd|pwd|secret|token|api[_\-]?key|apikey|auth[_\-]?token|access[_\-]?token|credentials?)\s*[=:]\s*['"]([^'"]{8,})['"]`),
	mustPattern("bearer_token", SeverityMedium, 0.75, `(?i)bearer\s+([a-zA-Z0-9\-_.]{16,})`),
	mustPattern("basic_auth", SeverityHigh, 0.9, `(?i)basic\s+([a-zA-Z0-9+/=]{20,})`),
	mustPattern("env_secret", SeverityCritical, 1.0,
		`(?im)^(?:DB_PASSWORD|DATABASE_URL|SECRET_KEY|API_KEY|AWS_SECRET|PRIVATE_KEY|JWT_SECRET|SESSION_SECRET|ENCRYPTION_KEY|AUTH_SECRET)\s*=\s*(.+)$`),

	// Weak shapes kept informational so operators can see near misses in the
	// audit report without them triggering redaction on their own.
	mustPattern("hex_token_32", SeverityInfo, 0.3, `(?:^|[^a-f0-9])([a-f0-9]{32})(?:[^a-f0-9]|$)`),
}
