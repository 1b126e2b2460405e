// Package secretfilter redacts secrets from strings and structured
// metadata before registration, per spec §4.10.
package secretfilter

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
)

// Detection records one redacted match so the CLI can prompt the user
// before anything is sent to the server.
type Detection struct {
	PatternID string
	Field     string
	Length    int
}

// Config mirrors the user-facing knobs of spec §4.10.
type Config struct {
	Enabled        bool
	ExplicitValues []string
	EnvVarNames    []string
	CustomPatterns []CustomPattern
	Allowlist      []string
}

// CustomPattern is a user-configured regex + optional replacement.
type CustomPattern struct {
	ID          string
	Pattern     string
	Replacement string
}

type builtinPattern struct {
	id          string
	pattern     *regexp.Regexp
	replacement string
}

// builtinPatterns covers the fixed set spec §4.10 names: AWS keys, GitHub
// tokens/PATs, OpenAI/Anthropic/HuggingFace keys, generic
// --api-key/--token/--password/--secret, bearer tokens, user:pass@ in
// URLs, private-key PEM blocks, Slack webhooks, and KEY/TOKEN/SECRET/
// PASSWORD/PASSWD/PWD/CREDENTIAL/AUTH env-style assignments.
var builtinPatterns = []builtinPattern{
	{"aws_access_key", regexp.MustCompile(`AKIA[A-Z0-9]{16}`), "[AWS_KEY_REDACTED]"},
	{"aws_secret_key", regexp.MustCompile(`(?i)(aws_secret_access_key|aws_secret)[=:\s]+['"]?([A-Za-z0-9/+=]{40})['"]?`), "${1}=[REDACTED]"},
	{"github_token", regexp.MustCompile(`ghp_[A-Za-z0-9]{36,}`), "[GITHUB_TOKEN_REDACTED]"},
	{"github_pat", regexp.MustCompile(`github_pat_[a-zA-Z0-9]{22}_[a-zA-Z0-9]{59}`), "[GITHUB_PAT_REDACTED]"},
	{"openai_key", regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`), "[OPENAI_KEY_REDACTED]"},
	{"anthropic_key", regexp.MustCompile(`sk-ant-[a-zA-Z0-9\-]+`), "[ANTHROPIC_KEY_REDACTED]"},
	{"huggingface_token", regexp.MustCompile(`hf_[a-zA-Z0-9]{34}`), "[HF_TOKEN_REDACTED]"},
	{"generic_api_key_arg", regexp.MustCompile(`(?i)(--?(?:api[_-]?key|apikey))[=\s]+['"]?([^\s'"]{16,})['"]?`), "${1}=[REDACTED]"},
	{"generic_token_arg", regexp.MustCompile(`(?i)(--?(?:token|auth[_-]?token))[=\s]+['"]?([^\s'"]{16,})['"]?`), "${1}=[REDACTED]"},
	{"generic_password_arg", regexp.MustCompile(`(?i)(--?(?:password|passwd|pwd))[=\s]+['"]?([^\s'"]+)['"]?`), "${1}=[REDACTED]"},
	{"generic_secret_arg", regexp.MustCompile(`(?i)(--?(?:secret|secret[_-]?key))[=\s]+['"]?([^\s'"]+)['"]?`), "${1}=[REDACTED]"},
	{"bearer_token", regexp.MustCompile(`(?i)(bearer)\s+([a-zA-Z0-9\-._~+/]{20,}=*)`), "${1} [REDACTED]"},
	{"git_url_creds", regexp.MustCompile(`(https?://)([^:@]+):([^@]+)@`), "${1}${2}:[REDACTED]@"},
	{"database_url", regexp.MustCompile(`(?i)((?:postgres|mysql|mongodb|redis)://)([^:]+):([^@]+)@`), "${1}${2}:[REDACTED]@"},
	{"private_key", regexp.MustCompile(`-----BEGIN\s+(?:RSA\s+|EC\s+|DSA\s+|OPENSSH\s+)?PRIVATE\s+KEY-----`), "[PRIVATE_KEY_REDACTED]"},
	{"slack_webhook", regexp.MustCompile(`(?i)(hooks\.slack\.com/services/)([A-Z0-9/]+)`), "${1}[REDACTED]"},
	{"env_var_assignment", regexp.MustCompile(`(?i)([A-Z_]*(?:KEY|TOKEN|SECRET|PASSWORD|PASSWD|PWD|CREDENTIAL|AUTH)[A-Z_]*)=(\S+)`), "${1}=[REDACTED]"},
}

// Filter applies the configured filters to strings and structured data.
type Filter struct {
	cfg       Config
	allowlist []*regexp.Regexp
	custom    []builtinPattern
}

func New(cfg Config) *Filter {
	f := &Filter{cfg: cfg}
	for _, p := range cfg.Allowlist {
		if re, err := regexp.Compile(p); err == nil {
			f.allowlist = append(f.allowlist, re)
		}
	}
	for i, cp := range cfg.CustomPatterns {
		re, err := regexp.Compile(cp.Pattern)
		if err != nil {
			continue
		}
		id := cp.ID
		if id == "" {
			id = "custom_" + itoa(i)
		}
		replacement := cp.Replacement
		if replacement == "" {
			replacement = "[REDACTED]"
		}
		f.custom = append(f.custom, builtinPattern{id: id, pattern: re, replacement: replacement})
	}
	return f
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := []byte{}
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}

func (f *Filter) isAllowlisted(match string) bool {
	for _, re := range f.allowlist {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}

// FilterString redacts explicit values, then built-in patterns, then
// custom patterns, in that order (spec §4.10).
func (f *Filter) FilterString(text, field string) (string, []Detection) {
	if !f.cfg.Enabled || text == "" {
		return text, nil
	}
	var detections []Detection
	result := text

	for _, secret := range f.cfg.ExplicitValues {
		if secret != "" && strings.Contains(result, secret) {
			detections = append(detections, Detection{PatternID: "explicit_secret", Field: field, Length: len(secret)})
			result = strings.ReplaceAll(result, secret, "[REDACTED]")
		}
	}

	result, d := f.applyPatterns(result, builtinPatterns, field)
	detections = append(detections, d...)

	result, d = f.applyPatterns(result, f.custom, field)
	detections = append(detections, d...)

	return result, detections
}

func (f *Filter) applyPatterns(text string, patterns []builtinPattern, field string) (string, []Detection) {
	var detections []Detection
	result := text
	for _, p := range patterns {
		matches := p.pattern.FindAllString(result, -1)
		if len(matches) == 0 {
			continue
		}
		anyLive := false
		for _, m := range matches {
			if !f.isAllowlisted(m) {
				anyLive = true
				detections = append(detections, Detection{PatternID: p.id, Field: field, Length: len(m)})
			}
		}
		if anyLive {
			result = p.pattern.ReplaceAllString(result, p.replacement)
		}
	}
	return result, detections
}

// FilterMetadata recursively filters a decoded JSON value (map/slice/
// string/other) and additionally blanket-redacts runtime.env_vars values
// whose key is in EnvVarNames (spec §4.10).
func (f *Filter) FilterMetadata(value any, path string) (any, []Detection) {
	var detections []Detection
	return f.filterValue(value, path, &detections), detections
}

func (f *Filter) filterValue(value any, path string, detections *[]Detection) any {
	switch v := value.(type) {
	case string:
		filtered, d := f.FilterString(v, path)
		*detections = append(*detections, d...)
		return filtered
	case map[string]any:
		out := make(map[string]any, len(v))
		envVars := path == "runtime.env_vars"
		for k, val := range v {
			childPath := joinPath(path, k)
			if envVars && f.isEnvVarName(k) {
				if s, ok := val.(string); ok && s != "" {
					out[k] = "[REDACTED]"
					*detections = append(*detections, Detection{PatternID: "env_var_name", Field: childPath, Length: len(s)})
					continue
				}
			}
			out[k] = f.filterValue(val, childPath, detections)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = f.filterValue(item, path, detections)
		}
		return out
	default:
		return v
	}
}

func (f *Filter) isEnvVarName(name string) bool {
	for _, n := range f.cfg.EnvVarNames {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

func joinPath(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}

// FilterTelemetry parses telemetry as JSON and recurses; if it isn't valid
// JSON, it's filtered as a plain string (spec §4.10).
func (f *Filter) FilterTelemetry(raw string) (string, []Detection) {
	if raw == "" {
		return raw, nil
	}
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return f.FilterString(raw, "telemetry")
	}
	filtered, detections := f.FilterMetadata(decoded, "telemetry")
	out, err := json.Marshal(filtered)
	if err != nil {
		return raw, detections
	}
	return string(out), detections
}

// DetectionIDs returns the sorted, de-duplicated list of pattern ids from a
// detection slice, for presenting to the user.
func DetectionIDs(detections []Detection) []string {
	seen := map[string]bool{}
	var ids []string
	for _, d := range detections {
		if !seen[d.PatternID] {
			seen[d.PatternID] = true
			ids = append(ids, d.PatternID)
		}
	}
	sort.Strings(ids)
	return ids
}
