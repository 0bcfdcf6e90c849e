package signature

// DefaultDefinitions returns the built-in signature set. The order
// matters: scanners report the first matching signature, so critical
// payload patterns are declared before the broader obfuscation ones.
// Operators can replace or extend this set via the signatures file.
func DefaultDefinitions() []Definition {
	defs := make([]Definition, 0, len(maliciousDefinitions)+len(obfuscationDefinitions)+len(databaseDefinitions))
	defs = append(defs, maliciousDefinitions...)
	defs = append(defs, obfuscationDefinitions...)
	defs = append(defs, databaseDefinitions...)
	return defs
}

// maliciousDefinitions are direct malicious code patterns.
var maliciousDefinitions = []Definition{
	{
		Pattern:     `eval\s*\(\s*base64_decode\s*\(`,
		Severity:    SeverityCritical,
		Description: "eval of base64-decoded payload",
		Kind:        KindMalicious,
	},
	{
		Pattern:     `eval\s*\(\s*gzinflate\s*\(`,
		Severity:    SeverityCritical,
		Description: "eval of gzinflate-compressed payload",
		Kind:        KindMalicious,
	},
	{
		Pattern:     `eval\s*\(\s*str_rot13\s*\(`,
		Severity:    SeverityCritical,
		Description: "eval of rot13-encoded payload",
		Kind:        KindMalicious,
	},
	{
		Pattern:     `assert\s*\(\s*\$_(GET|POST|REQUEST|COOKIE)`,
		Severity:    SeverityCritical,
		Description: "assert over request superglobal",
		Kind:        KindMalicious,
	},
	{
		Pattern:     `(system|exec|shell_exec|passthru|popen|proc_open)\s*\(\s*\$_(GET|POST|REQUEST|COOKIE)`,
		Severity:    SeverityCritical,
		Description: "command execution fed from request input",
		Kind:        KindMalicious,
	},
	{
		Pattern:     `preg_replace\s*\(\s*['"][^'"]*\/[a-z]*e[a-z]*['"]`,
		Severity:    SeverityCritical,
		Description: "preg_replace with /e modifier (code execution)",
		Kind:        KindMalicious,
	},
	{
		Pattern:     `create_function\s*\(\s*['"]`,
		Severity:    SeverityHigh,
		Description: "dynamic function creation",
		Kind:        KindMalicious,
	},
	{
		Pattern:     `\$\w+\s*=\s*\$_(GET|POST|REQUEST|COOKIE)[^;]*;\s*eval\s*\(`,
		Severity:    SeverityCritical,
		Description: "request input assigned then evaled",
		Kind:        KindMalicious,
	},
	{
		Pattern:     `move_uploaded_file\s*\([^)]*\$_(GET|POST|REQUEST)`,
		Severity:    SeverityHigh,
		Description: "uploaded file placed at attacker-controlled path",
		Kind:        KindMalicious,
	},
	{
		Pattern:     `file_put_contents\s*\([^)]*\$_(GET|POST|REQUEST)`,
		Severity:    SeverityHigh,
		Description: "file write fed from request input",
		Kind:        KindMalicious,
	},
}

// obfuscationDefinitions are common payload-hiding techniques.
var obfuscationDefinitions = []Definition{
	{
		Pattern:     `(\\x[0-9a-fA-F]{2}){8,}`,
		Severity:    SeverityHigh,
		Description: "long hex-escaped string",
		Kind:        KindObfuscation,
	},
	{
		Pattern:     `chr\s*\(\s*\d+\s*\)\s*(\.\s*chr\s*\(\s*\d+\s*\)\s*){5,}`,
		Severity:    SeverityHigh,
		Description: "string assembled from chr() calls",
		Kind:        KindObfuscation,
	},
	{
		Pattern:     `base64_decode\s*\(\s*strrev\s*\(`,
		Severity:    SeverityHigh,
		Description: "reversed base64 payload",
		Kind:        KindObfuscation,
	},
	{
		Pattern:     `\$GLOBALS\s*\[\s*['"][^'"]{1,4}['"]\s*\]\s*\(`,
		Severity:    SeverityHigh,
		Description: "call through short GLOBALS alias",
		Kind:        KindObfuscation,
	},
	{
		Pattern:     `goto\s+[a-zA-Z_]\w*;\s*[a-zA-Z_]\w*:`,
		Severity:    SeverityMedium,
		Description: "goto-based control flow obfuscation",
		Kind:        KindObfuscation,
	},
	{
		Pattern:     `extract\s*\(\s*\$_(GET|POST|REQUEST|COOKIE)`,
		Severity:    SeverityMedium,
		Description: "extract over request superglobal",
		Kind:        KindObfuscation,
	},
	{
		Pattern:     `error_reporting\s*\(\s*0\s*\)\s*;\s*@?\s*(ini_set|set_time_limit)`,
		Severity:    SeverityMedium,
		Description: "error suppression preamble typical of droppers",
		Kind:        KindObfuscation,
	},
}

// databaseDefinitions target content injected into database rows.
var databaseDefinitions = []Definition{
	{
		Pattern:     `<script[^>]*src\s*=\s*["']https?://[^"']*\.(ru|cn|tk)/`,
		Severity:    SeverityCritical,
		Description: "script tag loading from suspicious TLD",
		Kind:        KindDatabase,
	},
	{
		Pattern:     `<iframe[^>]*(display\s*:\s*none|visibility\s*:\s*hidden|width\s*=\s*["']?0)`,
		Severity:    SeverityCritical,
		Description: "hidden iframe injection",
		Kind:        KindDatabase,
	},
	{
		Pattern:     `document\.write\s*\(\s*unescape\s*\(`,
		Severity:    SeverityHigh,
		Description: "document.write of unescaped payload",
		Kind:        KindDatabase,
	},
	{
		Pattern:     `eval\s*\(\s*atob\s*\(`,
		Severity:    SeverityCritical,
		Description: "javascript eval of base64 payload",
		Kind:        KindDatabase,
	},
	{
		Pattern:     `String\.fromCharCode\s*\(\s*\d+\s*,\s*\d+\s*,\s*\d+`,
		Severity:    SeverityHigh,
		Description: "string assembled from character codes",
		Kind:        KindDatabase,
	},
	{
		Pattern:     `base64_decode\s*\(`,
		Severity:    SeverityMedium,
		Description: "base64 decode in stored content",
		Kind:        KindDatabase,
	},
}
