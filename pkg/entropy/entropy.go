// Package entropy implements the randomly-generated-filename heuristic
// used by the file security policy. The signal is Shannon entropy of the
// filename stem, refined by a dictionary check and a digit-ratio check
// in the medium band.
package entropy

import (
	"math"
	"strings"
	"unicode"
)

const (
	// minStemLength is the shortest stem the heuristic will judge.
	minStemLength = 5

	// highThreshold marks hash-like names; nothing overrides this band.
	highThreshold = 4.5

	// mediumThreshold is the lower bound of the band in which the
	// dictionary and digit-ratio checks apply.
	mediumThreshold = 2.5

	// maxDigitRatio is the digit share above which a medium-entropy
	// stem with no dictionary word is flagged.
	maxDigitRatio = 0.2
)

// dictionary holds common CMS terms; a stem containing any of them is
// treated as named by a human, regardless of its entropy in the medium
// band.
var dictionary = []string{
	"admin", "ajax", "archive", "attachment", "author", "backup",
	"block", "cache", "category", "class", "comment", "config",
	"content", "cron", "custom", "dashboard", "editor", "feed",
	"footer", "form", "function", "gallery", "header", "helper",
	"home", "image", "include", "index", "load", "login",
	"media", "menu", "meta", "module", "nav", "option",
	"page", "plugin", "post", "profile", "query", "register",
	"search", "settings", "shortcode", "sidebar", "single", "sitemap",
	"style", "template", "theme", "thumbnail", "update", "upload",
	"user", "widget", "wp",
}

// Shannon computes the Shannon entropy of s in bits per character. A
// single repeated character yields 0; a string of all-unique characters
// approaches log2(len(s)).
func Shannon(s string) float64 {
	if s == "" {
		return 0
	}

	counts := make(map[rune]int)
	total := 0
	for _, r := range s {
		counts[r]++
		total++
	}

	entropy := 0.0
	n := float64(total)
	for _, c := range counts {
		p := float64(c) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// Suspicious reports whether the filename stem looks machine-generated.
// The extension must already be stripped by the caller.
func Suspicious(stem string) bool {
	if len(stem) < minStemLength {
		return false
	}

	e := Shannon(stem)

	if e > highThreshold {
		return true
	}

	if e <= mediumThreshold {
		return false
	}

	// Medium band: a dictionary word overrides the entropy signal.
	lower := strings.ToLower(stem)
	for _, word := range dictionary {
		if strings.Contains(lower, word) {
			return false
		}
	}

	return digitRatio(stem) > maxDigitRatio
}

// digitRatio returns the share of digit characters in s.
func digitRatio(s string) float64 {
	if s == "" {
		return 0
	}
	digits := 0
	total := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			digits++
		}
		total++
	}
	return float64(digits) / float64(total)
}
