package store

import (
	"regexp"
	"strings"
)

// TWS identifier patterns. These are shared by the BM25 tokenizer, the
// conversation-memory entity scanner, and the intent classifier so that
// a job name or return code is recognized the same way everywhere.
var (
	// jobPattern matches TWS job names such as AWSBH001.
	jobPattern = regexp.MustCompile(`(?i)\bAWSBH\d+\b`)

	// messagePattern matches TWS message identifiers such as EQQQ501E.
	messagePattern = regexp.MustCompile(`(?i)\bEQQ\w*\d+\w*\b`)

	// abendPattern matches abnormal-end codes: ABEND, ABENDS0C4, ...
	abendPattern = regexp.MustCompile(`(?i)\bABEND\w*`)

	// rcPattern matches return codes in all the ways operators write
	// them: RC=8, rc 8, RC8.
	rcPattern = regexp.MustCompile(`(?i)\bRC\s*=?\s*(\d+)\b`)

	// workstationPattern matches workstation names: CPU1, FTA_LONDON, WSPROD2.
	workstationPattern = regexp.MustCompile(`\b(?:CPU|FTA|XA|WS)[A-Z0-9_]{1,30}\b`)

	// wordPattern splits whatever is left on non-alphanumerics.
	wordPattern = regexp.MustCompile(`[a-zA-Z0-9]+`)
)

// minTokenLength drops noise tokens ("a", "i") from the index.
const minTokenLength = 2

// NormalizeRC maps any return-code spelling to its canonical token
// family. "RC=8", "rc 8", and "RC8" all yield ("rc_8", "rc8").
func NormalizeRC(number string) (canonical, compact string) {
	return "rc_" + number, "rc" + number
}

// Tokenize splits text with TWS-aware rules. Identifiers matching the
// TWS patterns are preserved as single lowercase tokens; return codes
// are normalized into the rc_N family; remaining text is lowercased
// and split on non-alphanumerics.
func Tokenize(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	type span struct{ start, end int }
	var spans []span
	var tokens []string

	claim := func(loc []int, toks ...string) {
		spans = append(spans, span{loc[0], loc[1]})
		tokens = append(tokens, toks...)
	}

	// Return codes first: the rc pattern can span whitespace that the
	// word splitter would otherwise break apart.
	for _, loc := range rcPattern.FindAllStringSubmatchIndex(text, -1) {
		canonical, compact := NormalizeRC(text[loc[2]:loc[3]])
		claim(loc[:2], canonical, compact)
	}
	for _, loc := range jobPattern.FindAllStringIndex(text, -1) {
		claim(loc, strings.ToLower(text[loc[0]:loc[1]]))
	}
	for _, loc := range messagePattern.FindAllStringIndex(text, -1) {
		claim(loc, strings.ToLower(text[loc[0]:loc[1]]))
	}
	for _, loc := range abendPattern.FindAllStringIndex(text, -1) {
		claim(loc, strings.ToLower(text[loc[0]:loc[1]]))
	}
	for _, loc := range workstationPattern.FindAllStringIndex(text, -1) {
		claimed := false
		for _, s := range spans {
			if loc[0] < s.end && loc[1] > s.start {
				claimed = true
				break
			}
		}
		if !claimed {
			claim(loc, strings.ToLower(text[loc[0]:loc[1]]))
		}
	}

	// Tokenize the text outside the claimed spans.
	for _, loc := range wordPattern.FindAllStringIndex(text, -1) {
		inside := false
		for _, s := range spans {
			if loc[0] >= s.start && loc[1] <= s.end {
				inside = true
				break
			}
		}
		if inside {
			continue
		}
		word := strings.ToLower(text[loc[0]:loc[1]])
		if len(word) >= minTokenLength {
			tokens = append(tokens, word)
		}
	}

	return tokens
}

// Entities holds the TWS identifiers found in a piece of text, in
// order of appearance. Job names and workstations keep their
// canonical uppercase form; error codes are normalized.
type Entities struct {
	Jobs         []string
	Codes        []string
	Workstations []string
}

// IsEmpty reports whether no entity of any kind was found.
func (e Entities) IsEmpty() bool {
	return len(e.Jobs) == 0 && len(e.Codes) == 0 && len(e.Workstations) == 0
}

// ExtractEntities scans text for TWS identifiers.
func ExtractEntities(text string) Entities {
	var e Entities
	seen := make(map[string]bool)

	add := func(dst *[]string, v string) {
		if v == "" || seen[v] {
			return
		}
		seen[v] = true
		*dst = append(*dst, v)
	}

	for _, m := range jobPattern.FindAllString(text, -1) {
		add(&e.Jobs, strings.ToUpper(m))
	}
	for _, m := range rcPattern.FindAllStringSubmatch(text, -1) {
		canonical, _ := NormalizeRC(m[1])
		add(&e.Codes, canonical)
	}
	for _, m := range abendPattern.FindAllString(text, -1) {
		add(&e.Codes, strings.ToLower(m))
	}
	for _, m := range messagePattern.FindAllString(text, -1) {
		add(&e.Codes, strings.ToUpper(m))
	}
	for _, m := range workstationPattern.FindAllString(text, -1) {
		// Job names can collide with the workstation prefix set; skip
		// anything already recognized as a job.
		if jobPattern.MatchString(m) {
			continue
		}
		add(&e.Workstations, strings.ToUpper(m))
	}

	return e
}

// HasTWSIdentifier reports whether the text contains any TWS
// identifier. The query classifier keys EXACT_MATCH off this.
func HasTWSIdentifier(text string) bool {
	return jobPattern.MatchString(text) ||
		rcPattern.MatchString(text) ||
		abendPattern.MatchString(text) ||
		messagePattern.MatchString(text) ||
		workstationPattern.MatchString(text)
}
