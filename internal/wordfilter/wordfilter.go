// Package wordfilter checks message text against a banned-term set.
package wordfilter

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Mode selects how a term is matched against text.
type Mode string

const (
	// ModeContains matches the term anywhere in the text.
	ModeContains Mode = "contains"
	// ModeExact matches the term only as whole words.
	ModeExact Mode = "exact"
	// ModeRegex treats the term as a case-insensitive regular expression.
	ModeRegex Mode = "regex"
	// ModeFuzzy compares each word, and each pair of adjacent words, with the
	// term and matches when the similarity reaches the threshold.
	ModeFuzzy Mode = "fuzzy"
)

// DefaultFuzzyThreshold is the similarity, 0-100, used when a fuzzy rule sets none.
const DefaultFuzzyThreshold = 80

// Config is the resolved term configuration. It is copied at construction.
type Config struct {
	// Terms are matched with ModeContains.
	Terms []string
	Rules []Rule
	// Allow lists words that may contain any banned term, e.g. "scunthorpe".
	Allow []string
	// MinLength is the shortest text, in characters, that is checked at all.
	MinLength int
	Ignore    Ignore
}

// Rule is one banned term with its own scan options.
type Rule struct {
	Term      string
	Mode      Mode
	Threshold int
	// MinLength overrides Config.MinLength for this rule when positive.
	MinLength int
	// Allow lists words that may contain this term only.
	Allow []string
}

// Ignore lists authors, conversations and guilds that are never filtered.
type Ignore struct {
	Users    []string
	Channels []string
	Guilds   []string
}

// Verdict is the result of a check. Term is the matched banned term, lowercased.
type Verdict struct {
	Flagged bool   `json:"flagged"`
	Term    string `json:"term,omitempty"`
}

// Filter is immutable and safe for concurrent use.
type Filter struct {
	rules     []rule
	allow     []string
	minLength int
	users     map[string]struct{}
	channels  map[string]struct{}
	guilds    map[string]struct{}
}

type rule struct {
	term      string
	mode      Mode
	re        *regexp.Regexp
	threshold int
	minLength int
	allow     []string
}

// New builds a filter. Terms are lowercased, deduplicated and checked in
// sorted order so the reported term is stable for a given text. Invalid
// modes and patterns are reported here, never at check time.
func New(cfg Config) (*Filter, error) {
	f := &Filter{
		allow:     normalizeTerms(cfg.Allow),
		minLength: cfg.MinLength,
		users:     idSet(cfg.Ignore.Users),
		channels:  idSet(cfg.Ignore.Channels),
		guilds:    idSet(cfg.Ignore.Guilds),
	}

	seen := map[string]struct{}{}
	add := func(r rule) {
		id := string(r.mode) + "\x00" + r.term
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		f.rules = append(f.rules, r)
	}
	for _, term := range normalizeTerms(cfg.Terms) {
		add(rule{term: term, mode: ModeContains})
	}
	for _, raw := range cfg.Rules {
		r, err := compileRule(raw)
		if err != nil {
			return nil, err
		}
		if r.term != "" {
			add(r)
		}
	}
	sort.SliceStable(f.rules, func(i, j int) bool {
		if f.rules[i].term != f.rules[j].term {
			return f.rules[i].term < f.rules[j].term
		}
		return f.rules[i].mode < f.rules[j].mode
	})
	return f, nil
}

func compileRule(raw Rule) (rule, error) {
	r := rule{
		term:      strings.ToLower(strings.TrimSpace(raw.Term)),
		mode:      Mode(strings.ToLower(strings.TrimSpace(string(raw.Mode)))),
		threshold: raw.Threshold,
		minLength: raw.MinLength,
		allow:     normalizeTerms(raw.Allow),
	}
	if r.mode == "" {
		r.mode = ModeContains
	}
	switch r.mode {
	case ModeContains, ModeExact:
	case ModeRegex:
		re, err := regexp.Compile("(?i)" + strings.TrimSpace(raw.Term))
		if err != nil {
			return rule{}, fmt.Errorf("wordfilter: term %q: %w", raw.Term, err)
		}
		r.re = re
	case ModeFuzzy:
		if r.threshold <= 0 {
			r.threshold = DefaultFuzzyThreshold
		}
		if r.threshold > 100 {
			return rule{}, fmt.Errorf("wordfilter: term %q: threshold %d is above 100", raw.Term, r.threshold)
		}
	default:
		return rule{}, fmt.Errorf("wordfilter: term %q: unknown mode %q", raw.Term, raw.Mode)
	}
	return r, nil
}

func normalizeTerms(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, term := range raw {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}
	sort.Strings(out)
	return out
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}

// Terms returns the banned terms in check order.
func (f *Filter) Terms() []string {
	out := make([]string, 0, len(f.rules))
	for _, r := range f.rules {
		out = append(out, r.term)
	}
	return out
}

// Ignores reports whether messages by userID, in channelID or in guildID
// are exempt from filtering. Empty ids never match.
func (f *Filter) Ignores(userID, channelID, guildID string) bool {
	if f == nil {
		return false
	}
	in := func(set map[string]struct{}, id string) bool {
		_, ok := set[id]
		return id != "" && ok
	}
	return in(f.users, userID) || in(f.channels, channelID) || in(f.guilds, guildID)
}

// Check reports the first banned term found in text. Matching is
// case-insensitive; a match lying entirely inside an occurrence of an
// allowed word does not count.
func (f *Filter) Check(text string) Verdict {
	if f == nil || len(f.rules) == 0 {
		return Verdict{}
	}
	length := utf8.RuneCountInString(strings.TrimSpace(text))
	lowered := strings.ToLower(text)
	var allowed []span
	if len(f.allow) > 0 {
		allowed = occurrences(lowered, f.allow)
	}
	for _, r := range f.rules {
		minLength := f.minLength
		if r.minLength > 0 {
			minLength = r.minLength
		}
		if length < minLength {
			continue
		}
		spans := allowed
		if len(r.allow) > 0 {
			spans = append(occurrences(lowered, r.allow), allowed...)
		}
		for _, m := range r.matches(lowered) {
			if !coveredBy(m, spans) {
				return Verdict{Flagged: true, Term: r.term}
			}
		}
	}
	return Verdict{}
}

type span struct {
	start, end int
}

func (s span) covers(o span) bool {
	return s.start <= o.start && o.end <= s.end
}

func coveredBy(m span, spans []span) bool {
	for _, s := range spans {
		if s.covers(m) {
			return true
		}
	}
	return false
}

// matches returns the byte spans of text matched by r. text is lowercased.
func (r rule) matches(text string) []span {
	switch r.mode {
	case ModeExact:
		var out []span
		for _, s := range occurrences(text, []string{r.term}) {
			if wordBoundary(text, s) {
				out = append(out, s)
			}
		}
		return out
	case ModeRegex:
		var out []span
		for _, loc := range r.re.FindAllStringIndex(text, -1) {
			if loc[1] > loc[0] {
				out = append(out, span{start: loc[0], end: loc[1]})
			}
		}
		return out
	case ModeFuzzy:
		var out []span
		ws := words(text)
		for i, w := range ws {
			if similarity(text[w.start:w.end], r.term) >= r.threshold {
				out = append(out, w)
			}
			if i > 0 {
				pair := span{start: ws[i-1].start, end: w.end}
				if similarity(text[ws[i-1].start:ws[i-1].end]+" "+text[w.start:w.end], r.term) >= r.threshold {
					out = append(out, pair)
				}
			}
		}
		return out
	default:
		return occurrences(text, []string{r.term})
	}
}

func occurrences(text string, words []string) []span {
	var spans []span
	for _, word := range words {
		for offset := 0; offset < len(text); {
			idx := strings.Index(text[offset:], word)
			if idx < 0 {
				break
			}
			start := offset + idx
			spans = append(spans, span{start: start, end: start + len(word)})
			offset = start + 1
		}
	}
	return spans
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r) || r == '_'
}

func wordBoundary(text string, s span) bool {
	if s.start > 0 {
		if r, _ := utf8.DecodeLastRuneInString(text[:s.start]); isWordRune(r) {
			return false
		}
	}
	if s.end < len(text) {
		if r, _ := utf8.DecodeRuneInString(text[s.end:]); isWordRune(r) {
			return false
		}
	}
	return true
}

// words splits text on white space, keeping byte offsets.
func words(text string) []span {
	var out []span
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				out = append(out, span{start: start, end: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, span{start: start, end: len(text)})
	}
	return out
}

// similarity is 100 for equal strings and falls with the edit distance
// relative to the longer string.
func similarity(a, b string) int {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 100
	}
	return 100 * (longest - levenshtein.ComputeDistance(a, b)) / longest
}
