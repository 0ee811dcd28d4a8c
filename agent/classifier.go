package agent

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// QueryKind is the routing decision for an incoming question.
type QueryKind int

const (
	// KindConversational questions are answered directly, no retrieval.
	KindConversational QueryKind = iota
	// KindDomain questions go through retrieval and grounding.
	KindDomain
)

func (k QueryKind) String() string {
	if k == KindConversational {
		return "conversational"
	}
	return "domain"
}

// DefaultMaxShortWords is the word count at or below which a question
// without a question mark and without domain keywords is treated as
// smalltalk.
const DefaultMaxShortWords = 2

// defaultGreetingPrefixes match greetings and pleasantries. A prefix
// matches only up to a word boundary, so "пока" does not capture
// "показать".
var defaultGreetingPrefixes = []string{
	"привет",
	"приветствую",
	"здравствуй",
	"здравствуйте",
	"здраствуй",
	"здраствуйте",
	"добрый день",
	"добрый вечер",
	"доброе утро",
	"доброй ночи",
	"спасибо",
	"благодарю",
	"пока",
	"до свидания",
	"как дела",
	"как ты",
	"кто ты",
	"что ты умеешь",
	"помощь",
	"hello",
	"hi",
	"hey",
	"thanks",
	"thank you",
	"good morning",
}

// defaultDomainStems are lowercase substrings whose presence marks a
// question as domain-specific regardless of its length.
var defaultDomainStems = []string{
	"договор",
	"контракт",
	"закон",
	"кодекс",
	"стать",
	"суд",
	"прав",
	"юрид",
	"иск",
	"налог",
	"труд",
	"увол",
	"аренд",
	"сделк",
	"документ",
	"обязательств",
	"ответственност",
	"претензи",
	"штраф",
	"неустойк",
	"регистрац",
	"лиценз",
	"банкрот",
	"наследств",
	"гк рф",
	"тк рф",
	"ук рф",
}

// ClassifierConfig holds the pattern tables the router matches against.
// The zero value gets the built-in tables. All of this is heuristic;
// the tables and the short-question cutoff are expected to be tuned
// per deployment.
type ClassifierConfig struct {
	GreetingPrefixes []string
	DomainStems      []string
	MaxShortWords    int
}

// DefaultClassifierConfig returns the built-in pattern tables.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		GreetingPrefixes: defaultGreetingPrefixes,
		DomainStems:      defaultDomainStems,
		MaxShortWords:    DefaultMaxShortWords,
	}
}

func (c ClassifierConfig) withDefaults() ClassifierConfig {
	if len(c.GreetingPrefixes) == 0 {
		c.GreetingPrefixes = defaultGreetingPrefixes
	}
	if len(c.DomainStems) == 0 {
		c.DomainStems = defaultDomainStems
	}
	if c.MaxShortWords <= 0 {
		c.MaxShortWords = DefaultMaxShortWords
	}
	return c
}

// Classify routes a question. A question is conversational when it
// starts with a greeting pattern, or when it is short, carries no
// question mark, and mentions no domain keyword. Everything else is a
// domain question. The function is pure; identical input always gives
// an identical decision.
func Classify(question string, cfg ClassifierConfig) QueryKind {
	cfg = cfg.withDefaults()
	normalized := strings.ToLower(strings.TrimSpace(question))
	if normalized == "" {
		return KindConversational
	}

	for _, prefix := range cfg.GreetingPrefixes {
		if hasGreetingPrefix(normalized, prefix) {
			return KindConversational
		}
	}

	if containsDomainStem(normalized, cfg.DomainStems) {
		return KindDomain
	}

	if len(strings.Fields(normalized)) <= cfg.MaxShortWords &&
		!strings.Contains(normalized, "?") {
		return KindConversational
	}
	return KindDomain
}

// hasGreetingPrefix reports whether the question starts with the prefix
// as a whole word. "hi" matches "hi there" and "hi!", not "history".
func hasGreetingPrefix(normalized, prefix string) bool {
	if !strings.HasPrefix(normalized, prefix) {
		return false
	}
	rest := normalized[len(prefix):]
	if rest == "" {
		return true
	}
	r, _ := utf8.DecodeRuneInString(rest)
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func containsDomainStem(normalized string, stems []string) bool {
	for _, stem := range stems {
		if strings.Contains(normalized, stem) {
			return true
		}
	}
	return false
}
