// Package moderation censors configured words in inbound chat bodies before
// they are republished to consumers. Matching is resilient to spacing,
// punctuation, and common character substitutions.
package moderation

import (
	"bufio"
	"embed"
	"io/fs"
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"

	"partyline/errors"
)

//go:embed wordlists/*.txt
var wordlists embed.FS

// Moderator replaces censored spans with a replacement character while
// preserving the original length and spacing.
type Moderator struct {
	matcher     *goahocorasick.Machine
	replacement rune
}

// NewModerator builds the Aho-Corasick automaton over the normalized forms
// of the censored words.
func NewModerator(words []string, replacement rune) (*Moderator, error) {
	patterns := make([][]rune, 0, len(words))
	for _, word := range words {
		normalized, _ := normalize(word)
		if len(normalized) == 0 {
			continue
		}
		patterns = append(patterns, normalized)
	}
	if len(patterns) == 0 {
		return nil, errors.ErrEmptyWords
	}

	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return nil, err
	}
	return &Moderator{matcher: machine, replacement: replacement}, nil
}

// NewDefaultModerator loads the embedded wordlists.
func NewDefaultModerator(replacement rune) (*Moderator, error) {
	words, err := EmbeddedWords()
	if err != nil {
		return nil, err
	}
	return NewModerator(words, replacement)
}

// EmbeddedWords returns the union of all embedded wordlists.
func EmbeddedWords() ([]string, error) {
	var words []string
	err := fs.WalkDir(wordlists, "wordlists", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		file, err := wordlists.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			word := strings.TrimSpace(scanner.Text())
			if word == "" || strings.HasPrefix(word, "#") {
				continue
			}
			words = append(words, word)
		}
		return scanner.Err()
	})
	return words, err
}

// Censor replaces every censored span of the original text with the
// replacement character. The original rune positions are tracked through
// normalization so only the offending characters are masked.
func (m *Moderator) Censor(original string) string {
	normalized, positions := normalize(original)
	if len(normalized) == 0 {
		return original
	}

	spans := m.matcher.MultiPatternSearch(normalized, false)
	if len(spans) == 0 {
		return original
	}

	masked := []rune(original)
	for _, span := range spans {
		start := span.Pos
		end := start + len(span.Word)
		if start < 0 || end > len(positions) {
			continue
		}
		for i := positions[start]; i <= positions[end-1]; i++ {
			masked[i] = m.replacement
		}
	}
	return string(masked)
}

// normalize lowercases, folds common substitutions, and strips punctuation
// and spacing, returning the searchable text plus a map back to the
// original rune index of every kept rune.
func normalize(input string) ([]rune, []int) {
	runes := []rune(input)
	normalized := make([]rune, 0, len(runes))
	positions := make([]int, 0, len(runes))

	for i, r := range runes {
		folded := foldRune(r)
		if unicode.IsPunct(folded) || unicode.IsSpace(folded) || unicode.IsSymbol(folded) {
			continue
		}
		normalized = append(normalized, unicode.ToLower(folded))
		positions = append(positions, i)
	}
	return normalized, positions
}

// foldRune maps common evasion substitutions back to their letters.
func foldRune(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}
