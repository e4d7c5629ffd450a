// Package text provides text preprocessing utilities for TTS applications.
//
// This package cleans request text before synthesis: markdown link markup is
// stripped, whitespace is normalized, and long passages are split into
// sentence-aligned chunks sized for the synthesis backend. Linguistic
// normalization (numbers, abbreviations) is left to the backend itself.
package text

import (
	"regexp"
	"strings"
)

// Regex patterns for text preprocessing.
const (
	inlineLinkRegexPattern     = `\[([^\]]+)\]\([^)]+\)`
	referenceLinkRegexPattern  = `\[([^\]]+)\]\[[^\]]*\]`
	linkDefinitionRegexPattern = `(?m)^\s*\[[^\]]+\]:\s*.*$`
	whitespaceRegexPattern     = `\s+`
	sentenceRegexPattern       = `(?s).+?(?:[.!?]+["')\]]*\s+|\n{2,}|$)`
)

// Replacement tokens for link markup.
const (
	linkTextReplacement = "$1"
	singleSpace         = " "
)

// Preprocessor provides text preprocessing functionality for TTS.
type Preprocessor struct {
	// Precompiled regex patterns for performance.
	inlineLinkPattern     *regexp.Regexp
	referenceLinkPattern  *regexp.Regexp
	linkDefinitionPattern *regexp.Regexp
	whitespacePattern     *regexp.Regexp
	sentencePattern       *regexp.Regexp
}

// NewPreprocessor creates a new text preprocessor with compiled patterns.
func NewPreprocessor() *Preprocessor {
	return &Preprocessor{
		inlineLinkPattern:     regexp.MustCompile(inlineLinkRegexPattern),
		referenceLinkPattern:  regexp.MustCompile(referenceLinkRegexPattern),
		linkDefinitionPattern: regexp.MustCompile(linkDefinitionRegexPattern),
		whitespacePattern:     regexp.MustCompile(whitespaceRegexPattern),
		sentencePattern:       regexp.MustCompile(sentenceRegexPattern),
	}
}

// PreprocessText strips markdown link markup and normalizes whitespace so the
// synthesis backend never reads URLs or link tables aloud.
func (p *Preprocessor) PreprocessText(text string) string {
	if text == "" {
		return text
	}

	cleanedText := p.stripMarkdownLinks(text)

	return p.normalizeWhitespace(cleanedText)
}

// stripMarkdownLinks replaces inline and reference-style links with their
// link text and drops link definition lines entirely.
func (p *Preprocessor) stripMarkdownLinks(text string) string {
	text = p.inlineLinkPattern.ReplaceAllString(text, linkTextReplacement)
	text = p.referenceLinkPattern.ReplaceAllString(text, linkTextReplacement)
	text = p.linkDefinitionPattern.ReplaceAllString(text, "")

	return text
}

// normalizeWhitespace collapses runs of whitespace into single spaces.
func (p *Preprocessor) normalizeWhitespace(text string) string {
	text = p.whitespacePattern.ReplaceAllString(text, singleSpace)

	return strings.TrimSpace(text)
}

// SplitChunks breaks text into chunks of at most maxChars characters,
// preferring sentence boundaries. Sentences longer than maxChars are wrapped
// at the last space before the limit. A non-positive maxChars returns the
// text as a single chunk.
func (p *Preprocessor) SplitChunks(text string, maxChars int) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	if maxChars <= 0 || len(trimmed) <= maxChars {
		return []string{trimmed}
	}

	sentences := p.sentencePattern.FindAllString(trimmed, -1)

	var (
		chunks  []string
		current strings.Builder
	)

	flush := func() {
		chunk := strings.TrimSpace(current.String())
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		current.Reset()
	}

	for _, sentence := range sentences {
		if current.Len()+len(sentence) > maxChars && current.Len() > 0 {
			flush()
		}

		if len(sentence) > maxChars {
			for _, part := range hardWrap(sentence, maxChars) {
				if current.Len()+len(part) > maxChars && current.Len() > 0 {
					flush()
				}

				current.WriteString(part)
				current.WriteString(singleSpace)
			}

			continue
		}

		current.WriteString(sentence)
	}

	flush()

	return chunks
}

// hardWrap splits an oversized sentence at the last space before each limit.
func hardWrap(s string, maxChars int) []string {
	var parts []string

	for len(s) > maxChars {
		cut := lastSpaceBefore(s, maxChars)
		parts = append(parts, strings.TrimSpace(s[:cut]))
		s = strings.TrimSpace(s[cut:])
	}

	if s != "" {
		parts = append(parts, s)
	}

	return parts
}

// lastSpaceBefore returns the index of the last space at or before idx, or
// idx itself when the text has no space to break on.
func lastSpaceBefore(s string, idx int) int {
	if idx >= len(s) {
		return len(s)
	}

	for i := idx; i > 0; i-- {
		if s[i] == ' ' || s[i] == '\n' || s[i] == '\t' {
			return i
		}
	}

	return idx
}
