// Package structurer derives a structured artifact from raw model output:
// a short title, the leading summary, heuristic sections, the first fenced
// code block, and a preview. Structuring is regex-driven text slicing, not
// semantic understanding, and it is deterministic and total: any well-formed
// string input produces an artifact without failing.
package structurer

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"clarichat/internal/models"
)

const (
	titleLimit   = 120
	summaryLimit = 300
	previewLimit = 120
	maxBullets   = 10
	maxSections  = 3
	maxFragments = 4

	ellipsis = "..."

	// MetaModelTag is recorded in the artifact's metadata.
	MetaModelTag = "gemini"
)

var (
	firstSentenceRe = regexp.MustCompile(`^(.*?[.!?])\s`)
	paragraphRe     = regexp.MustCompile(`\n\s*\n`)
	bulletLineRe    = regexp.MustCompile(`(?m)^[-*]\s.+$|^\d+\.\s.+$`)
	bulletMarkRe    = regexp.MustCompile(`^[-*]\s?`)
	numberMarkRe    = regexp.MustCompile(`^\d+\.\s?`)
	sentenceSplitRe = regexp.MustCompile(`[.!?]\s+`)
	codeFenceRe     = regexp.MustCompile("(?s)```(\\w+)?\\n(.*?)```")
)

// Structure parses raw reply text into a StructuredReply. It returns nil for
// blank input and never fails otherwise.
func Structure(raw string) *models.StructuredReply {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	title := deriveTitle(raw)
	paragraphs := splitParagraphs(raw)

	summary := raw
	if len(paragraphs) > 0 {
		summary = paragraphs[0]
	}
	summary = truncate(summary, summaryLimit)

	return &models.StructuredReply{
		Text:     raw,
		Title:    title,
		Summary:  summary,
		Sections: deriveSections(raw, paragraphs),
		Code:     ExtractFirstCodeBlock(raw),
		Preview:  preview(summary),
		Meta: models.StructureMeta{
			Model: MetaModelTag,
			Time:  time.Now().UTC(),
		},
	}
}

// ExtractFirstCodeBlock returns the first fenced code block in the text, or
// nil when none is present. An untagged fence defaults to language "text".
func ExtractFirstCodeBlock(text string) *models.CodeBlock {
	m := codeFenceRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	language := m[1]
	if language == "" {
		language = "text"
	}
	return &models.CodeBlock{Language: language, Value: strings.TrimSpace(m[2])}
}

// deriveTitle takes the first block (up to a blank line), cuts it at the
// first sentence terminator followed by whitespace, and caps the result.
func deriveTitle(text string) string {
	firstBlock := text
	if idx := strings.Index(text, "\n\n"); idx >= 0 {
		firstBlock = text[:idx]
	}
	title := firstBlock
	if m := firstSentenceRe.FindStringSubmatch(firstBlock); m != nil {
		title = m[1]
	}
	return truncate(title, titleLimit)
}

func splitParagraphs(text string) []string {
	parts := paragraphRe.Split(text, -1)
	paragraphs := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}
	return paragraphs
}

// deriveSections prefers detected bullet or numbered lines ("Key points");
// absent those, it slices the leading paragraphs into sentence-like fragments.
func deriveSections(text string, paragraphs []string) []models.Section {
	if bullets := bulletLineRe.FindAllString(text, -1); len(bullets) > 0 {
		items := make([]string, 0, len(bullets))
		for _, b := range bullets {
			item := bulletMarkRe.ReplaceAllString(b, "")
			item = numberMarkRe.ReplaceAllString(item, "")
			items = append(items, strings.TrimSpace(item))
		}
		if len(items) > maxBullets {
			items = items[:maxBullets]
		}
		return []models.Section{{Heading: "Key points", Items: items}}
	}

	n := len(paragraphs)
	if n > maxSections {
		n = maxSections
	}
	sections := make([]models.Section, 0, n)
	for i := 0; i < n; i++ {
		heading := "Overview"
		if i > 0 {
			heading = fmt.Sprintf("Detail %d", i)
		}
		sections = append(sections, models.Section{
			Heading: heading,
			Items:   fragments(paragraphs[i]),
		})
	}
	return sections
}

func fragments(paragraph string) []string {
	parts := sentenceSplitRe.Split(paragraph, -1)
	if len(parts) > maxFragments {
		parts = parts[:maxFragments]
	}
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

func preview(summary string) string {
	if len([]rune(summary)) > previewLimit {
		return truncate(summary, previewLimit) + ellipsis
	}
	return summary
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
