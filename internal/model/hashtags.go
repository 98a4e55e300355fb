package model

import (
	"strings"
	"unicode"
)

// Hashtags returns the distinct hashtags in text, lowercased and without the
// leading '#', in order of first appearance.
func Hashtags(text string) []string {
	var tags []string
	seen := make(map[string]bool)
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '#' {
			continue
		}
		if i > 0 && isTagRune(runes[i-1]) {
			continue // "a#b" is not a tag
		}
		j := i + 1
		for j < len(runes) && isTagRune(runes[j]) {
			j++
		}
		if j > i+1 {
			tag := strings.ToLower(string(runes[i+1 : j]))
			if !seen[tag] {
				seen[tag] = true
				tags = append(tags, tag)
			}
		}
		i = j - 1
	}
	return tags
}

// NormalizeHashtag lowercases tag and ensures a single leading '#'.
func NormalizeHashtag(tag string) string {
	tag = strings.TrimLeft(strings.TrimSpace(tag), "#")
	if tag == "" {
		return ""
	}
	return "#" + strings.ToLower(tag)
}

func isTagRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
