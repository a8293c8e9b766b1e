package models

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	CaptionMaxLength  = 2000
	CategoryMaxLength = 200
	TagMaxLength      = 100
	MetadataKeyMax    = 200
)

// NormalizeCaptionText trims and collapses inner whitespace.
func NormalizeCaptionText(raw string) (string, error) {
	value := strings.Join(strings.Fields(raw), " ")
	if value == "" {
		return "", fmt.Errorf("caption text is required")
	}
	if utf8.RuneCountInString(value) > CaptionMaxLength {
		return "", fmt.Errorf("caption text exceeds %d characters", CaptionMaxLength)
	}
	return value, nil
}

// NormalizeCategoryName trims a category name.
func NormalizeCategoryName(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", fmt.Errorf("category name is required")
	}
	if utf8.RuneCountInString(value) > CategoryMaxLength {
		return "", fmt.Errorf("category name exceeds %d characters", CategoryMaxLength)
	}
	return value, nil
}

// NormalizeTags lowercases, trims and dedupes tags, keeping first-seen order.
func NormalizeTags(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, tag := range raw {
		normalized := strings.ToLower(strings.TrimSpace(tag))
		if normalized == "" {
			continue
		}
		if utf8.RuneCountInString(normalized) > TagMaxLength {
			return nil, fmt.Errorf("tag %q exceeds %d characters", normalized, TagMaxLength)
		}
		if strings.ContainsAny(normalized, ",\n\t") {
			return nil, fmt.Errorf("invalid tag: %q", normalized)
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out, nil
}

// NormalizeMetadataKey trims a metadata key.
func NormalizeMetadataKey(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", fmt.Errorf("metadata key is required")
	}
	if len(value) > MetadataKeyMax {
		return "", fmt.Errorf("metadata key exceeds %d bytes", MetadataKeyMax)
	}
	return value, nil
}

// NormalizeImagePath returns a cleaned absolute path.
func NormalizeImagePath(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", fmt.Errorf("image path is required")
	}
	abs, err := filepath.Abs(value)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}
