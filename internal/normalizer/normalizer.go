// Package normalizer provides pure functions that convert raw catalog data
// and product text into canonical values. No I/O, fully deterministic.
package normalizer

import (
	"regexp"
	"strings"
)

// PriceSentinel marks an unset slot in the catalog's price-history arrays.
const PriceSentinel = -1

// ExtractLatestPrice returns the most recent price from a catalog time-series
// array. The series is a flat interleaved array of alternating
// (timestamp, value) pairs, so values live at odd indices; PriceSentinel marks
// an unset slot. Scanning from the end, the first non-sentinel value slot
// wins. ok is false when the series is empty or every value slot is sentinel.
func ExtractLatestPrice(series []int) (price int, ok bool) {
	for i := len(series) - 1; i >= 0; i-- {
		if i%2 != 1 {
			continue
		}
		if series[i] != PriceSentinel {
			return series[i], true
		}
	}
	return 0, false
}

// punctuation collapsed to spaces before comparison
var punctuationRe = regexp.MustCompile(`[()\-/・、。，]`)
var whitespaceRe = regexp.MustCompile(`\s+`)

// NormalizeTitle canonicalizes product text for comparison: full-width
// alphanumerics folded to half-width, lowercased, punctuation and whitespace
// runs collapsed to single spaces, trimmed. Never used for display.
func NormalizeTitle(s string) string {
	if s == "" {
		return ""
	}

	folded := strings.Map(foldFullWidth, s)
	folded = strings.ToLower(folded)
	folded = punctuationRe.ReplaceAllString(folded, " ")
	folded = whitespaceRe.ReplaceAllString(folded, " ")
	return strings.TrimSpace(folded)
}

// foldFullWidth maps full-width ASCII alphanumerics to their half-width forms
func foldFullWidth(r rune) rune {
	switch {
	case r >= '０' && r <= '９':
		return r - 0xFEE0
	case r >= 'Ａ' && r <= 'Ｚ':
		return r - 0xFEE0
	case r >= 'ａ' && r <= 'ｚ':
		return r - 0xFEE0
	}
	return r
}

// sizeRe matches a number immediately followed by a unit from the fixed
// vocabulary: volume (ml), weight (g), and count-based units.
var sizeRe = regexp.MustCompile(`(?i)(\d+)\s*(ml|g|枚|個|本|片|パック)`)

// ExtractSizeToken finds the first number+unit occurrence in text and returns
// it in normalized "500ml" form, or the empty string when no size is present.
func ExtractSizeToken(s string) string {
	if s == "" {
		return ""
	}

	m := sizeRe.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1] + strings.ToLower(m[2])
}

// targetCategoryKeywords marks the product domain the scanner is tuned for.
// Candidate scoring gives a bonus to catalog entries in these categories.
var targetCategoryKeywords = []string{
	"beauty", "美容", "スキンケア", "コスメ", "化粧品", "ヘアケア", "ボディケア",
}

// NormalizeCode canonicalizes a source product code: full-width digits folded
// to half-width, separators and whitespace stripped.
func NormalizeCode(s string) string {
	folded := strings.Map(foldFullWidth, s)
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-', '　':
			return -1
		}
		return r
	}, folded)
}

// IsValidJAN reports whether a code is a structurally valid JAN/EAN barcode:
// 8 or 13 digits with a correct modulo-10 check digit. The input is
// normalized first, so full-width digits and separators are accepted.
func IsValidJAN(s string) bool {
	code := NormalizeCode(s)
	if len(code) != 8 && len(code) != 13 {
		return false
	}

	sum := 0
	for i, r := range code {
		if r < '0' || r > '9' {
			return false
		}
		digit := int(r - '0')
		// Weights alternate 1,3 counted from the check digit on the right.
		if (len(code)-1-i)%2 == 1 {
			digit *= 3
		}
		sum += digit
	}
	return sum%10 == 0
}

// IsTargetCategory reports whether a category name belongs to the domain of
// interest. Matching is case-insensitive substring containment.
func IsTargetCategory(name string) bool {
	if name == "" {
		return false
	}

	lower := strings.ToLower(name)
	for _, kw := range targetCategoryKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
