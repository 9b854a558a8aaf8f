// Package scoring ranks catalog candidates for a source record by brand,
// size, and title similarity. All functions are pure.
package scoring

import (
	"math"
	"strings"

	"github.com/resale-scanner/internal/normalizer"
)

// Component caps
const (
	maxBrandScore    = 50
	maxSizeScore     = 30
	maxTitleScore    = 20
	categoryBonus    = 10
	maxTotalScore    = 100
	minWordRuneCount = 3 // words shorter than this are ignored for title overlap
)

// SourceAttrs holds the source record's comparison fields
type SourceAttrs struct {
	Brand string
	Title string
	Size  string
}

// CandidateAttrs holds one catalog candidate's comparison fields
type CandidateAttrs struct {
	Brand    string
	Title    string
	Size     string
	Category string
}

// BrandScore scores brand agreement: exact normalized match 50, substring
// containment in either direction 30, otherwise 0.
func BrandScore(sourceBrand, candidateBrand string) int {
	if sourceBrand == "" || candidateBrand == "" {
		return 0
	}

	a := normalizer.NormalizeTitle(sourceBrand)
	b := normalizer.NormalizeTitle(candidateBrand)

	if a == b {
		return maxBrandScore
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 30
	}
	return 0
}

// SizeScore scores size-token agreement: exact normalized match 30, else 0.
func SizeScore(sourceSize, candidateSize string) int {
	if sourceSize == "" || candidateSize == "" {
		return 0
	}

	if strings.ToLower(strings.TrimSpace(sourceSize)) == strings.ToLower(strings.TrimSpace(candidateSize)) {
		return maxSizeScore
	}
	return 0
}

// TitleSimilarity scores title agreement: exact normalized match 20, else a
// word-set overlap ratio scaled to 0-20 and rounded. Short words (two runes
// or fewer) carry no signal and are excluded.
func TitleSimilarity(sourceTitle, candidateTitle string) int {
	if sourceTitle == "" || candidateTitle == "" {
		return 0
	}

	a := normalizer.NormalizeTitle(sourceTitle)
	b := normalizer.NormalizeTitle(candidateTitle)

	if a == b {
		return maxTitleScore
	}

	aWords := wordSet(a)
	bWords := wordSet(b)
	if len(aWords) == 0 || len(bWords) == 0 {
		return 0
	}

	common := 0
	for w := range aWords {
		if _, ok := bWords[w]; ok {
			common++
		}
	}

	similarity := float64(2*common) / float64(len(aWords)+len(bWords))
	return int(math.Round(similarity * maxTitleScore))
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		if len([]rune(w)) >= minWordRuneCount {
			set[w] = struct{}{}
		}
	}
	return set
}

// TotalScore combines the brand, size, title, and category components into a
// single 0-100 candidate score. The raw component maximum is 110, so the sum
// is clamped.
func TotalScore(source SourceAttrs, candidate CandidateAttrs) int {
	score := BrandScore(source.Brand, candidate.Brand)
	score += SizeScore(source.Size, candidate.Size)
	score += TitleSimilarity(source.Title, candidate.Title)

	if normalizer.IsTargetCategory(candidate.Category) {
		score += categoryBonus
	}

	if score > maxTotalScore {
		score = maxTotalScore
	}
	if score < 0 {
		score = 0
	}
	return score
}
