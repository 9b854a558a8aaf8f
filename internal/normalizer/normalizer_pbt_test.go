package normalizer

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestExtractLatestPriceProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	// Value slots are odd indices; any price generated here is non-negative so
	// it can never collide with the sentinel.
	seriesGen := gen.SliceOf(gen.IntRange(-1, 10000))

	properties.Property("result equals last non-sentinel value slot", prop.ForAll(
		func(series []int) bool {
			price, ok := ExtractLatestPrice(series)

			want, found := 0, false
			for i := 1; i < len(series); i += 2 {
				if series[i] != PriceSentinel {
					want, found = series[i], true
				}
			}

			if !found {
				return !ok
			}
			return ok && price == want
		},
		seriesGen,
	))

	properties.Property("never returns the sentinel as a price", prop.ForAll(
		func(series []int) bool {
			price, ok := ExtractLatestPrice(series)
			return !ok || price != PriceSentinel
		},
		seriesGen,
	))

	properties.TestingRun(t)
}

func TestNormalizeTitleProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("normalization is idempotent", prop.ForAll(
		func(s string) bool {
			once := NormalizeTitle(s)
			return NormalizeTitle(once) == once
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
