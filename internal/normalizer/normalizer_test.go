package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractLatestPrice(t *testing.T) {
	tests := []struct {
		name      string
		series    []int
		wantPrice int
		wantOK    bool
	}{
		{
			name:      "latest value slot wins",
			series:    []int{100, 1500, 200, 1600},
			wantPrice: 1600,
			wantOK:    true,
		},
		{
			name:      "skips trailing sentinel",
			series:    []int{100, 1500, 200, -1},
			wantPrice: 1500,
			wantOK:    true,
		},
		{
			name:      "skips multiple sentinels",
			series:    []int{100, -1, 200, 2980, 300, -1, 400, -1},
			wantPrice: 2980,
			wantOK:    true,
		},
		{
			name:   "all sentinel",
			series: []int{100, -1, 200, -1},
			wantOK: false,
		},
		{
			name:   "empty series",
			series: nil,
			wantOK: false,
		},
		{
			name:   "single timestamp without value",
			series: []int{100},
			wantOK: false,
		},
		{
			name:      "ignores sentinel-looking timestamps",
			series:    []int{-1, 500},
			wantPrice: 500,
			wantOK:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price, ok := ExtractLatestPrice(tt.series)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantPrice, price)
			}
		})
	}
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "folds full-width alphanumerics",
			input: "ＡＢＣ１２３",
			want:  "abc123",
		},
		{
			name:  "lowercases and trims",
			input: "  Shampoo EX  ",
			want:  "shampoo ex",
		},
		{
			name:  "collapses punctuation to single spaces",
			input: "リンス(詰め替え)・大容量/500ml",
			want:  "リンス 詰め替え 大容量 500ml",
		},
		{
			name:  "empty input",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTitle(tt.input))
		})
	}
}

func TestExtractSizeToken(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "volume unit", input: "シャンプー 500ml 詰め替え", want: "500ml"},
		{name: "uppercase unit folds", input: "Conditioner 300ML", want: "300ml"},
		{name: "weight unit", input: "クリーム 50g", want: "50g"},
		{name: "count unit", input: "マスク 30枚入り", want: "30枚"},
		{name: "space between number and unit", input: "ローション 120 ml", want: "120ml"},
		{name: "first occurrence wins", input: "2個セット 500ml", want: "2個"},
		{name: "no size", input: "ヘアオイル", want: ""},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractSizeToken(tt.input))
		})
	}
}

func TestIsTargetCategory(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "english keyword", input: "Beauty", want: true},
		{name: "keyword inside longer name", input: "ビューティー > スキンケア", want: true},
		{name: "japanese keyword", input: "化粧品", want: true},
		{name: "unrelated category", input: "Electronics", want: false},
		{name: "empty", input: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTargetCategory(tt.input))
		})
	}
}

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain digits pass through", input: "4901234567894", want: "4901234567894"},
		{name: "hyphens stripped", input: "49-0123-456789-4", want: "4901234567894"},
		{name: "full-width digits folded", input: "４９０１２３４５６７８９４", want: "4901234567894"},
		{name: "spaces stripped", input: " 4901234 567894 ", want: "4901234567894"},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeCode(tt.input))
		})
	}
}

func TestIsValidJAN(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "valid 13-digit code", input: "4901234567894", want: true},
		{name: "valid 8-digit code", input: "49123456", want: true},
		{name: "wrong check digit", input: "4901234567895", want: false},
		{name: "full-width digits accepted", input: "４９０１２３４５６７８９４", want: true},
		{name: "hyphenated code accepted", input: "4-901234-567894", want: true},
		{name: "wrong length", input: "490123456", want: false},
		{name: "non-digit content", input: "49012345678AB", want: false},
		{name: "empty", input: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidJAN(tt.input))
		})
	}
}
