package features

import (
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// FitEncoder builds a deterministic category-to-code map from the training
// values. Codes are assigned in sorted category order starting at 1; code 0
// stays reserved for categories never seen during fitting, so inference on
// unseen values cannot fail.
func FitEncoder(values []string) domain.EncoderMap {
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		seen[v] = true
	}

	cats := make([]string, 0, len(seen))
	for c := range seen {
		cats = append(cats, c)
	}
	sort.Strings(cats)

	vocab := make(map[string]int, len(cats))
	for i, c := range cats {
		vocab[c] = i + 1
	}
	return domain.EncoderMap{Vocabulary: vocab}
}
