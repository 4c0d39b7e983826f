package ranker

import (
	"fmt"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/domain"
)

func BenchmarkRank(b *testing.B) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, n := range []int{100, 1000, 10000} {
		b.Run(fmt.Sprintf("records_%d", n), func(b *testing.B) {
			records := make([]domain.IndexRecord, n)
			for i := range records {
				records[i] = domain.IndexRecord{
					SourceID:   fmt.Sprintf("id-%d", i),
					Title:      fmt.Sprintf("Trail running shoes model %d", i%50),
					Tags:       "running|outdoor",
					Categories: "footwear",
					Body:       "lightweight shoes for long distances",
					IndexedAt:  base.Add(time.Duration(i%7) * time.Hour),
				}
			}
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = Rank(records, "running shoes")
			}
		})
	}
}
