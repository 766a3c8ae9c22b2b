package batch

import (
	"math/rand"
	"sort"

	"github.com/aSeaFood/STER/IO"
)

// Shuffle sorts samples by source length, permutes the full batch-size
// chunks and appends the remainder unchanged. Batches end up holding
// sentences of similar length. The input slice is not modified.
func Shuffle(samples []IO.Sample, batchSize int, rng *rand.Rand) []IO.Sample {
	sorted := append([]IO.Sample(nil), samples...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].SrcLen < sorted[j].SrcLen })

	chunks := len(sorted) / batchSize
	out := make([]IO.Sample, 0, len(sorted))
	for _, idx := range rng.Perm(chunks) {
		out = append(out, sorted[idx*batchSize:(idx+1)*batchSize]...)
	}
	return append(out, sorted[chunks*batchSize:]...)
}

// Split cuts samples into consecutive batches of batchSize. A trailing batch
// of a single sample is merged into the batch before it.
func Split(samples []IO.Sample, batchSize int) [][]IO.Sample {
	count := (len(samples) + batchSize - 1) / batchSize
	mergeLast := count > 1 && len(samples)-batchSize*(count-1) == 1
	if mergeLast {
		count--
	}
	out := make([][]IO.Sample, 0, count)
	for i := 0; i < count; i++ {
		start := i * batchSize
		end := min(len(samples), start+batchSize)
		if i == count-1 && mergeLast {
			end = len(samples)
		}
		out = append(out, samples[start:end])
	}
	return out
}
