package cftree

import "sync"

// caseRow is one input row addressed by its original index.
type caseRow struct {
	idx         int
	continuous  []float64
	categorical []string
}

// nearestEntries returns, for every row, the index of the entry in targets
// nearest to it under m. targets must not be empty and is only read.
func nearestEntries(m Metric, targets []*Entry, rows []caseRow) []int {
	out := make([]int, len(rows))
	for i, r := range rows {
		out[i], _ = closestEntry(m, targets, newSingleton(r.idx, r.continuous, r.categorical))
	}
	return out
}

// nearestEntriesParallel is nearestEntries spread over numWorkers
// goroutines. Each worker handles a contiguous range of rows and writes only
// its own slots, so the result is identical to the sequential version.
// Falls back to nearestEntries if numWorkers <= 1.
func nearestEntriesParallel(m Metric, targets []*Entry, rows []caseRow, numWorkers int) []int {
	n := len(rows)
	if numWorkers <= 1 || n <= 1 {
		return nearestEntries(m, targets, rows)
	}

	out := make([]int, n)

	var wg sync.WaitGroup
	rowsPerWorker := (n + numWorkers - 1) / numWorkers

	for w := 0; w < numWorkers; w++ {
		startRow := w * rowsPerWorker
		endRow := startRow + rowsPerWorker
		if endRow > n {
			endRow = n
		}
		if startRow >= n {
			break
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			copy(out[start:end], nearestEntries(m, targets, rows[start:end]))
		}(startRow, endRow)
	}

	wg.Wait()
	return out
}
