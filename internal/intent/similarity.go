package intent

// Ratio is the classic sequence-matcher similarity: 2*M/T where M is the
// total length of the longest matching blocks and T the combined length of
// both strings. Equivalent to Python difflib's SequenceMatcher.ratio with
// junk handling disabled, which keeps the catalog's 0.75 trigger threshold
// meaningful.
func Ratio(a, b string) float64 {
	ar, br := []rune(a), []rune(b)
	total := len(ar) + len(br)
	if total == 0 {
		return 1.0
	}
	return 2 * float64(matchingSize(ar, br)) / float64(total)
}

type matchSpan struct {
	alo, ahi, blo, bhi int
}

func matchingSize(a, b []rune) int {
	b2j := make(map[rune][]int, len(b))
	for j, r := range b {
		b2j[r] = append(b2j[r], j)
	}

	matched := 0
	queue := []matchSpan{{0, len(a), 0, len(b)}}
	for len(queue) > 0 {
		span := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		i, j, size := longestMatch(a, b2j, span)
		if size == 0 {
			continue
		}
		matched += size
		if span.alo < i && span.blo < j {
			queue = append(queue, matchSpan{span.alo, i, span.blo, j})
		}
		if i+size < span.ahi && j+size < span.bhi {
			queue = append(queue, matchSpan{i + size, span.ahi, j + size, span.bhi})
		}
	}
	return matched
}

// longestMatch finds the longest block where a[i:i+k] == b[j:j+k] within the
// span, preferring the earliest block in a, then in b, like difflib does.
func longestMatch(a []rune, b2j map[rune][]int, span matchSpan) (besti, bestj, bestsize int) {
	besti, bestj = span.alo, span.blo
	j2len := map[int]int{}
	for i := span.alo; i < span.ahi; i++ {
		newJ2len := map[int]int{}
		for _, j := range b2j[a[i]] {
			if j < span.blo {
				continue
			}
			if j >= span.bhi {
				break
			}
			k := j2len[j-1] + 1
			newJ2len[j] = k
			if k > bestsize {
				besti, bestj, bestsize = i-k+1, j-k+1, k
			}
		}
		j2len = newJ2len
	}
	return besti, bestj, bestsize
}
