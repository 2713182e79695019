package tick

import "sort"

// wordSize is the number of compressed ticks one search step may cover.
const wordSize = 256

func (m *Map) compress(tick int32) int32 {
	compressed := tick / m.spacing
	if tick < 0 && tick%m.spacing != 0 {
		compressed--
	}
	return compressed
}

// NextInitializedTickWithinOneWord returns the next initialized tick at or below tick (lte)
// or strictly above it, looking no further than the 256-tick word that contains the start.
// When nothing is initialized in that word, the word boundary is returned with false so the
// swap loop can take a bounded step and search again.
func (m *Map) NextInitializedTickWithinOneWord(tick int32, lte bool) (int32, bool) {
	compressed := m.compress(tick)

	if lte {
		wordStart := (compressed >> 8) * wordSize
		lo, hi := wordStart*m.spacing, compressed*m.spacing
		// first index strictly above hi
		i := sort.Search(len(m.sorted), func(i int) bool { return m.sorted[i] > hi })
		if i > 0 && m.sorted[i-1] >= lo {
			return m.sorted[i-1], true
		}
		return lo, false
	}

	compressed++
	wordEnd := (compressed>>8)*wordSize + wordSize - 1
	lo, hi := compressed*m.spacing, wordEnd*m.spacing
	i := sort.Search(len(m.sorted), func(i int) bool { return m.sorted[i] >= lo })
	if i < len(m.sorted) && m.sorted[i] <= hi {
		return m.sorted[i], true
	}
	return hi, false
}

// NextInitializedTick returns the nearest initialized tick at or below tick (lte) or strictly
// above it, with no word bound.
func (m *Map) NextInitializedTick(tick int32, lte bool) (int32, bool) {
	if lte {
		i := sort.Search(len(m.sorted), func(i int) bool { return m.sorted[i] > tick })
		if i == 0 {
			return 0, false
		}
		return m.sorted[i-1], true
	}
	i := sort.Search(len(m.sorted), func(i int) bool { return m.sorted[i] > tick })
	if i == len(m.sorted) {
		return 0, false
	}
	return m.sorted[i], true
}
