package call

// Reply text is cut into chunks near a target length, preferring cuts
// just after a sentence terminator so synthesized speech does not stop
// mid-sentence. Splitting is lossless: concatenating the returned
// chunks reproduces the input exactly.

// isSentenceTerminator reports whether r ends a sentence for chunking
// purposes. Covers ASCII and full-width CJK terminators.
func isSentenceTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	default:
		return false
	}
}

// boundaryAt reports whether a cut directly before index c lands just
// after a sentence terminator or a blank line.
func boundaryAt(runes []rune, c int) bool {
	if c <= 0 || c > len(runes) {
		return false
	}
	if isSentenceTerminator(runes[c-1]) {
		return true
	}
	return c >= 2 && runes[c-1] == '\n' && runes[c-2] == '\n'
}

// SplitChunks cuts text into playback chunks of roughly
// MaxChunkLength runes. At each cut point it searches backward up to
// BoundaryWindow runes for a sentence boundary, then forward up to
// BoundaryWindow runes, and finally cuts hard at the target length.
func SplitChunks(text string, config PlaybackConfig) []string {
	maxLen := config.MaxChunkLength
	if maxLen <= 0 {
		maxLen = DefaultPlaybackConfig().MaxChunkLength
	}
	window := config.BoundaryWindow
	if window <= 0 {
		window = DefaultPlaybackConfig().BoundaryWindow
	}

	runes := []rune(text)
	var chunks []string

	start := 0
	for start < len(runes) {
		end := start + maxLen
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}

		cut := -1

		// Backward: latest boundary within the window wins.
		low := end - window
		if low < start {
			low = start
		}
		for c := end; c > low; c-- {
			if boundaryAt(runes, c) {
				cut = c
				break
			}
		}

		// Forward: earliest boundary within the window.
		if cut < 0 {
			high := end + window
			if high > len(runes) {
				high = len(runes)
			}
			for c := end + 1; c <= high; c++ {
				if boundaryAt(runes, c) {
					cut = c
					break
				}
			}
		}

		if cut < 0 {
			cut = end
		}

		chunks = append(chunks, string(runes[start:cut]))
		start = cut
	}

	return chunks
}
