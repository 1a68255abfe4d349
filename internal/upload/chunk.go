package upload

// ChunkCount returns ceil(size / maxChunk).
func ChunkCount(size, maxChunk int) int {
	if size <= 0 || maxChunk <= 0 {
		return 0
	}
	return (size + maxChunk - 1) / maxChunk
}

// SplitChunks slices data into consecutive chunks of at most maxChunk bytes.
// The chunks share data's backing array. A non-positive maxChunk yields nil.
func SplitChunks(data []byte, maxChunk int) [][]byte {
	if maxChunk <= 0 {
		return nil
	}
	n := ChunkCount(len(data), maxChunk)
	chunks := make([][]byte, 0, n)
	for off := 0; off < len(data); off += maxChunk {
		end := off + maxChunk
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[off:end:end])
	}
	return chunks
}
