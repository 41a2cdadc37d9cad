package storage

// MinPartSize is the storage provider's minimum multipart part size.
const MinPartSize int64 = 5 * 1024 * 1024

// Part is one contiguous byte range of a multipart transfer. Numbers are
// 1-indexed and contiguous.
type Part struct {
	Number int
	Offset int64
	Size   int64
}

// PlanParts partitions total bytes into equal-size parts; the last part holds
// the remainder. Config validation keeps production part sizes at or above
// the provider minimum; the planner itself only defends against nonsense.
func PlanParts(total, partSize int64) []Part {
	if total <= 0 {
		return nil
	}
	if partSize <= 0 {
		partSize = MinPartSize
	}

	count := total / partSize
	if total%partSize != 0 {
		count++
	}
	parts := make([]Part, 0, count)
	for i := int64(0); i < count; i++ {
		offset := i * partSize
		size := partSize
		if offset+size > total {
			size = total - offset
		}
		parts = append(parts, Part{Number: int(i + 1), Offset: offset, Size: size})
	}
	return parts
}
