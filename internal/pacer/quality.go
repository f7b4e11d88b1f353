package pacer

import "strings"

// Quality is the rendition tier requested by a viewer.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

const (
	lowChunkSize    = 256 * 1024
	mediumChunkSize = 512 * 1024
	highChunkSize   = 1024 * 1024
)

// Qualities returns every known tier, lowest first.
func Qualities() []Quality {
	return []Quality{QualityLow, QualityMedium, QualityHigh}
}

// ParseQuality normalizes s and reports whether it names a known tier.
// Unknown values are returned trimmed and lower-cased so they can still be
// carried on the wire and labelled in metrics.
func ParseQuality(s string) (Quality, bool) {
	q := Quality(strings.ToLower(strings.TrimSpace(s)))
	return q, q.Known()
}

// Known reports whether q is one of low, medium or high.
func (q Quality) Known() bool {
	switch q {
	case QualityLow, QualityMedium, QualityHigh:
		return true
	}
	return false
}

func (q Quality) String() string { return string(q) }

// ChunkSize is the payload size for q. Unknown tiers get the medium size.
func ChunkSize(q Quality) int {
	switch q {
	case QualityLow:
		return lowChunkSize
	case QualityHigh:
		return highChunkSize
	default:
		return mediumChunkSize
	}
}
