package domain

import "sort"

const (
	// LargeVideoThreshold marks a video as the real post rather than a slideshow artifact.
	LargeVideoThreshold = 1024 * 1024
	// LikelyVideoThreshold filters out thumbnail-sized video renditions.
	LikelyVideoThreshold = 100 * 1024
	// MaxGroupSize is the most photos sent in one grouped reply.
	MaxGroupSize = 10
	// DefaultMaxFileSize is the default per-item size limit.
	DefaultMaxFileSize = 60 * 1024 * 1024
)

// Selection is the triage result: what to deliver and the outcome it implies.
type Selection struct {
	Kind            MediaKind
	Items           []FetchedItem
	SkippedOversize int
	Unrecognized    int
	Err             error
}

// OK reports whether anything was selected for delivery.
func (s Selection) OK() bool { return s.Err == nil && len(s.Items) > 0 }

// TotalBytes sums the sizes of the selected items.
func (s Selection) TotalBytes() int64 {
	var n int64
	for _, it := range s.Items {
		n += it.Size
	}
	return n
}

// Outcome converts the selection into the request outcome.
func (s Selection) Outcome() DeliveryOutcome {
	if !s.OK() {
		out := DeliveryOutcome{Kind: KindUnknown}
		if s.Err != nil {
			out.ErrorReason = s.Err.Error()
		}
		return out
	}
	return DeliveryOutcome{
		Success:        true,
		Kind:           s.Kind,
		ItemsDelivered: len(s.Items),
		TotalBytes:     s.TotalBytes(),
	}
}

// ClassifiedBatch partitions items by kind.
type ClassifiedBatch struct {
	Video   []FetchedItem
	Image   []FetchedItem
	Audio   []FetchedItem
	Unknown []FetchedItem
}

// Partition classifies every item into exactly one bucket, keeping input order.
func Partition(items []FetchedItem) ClassifiedBatch {
	var b ClassifiedBatch
	for _, it := range items {
		switch ClassifyItem(it) {
		case KindVideo:
			b.Video = append(b.Video, it)
		case KindImage:
			b.Image = append(b.Image, it)
		case KindAudio:
			b.Audio = append(b.Audio, it)
		default:
			b.Unknown = append(b.Unknown, it)
		}
	}
	return b
}

// Triage filters, classifies and ranks a fetched batch and picks what to
// deliver. The result depends only on the items and their order.
func Triage(items []FetchedItem, maxFileSize int64) Selection {
	var sel Selection

	kept := make([]FetchedItem, 0, len(items))
	for _, it := range items {
		if it.Size > maxFileSize {
			sel.SkippedOversize++
			continue
		}
		kept = append(kept, it)
	}

	b := Partition(kept)
	sel.Unrecognized = len(b.Unknown)

	switch {
	case len(b.Image) > 0 && !hasLargeVideo(b.Video):
		sel.Kind = KindImage
		sel.Items = b.Image
		if len(sel.Items) > MaxGroupSize {
			sel.Items = sel.Items[:MaxGroupSize]
		}
	case len(b.Video) > 0:
		sel.Kind = KindVideo
		sel.Items = []FetchedItem{bestVideo(b.Video)}
	case len(b.Audio) > 0:
		sel.Kind = KindAudio
		sel.Items = b.Audio[:1]
	case len(kept) == 0 && sel.SkippedOversize > 0:
		sel.Err = ErrAllOversize
	default:
		sel.Err = ErrNoRecognizableMedia
	}
	return sel
}

func hasLargeVideo(videos []FetchedItem) bool {
	for _, v := range videos {
		if v.Size > LargeVideoThreshold {
			return true
		}
	}
	return false
}

// bestVideo prefers renditions above the thumbnail threshold, then clean over
// watermarked, then larger over smaller. Ties keep input order.
func bestVideo(videos []FetchedItem) FetchedItem {
	candidates := make([]FetchedItem, 0, len(videos))
	for _, v := range videos {
		if v.Size > LikelyVideoThreshold {
			candidates = append(candidates, v)
		}
	}
	if len(candidates) == 0 {
		candidates = append(candidates, videos...)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		ri, rj := candidates[i].Watermark.rank(), candidates[j].Watermark.rank()
		if ri != rj {
			return ri < rj
		}
		return candidates[i].Size > candidates[j].Size
	})
	return candidates[0]
}
