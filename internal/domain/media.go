package domain

import (
	"strings"
	"time"
)

// MediaKind is the classification derived from an item's bytes and hints.
type MediaKind int

const (
	KindUnknown MediaKind = iota
	KindVideo
	KindImage
	KindAudio
)

func (k MediaKind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindImage:
		return "image"
	case KindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// DeclaredKind is the free-text type hint a provider attaches to an item.
// The zero value means the provider gave no hint.
type DeclaredKind string

const (
	DeclaredNone  DeclaredKind = ""
	DeclaredVideo DeclaredKind = "video"
	DeclaredMusic DeclaredKind = "music"
	DeclaredImage DeclaredKind = "image"
	DeclaredPhoto DeclaredKind = "photo"
)

// Normalize lowercases and trims the hint.
func (d DeclaredKind) Normalize() DeclaredKind {
	return DeclaredKind(strings.ToLower(strings.TrimSpace(string(d))))
}

// Watermark records whether a provider says an item carries the platform watermark.
type Watermark int

const (
	WatermarkUnknown Watermark = iota
	WatermarkAbsent
	WatermarkPresent
)

// rank orders renditions: clean first, then unknown, then watermarked.
func (w Watermark) rank() int {
	switch w {
	case WatermarkAbsent:
		return 0
	case WatermarkPresent:
		return 2
	default:
		return 1
	}
}

func (w Watermark) String() string {
	switch w {
	case WatermarkAbsent:
		return "absent"
	case WatermarkPresent:
		return "present"
	default:
		return "unknown"
	}
}

// Descriptor is a provider handle to one item whose bytes have not been fetched yet.
type Descriptor struct {
	URL          string
	Headers      map[string]string // extra request headers (referer, cookies)
	DeclaredKind DeclaredKind
	Watermark    Watermark
	SourceLink   string // defaults to URL when empty
}

// Link returns the link used for extension hints.
func (d Descriptor) Link() string {
	if d.SourceLink != "" {
		return d.SourceLink
	}
	return d.URL
}

// FetchedItem is a descriptor together with its downloaded bytes.
type FetchedItem struct {
	Data         []byte
	Size         int64
	DeclaredKind DeclaredKind
	Watermark    Watermark
	SourceLink   string
}

// NewFetchedItem builds an item from a descriptor and the bytes read for it.
func NewFetchedItem(d Descriptor, data []byte) FetchedItem {
	return FetchedItem{
		Data:         data,
		Size:         int64(len(data)),
		DeclaredKind: d.DeclaredKind,
		Watermark:    d.Watermark,
		SourceLink:   d.Link(),
	}
}

// DeliveryOutcome summarises what happened to one user request.
type DeliveryOutcome struct {
	Success        bool
	Kind           MediaKind
	ItemsDelivered int
	TotalBytes     int64
	ErrorReason    string
}

// Target identifies where a selection is delivered.
type Target struct {
	ChatID    int64
	ReplyTo   int
	SourceURL SourceURL
}

// UsageEvent is one telemetry fact per handled request.
type UsageEvent struct {
	UserID         int64
	URL            string
	Kind           string
	Provider       string
	Success        bool
	FileSize       int64
	ItemCount      int
	ErrorMessage   string
	ProcessingTime time.Duration
	Timestamp      time.Time
}

// User is a bot user as known to the usage store.
type User struct {
	TelegramID   int64
	Username     string
	FirstName    string
	LastName     string
	CreatedAt    time.Time
	LastActivity time.Time
	IsActive     bool
}

// UserStats aggregates one user's requests.
type UserStats struct {
	User
	TotalRequests      int64
	SuccessfulRequests int64
	SuccessRate        float64 // percent
}

// ServiceStats aggregates all requests.
type ServiceStats struct {
	TotalUsers         int64
	TotalRequests      int64
	SuccessfulRequests int64
	SuccessRate        float64 // percent
}

// SuccessRate returns successful/total as a percentage, 0 when total is 0.
func SuccessRate(successful, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(successful) / float64(total) * 100
}
