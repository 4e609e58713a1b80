package domain

import (
	"bytes"
	"net/url"
	"path"
	"strings"
)

// SmallFileThreshold separates images from videos when nothing else matched.
const SmallFileThreshold = 300 * 1024

// SniffLen is how many leading bytes Classify looks at.
const SniffLen = 16

// Hint carries the non-byte signals available for an item.
type Hint struct {
	Size         int64
	SourceLink   string
	DeclaredKind DeclaredKind
}

var (
	sigID3  = []byte("ID3")
	sigJPEG = []byte{0xFF, 0xD8, 0xFF}
	sigPNG  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}
	sigGIF7 = []byte("GIF87a")
	sigGIF9 = []byte("GIF89a")
	sigRIFF = []byte("RIFF")
	sigWEBP = []byte("WEBP")
	sigFTYP = []byte("ftyp")
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".heic": true,
}

var imageHints = map[DeclaredKind]bool{
	DeclaredImage: true, DeclaredPhoto: true,
	"jpg": true, "jpeg": true, "png": true, "gif": true, "webp": true,
}

// Classify guesses the media kind of an item. Audio is checked before image,
// image before video, and the size fallback comes last; changing the order
// changes how ambiguous payloads are classified.
func Classify(header []byte, hint Hint) MediaKind {
	if len(header) > SniffLen {
		header = header[:SniffLen]
	}
	declared := hint.DeclaredKind.Normalize()

	if declared == DeclaredMusic || isAudioSignature(header) {
		return KindAudio
	}
	if isImageSignature(header) || hasImageExtension(hint.SourceLink) || imageHints[declared] {
		return KindImage
	}
	if isMP4Signature(header) || declared == DeclaredVideo {
		return KindVideo
	}

	switch {
	case hint.Size <= 0:
		return KindUnknown
	case hint.Size < SmallFileThreshold:
		return KindImage
	default:
		return KindVideo
	}
}

// ClassifyItem classifies a fetched item.
func ClassifyItem(it FetchedItem) MediaKind {
	return Classify(it.Data, Hint{
		Size:         it.Size,
		SourceLink:   it.SourceLink,
		DeclaredKind: it.DeclaredKind,
	})
}

func isAudioSignature(h []byte) bool {
	if bytes.HasPrefix(h, sigID3) {
		return true
	}
	// MPEG audio frame sync: eleven set bits.
	return len(h) >= 2 && h[0] == 0xFF && h[1]&0xE0 == 0xE0
}

func isImageSignature(h []byte) bool {
	switch {
	case bytes.HasPrefix(h, sigJPEG), bytes.HasPrefix(h, sigPNG):
		return true
	case bytes.HasPrefix(h, sigGIF7), bytes.HasPrefix(h, sigGIF9):
		return true
	}
	return len(h) >= 12 && bytes.Equal(h[0:4], sigRIFF) && bytes.Equal(h[8:12], sigWEBP)
}

func isMP4Signature(h []byte) bool {
	return len(h) >= 8 && bytes.Equal(h[4:8], sigFTYP)
}

func hasImageExtension(link string) bool {
	if link == "" {
		return false
	}
	p := link
	if u, err := url.Parse(link); err == nil {
		p = u.Path
	}
	return imageExtensions[strings.ToLower(path.Ext(p))]
}
