package models

import (
	"net/url"
	"strings"
)

// ContentType tags what kind of media a piece of content carries
type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeImage ContentType = "image"
	ContentTypeGIF   ContentType = "gif"
	ContentTypeVideo ContentType = "video"
	ContentTypeMixed ContentType = "mixed"
)

// ContentTypes lists every content type in reporting order
var ContentTypes = []ContentType{
	ContentTypeVideo,
	ContentTypeGIF,
	ContentTypeImage,
	ContentTypeText,
	ContentTypeMixed,
}

// Valid reports whether t is a known content type
func (t ContentType) Valid() bool {
	for _, ct := range ContentTypes {
		if ct == t {
			return true
		}
	}
	return false
}

// Media is the media attached to a candidate. The zero value is text-only.
// Only NewMedia sets the fields, so the kind always agrees with the URLs present.
type Media struct {
	kind     ContentType
	imageURL string
	videoURL string
}

// NewMedia builds the media variant implied by the URLs present
func NewMedia(imageURL, videoURL string) Media {
	imageURL = strings.TrimSpace(imageURL)
	videoURL = strings.TrimSpace(videoURL)

	switch {
	case imageURL != "" && videoURL != "":
		return Media{kind: ContentTypeMixed, imageURL: imageURL, videoURL: videoURL}
	case videoURL != "":
		return Media{kind: ContentTypeVideo, videoURL: videoURL}
	case imageURL != "" && IsAnimatedImage(imageURL):
		return Media{kind: ContentTypeGIF, imageURL: imageURL}
	case imageURL != "":
		return Media{kind: ContentTypeImage, imageURL: imageURL}
	default:
		return Media{}
	}
}

// Kind returns the content type of the media
func (m Media) Kind() ContentType {
	if m.kind == "" {
		return ContentTypeText
	}
	return m.kind
}

// ImageURL is set for image, gif and mixed media
func (m Media) ImageURL() string { return m.imageURL }

// VideoURL is set for video and mixed media
func (m Media) VideoURL() string { return m.videoURL }

// HasImage reports whether an image URL is attached
func (m Media) HasImage() bool { return m.imageURL != "" }

// HasVideo reports whether a video URL is attached
func (m Media) HasVideo() bool { return m.videoURL != "" }

// IsEmpty is true for text-only content
func (m Media) IsEmpty() bool { return m.imageURL == "" && m.videoURL == "" }

var animatedHosts = []string{"giphy.com", "tenor.com", "gfycat.com"}

// IsAnimatedImage reports whether an image URL points at an animated image
func IsAnimatedImage(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}

	path := strings.ToLower(u.Path)
	if strings.HasSuffix(path, ".gif") || strings.HasSuffix(path, ".gifv") {
		return true
	}

	host := strings.ToLower(u.Hostname())
	for _, h := range animatedHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}
