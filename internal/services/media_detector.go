package services

import (
	"path"
	"strings"

	"feedbackhub/internal/models"
)

// genericMIME says nothing about the content
const genericMIME = "application/octet-stream"

var extensionMediaTypes = map[string]models.MediaType{}

func init() {
	for _, ext := range []string{"jpg", "jpeg", "png", "gif", "bmp", "webp", "svg", "heic"} {
		extensionMediaTypes[ext] = models.MediaImage
	}
	for _, ext := range []string{"mp4", "avi", "mov", "wmv", "flv", "mkv", "webm", "m4v", "3gp"} {
		extensionMediaTypes[ext] = models.MediaVideo
	}
	for _, ext := range []string{"mp3", "wav", "aac", "ogg", "flac", "m4a", "amr", "wma", "opus"} {
		extensionMediaTypes[ext] = models.MediaVoice
	}
}

// DetectMediaType classifies one attachment. A declared media MIME type wins;
// any other declared type is TEXT. Undeclared (or octet-stream) attachments
// fall back to the extension, and only a bare http(s) reference with no
// file name of its own is a LINK.
func DetectMediaType(fileType, fileName, fileURL string) models.MediaType {
	mime := strings.ToLower(strings.TrimSpace(fileType))
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch {
	case strings.HasPrefix(mime, "image/"):
		return models.MediaImage
	case strings.HasPrefix(mime, "video/"):
		return models.MediaVideo
	case strings.HasPrefix(mime, "audio/"):
		return models.MediaVoice
	case mime != "" && mime != genericMIME:
		return models.MediaText
	}

	for _, candidate := range []string{fileName, fileURL} {
		if mt, ok := extensionMediaTypes[extensionOf(candidate)]; ok {
			return mt
		}
	}

	name := strings.TrimSpace(fileName)
	if mime == "" && (isLink(name) || (name == "" && isLink(fileURL))) {
		return models.MediaLink
	}
	return models.MediaText
}

// extensionOf returns the lower-cased extension with any query or fragment stripped
func extensionOf(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	ext := path.Ext(name)
	if ext == "" {
		return ""
	}
	return strings.ToLower(ext[1:])
}

func isLink(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// AggregateMediaTypes returns the de-duplicated media types of the attachments
// in canonical order, comma-joined. No attachments yields TEXT.
func AggregateMediaTypes(types []models.MediaType) string {
	if len(types) == 0 {
		return string(models.MediaText)
	}
	seen := make(map[models.MediaType]bool, len(types))
	for _, t := range types {
		seen[t] = true
	}
	out := make([]string, 0, len(seen))
	for _, t := range models.CanonicalMediaOrder {
		if seen[t] {
			out = append(out, string(t))
		}
	}
	return strings.Join(out, ",")
}
