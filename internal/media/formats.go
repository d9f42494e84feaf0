package media

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"storyreel/internal/timeline"
)

var supportedVideoExtensions = map[string]bool{
	".mp4":  true,
	".m4v":  true,
	".mkv":  true,
	".webm": true,
	".mov":  true,
}

var supportedAudioExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".m4a":  true,
	".aac":  true,
	".ogg":  true,
	".opus": true,
	".flac": true,
}

func IsSupportedVideo(filename string) bool {
	return supportedVideoExtensions[extOf(filename)]
}

func IsSupportedAudio(filename string) bool {
	return supportedAudioExtensions[extOf(filename)]
}

// KindFromSrc guesses the track kind of a media URL from its path extension.
func KindFromSrc(src string) (timeline.Kind, bool) {
	ext := extOf(src)
	switch {
	case supportedVideoExtensions[ext]:
		return timeline.KindVideo, true
	case supportedAudioExtensions[ext]:
		return timeline.KindAudio, true
	}
	return "", false
}

func GetContentType(filename string) string {
	switch extOf(filename) {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".mkv":
		return "video/x-matroska"
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".m4a", ".aac":
		return "audio/aac"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}

// extOf handles both plain file names and URLs with query strings.
func extOf(name string) string {
	if u, err := url.Parse(name); err == nil && u.Scheme != "" {
		return strings.ToLower(path.Ext(u.Path))
	}
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(filepath.Ext(name))
}
