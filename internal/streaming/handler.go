package streaming

import (
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"storyreel/internal/media"
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

// ServeAsset streams the media behind an asset src. Remote sources are
// redirected; local paths and file:// URLs are served with range support.
func (h *Handler) ServeAsset(w http.ResponseWriter, r *http.Request, src string) {
	u, err := url.Parse(src)
	if err == nil {
		switch u.Scheme {
		case "http", "https":
			http.Redirect(w, r, src, http.StatusTemporaryRedirect)
			return
		case "file":
			src = u.Path
		}
	}
	h.ServeFile(w, r, src)
}

func (h *Handler) ServeFile(w http.ResponseWriter, r *http.Request, filePath string) {
	file, err := os.Open(filePath)
	if err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		http.Error(w, "Cannot read file", http.StatusInternalServerError)
		return
	}
	if stat.IsDir() {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	contentType := media.GetContentType(filePath)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")

	http.ServeContent(w, r, filepath.Base(filePath), stat.ModTime(), file)
}
