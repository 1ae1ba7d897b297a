package api

import (
	"net/http"
	"strings"

	"github.com/ayusman/shoplens/internal/overlay"
)

// SearchHandler redirects a marker click to the shopping search for its class.
type SearchHandler struct {
	template TemplateFunc
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(template TemplateFunc) *SearchHandler {
	return &SearchHandler{template: template}
}

// ServeHTTP handles GET /api/search?q=<class>.
func (h *SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "Query parameter q is required")
		return
	}

	http.Redirect(w, r, overlay.SearchURL(h.template(), q), http.StatusFound)
}
