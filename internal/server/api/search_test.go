package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearchHandler(t *testing.T) {
	tests := []struct {
		name         string
		template     string
		target       string
		wantStatus   int
		wantLocation string
	}{
		{"default template", "", "/api/search?q=cup", http.StatusFound, "https://www.amazon.com/s?k=cup"},
		{"space in class", "", "/api/search?q=teddy+bear", http.StatusFound, "https://www.amazon.com/s?k=teddy%20bear"},
		{"custom template", "https://shop.example/find/{query}", "/api/search?q=laptop", http.StatusFound, "https://shop.example/find/laptop"},
		{"missing query", "", "/api/search", http.StatusBadRequest, ""},
		{"blank query", "", "/api/search?q=%20", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewSearchHandler(staticTemplate(tt.template))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if got := rec.Header().Get("Location"); got != tt.wantLocation {
				t.Errorf("Location = %q, want %q", got, tt.wantLocation)
			}
		})
	}
}
