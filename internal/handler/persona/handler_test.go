package persona

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/chargate/internal/model/persona"
)

func setupRouter() *chi.Mux {
	r := chi.NewRouter()
	New(persona.NewMemoryStore(persona.Seed())).RegisterRoutes(r)
	return r
}

func TestListCharacters(t *testing.T) {
	r := setupRouter()

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/characters", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var got []persona.Persona
	if err := json.Unmarshal(resp.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != len(persona.Seed()) {
		t.Fatalf("expected %d characters, got %d", len(persona.Seed()), len(got))
	}
}

func TestGetCharacter(t *testing.T) {
	r := setupRouter()

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/characters/iron-man", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/characters/nobody", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
