package utils

import (
	"net/http/httptest"
	"testing"
)

func TestSendSSEChunk(t *testing.T) {
	rec := httptest.NewRecorder()
	SetupSSEHeaders(rec)

	if err := SendSSEChunk(rec, rec, map[string]string{"author": "A", "text": "hi"}); err != nil {
		t.Fatalf("SendSSEChunk err: %v", err)
	}
	if err := WriteSSEData(rec, rec, []byte("[DONE]")); err != nil {
		t.Fatalf("WriteSSEData err: %v", err)
	}

	want := "data: {\"author\":\"A\",\"text\":\"hi\"}\n\ndata: [DONE]\n\n"
	if got := rec.Body.String(); got != want {
		t.Fatalf("unexpected body:\n%q\nwant\n%q", got, want)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !rec.Flushed {
		t.Fatal("expected response to be flushed")
	}
}
