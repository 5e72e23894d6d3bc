package speech

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newSpeechServer(t *testing.T, key string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/sts", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Ocp-Apim-Subscription-Key") != key {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, "bearer-abc")
	})
	mux.HandleFunc("/tts", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer bearer-abc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Format", r.Header.Get("X-Microsoft-OutputFormat"))
		_, _ = w.Write(body)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestIssueToken(t *testing.T) {
	srv := newSpeechServer(t, "k")
	s := NewService(ServiceConfig{Key: "k", Region: "japaneast", STSURL: srv.URL + "/sts"}, srv.Client())
	tok, err := s.IssueToken(context.Background())
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if tok.Token != "bearer-abc" || tok.Region != "japaneast" {
		t.Errorf("token = %+v", tok)
	}

	bad := NewService(ServiceConfig{Key: "wrong", Region: "japaneast", STSURL: srv.URL + "/sts"}, srv.Client())
	if _, err := bad.IssueToken(context.Background()); err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("err = %v", err)
	}
}

func TestIssueTokenNotConfigured(t *testing.T) {
	s := NewService(ServiceConfig{Region: "japaneast"}, nil)
	if _, err := s.IssueToken(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v", err)
	}
}

func TestSynthesizeEscapesText(t *testing.T) {
	srv := newSpeechServer(t, "k")
	s := NewService(ServiceConfig{
		Key: "k", Region: "japaneast",
		STSURL: srv.URL + "/sts", TTSURL: srv.URL + "/tts",
	}, srv.Client())

	audio, format, err := s.Synthesize(context.Background(), SynthesisRequest{Text: `a<b & "c"`, Target: "zh", Format: "wav"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if format.MIME != "audio/wav" {
		t.Errorf("mime = %s", format.MIME)
	}
	got := string(audio)
	if !strings.Contains(got, `name="zh-CN-YunyiMultilingualNeural"`) {
		t.Errorf("voice missing: %s", got)
	}
	if !strings.Contains(got, "a&lt;b &amp; &#34;c&#34;") {
		t.Errorf("text not escaped: %s", got)
	}

	if _, _, err := s.Synthesize(context.Background(), SynthesisRequest{Text: "  "}); !errors.Is(err, ErrEmptyText) {
		t.Errorf("empty text err = %v", err)
	}
}
