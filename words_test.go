package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPParagraphSource_Fetch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("An example paragraph.\nWith a second line.\n"))
	}))
	defer srv.Close()

	ps := NewHTTPParagraphSource(srv.URL, time.Second)
	paragraph := ps.FetchParagraph(context.Background())

	assert.Equal(t, "An example paragraph. With a second line.", paragraph)
}

func TestHTTPParagraphSource_CollapsesWhitespace(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("  one\t\ttwo \r\n three  "))
	}))
	defer srv.Close()

	ps := NewHTTPParagraphSource(srv.URL, time.Second)
	assert.Equal(t, "one two three", ps.FetchParagraph(context.Background()))
}

func TestHTTPParagraphSource_FallbackOnServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ps := NewHTTPParagraphSource(srv.URL, time.Second)
	assertFallbackParagraph(t, ps.FetchParagraph(context.Background()))
}

func TestHTTPParagraphSource_FallbackOnEmptyBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("   \n  "))
	}))
	defer srv.Close()

	ps := NewHTTPParagraphSource(srv.URL, time.Second)
	assertFallbackParagraph(t, ps.FetchParagraph(context.Background()))
}

func TestHTTPParagraphSource_FallbackOnUnreachable(t *testing.T) {
	t.Parallel()

	ps := NewHTTPParagraphSource("http://127.0.0.1:1", 200*time.Millisecond)
	assertFallbackParagraph(t, ps.FetchParagraph(context.Background()))
}

func TestFallbackParagraph(t *testing.T) {
	t.Parallel()

	assertFallbackParagraph(t, fallbackParagraph())
}

func assertFallbackParagraph(t *testing.T, paragraph string) {
	t.Helper()

	words := strings.Fields(paragraph)
	require.Len(t, words, fallbackWordCount)

	bag := make(map[string]struct{}, len(fallbackWords))
	for _, w := range fallbackWords {
		bag[w] = struct{}{}
	}

	for _, w := range words {
		_, ok := bag[w]
		assert.True(t, ok, "word %q not in fallback bag", w)
	}
}
