package md2epub

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestClassifyFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contentType string
		url         string
		expected    string
	}{
		{
			name:        "jpeg from content type",
			contentType: "image/jpeg",
			url:         "http://example.com/a",
			expected:    formatJPEG,
		},
		{
			name:        "png from content type",
			contentType: "image/png",
			url:         "http://example.com/a",
			expected:    formatPNG,
		},
		{
			name:        "gif from content type",
			contentType: "image/gif",
			url:         "http://example.com/a",
			expected:    formatGIF,
		},
		{
			name:        "jpg from url extension",
			contentType: "application/octet-stream",
			url:         "http://example.com/photo.JPG",
			expected:    formatJPEG,
		},
		{
			name:        "png from url extension with query",
			contentType: "",
			url:         "http://example.com/img.png?size=large",
			expected:    formatPNG,
		},
		{
			name:        "webp normalized to jpeg",
			contentType: "image/webp",
			url:         "http://example.com/pic.webp",
			expected:    formatJPEG,
		},
		{
			name:        "unknown defaults to jpeg",
			contentType: "application/octet-stream",
			url:         "http://example.com/blob",
			expected:    formatJPEG,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := classifyFormat(tt.contentType, tt.url); got != tt.expected {
				t.Errorf("classifyFormat(%q, %q) = %q, want %q", tt.contentType, tt.url, got, tt.expected)
			}
		})
	}
}

func TestAssetName(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 8, 30, 12, 34, 56, 0, time.UTC)

	name := assetName("http://example.com/a.png", formatPNG, at)
	pattern := regexp.MustCompile(`^image_20260830_123456_[0-9a-f]{8}\.png$`)
	if !pattern.MatchString(name) {
		t.Errorf("assetName() = %q, want match for %s", name, pattern)
	}

	// Same URL at the same instant maps to the same name.
	if again := assetName("http://example.com/a.png", formatPNG, at); again != name {
		t.Errorf("assetName not stable: %q vs %q", name, again)
	}

	// Different URLs differ even at the same instant.
	other := assetName("http://example.com/b.png", formatPNG, at)
	if other == name {
		t.Errorf("assetName collision for distinct URLs: %q", name)
	}
}

func TestDownscale(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		width, height  int
		bound          int
		expectW, expectH int
	}{
		{
			name:  "wide image bounded by width",
			width: 200, height: 100, bound: 100,
			expectW: 100, expectH: 50,
		},
		{
			name:  "tall image bounded by height",
			width: 100, height: 400, bound: 100,
			expectW: 25, expectH: 100,
		},
		{
			name:  "small image never upscaled",
			width: 50, height: 40, bound: 100,
			expectW: 50, expectH: 40,
		},
		{
			name:  "exact bound unchanged",
			width: 100, height: 100, bound: 100,
			expectW: 100, expectH: 100,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			src := image.NewRGBA(image.Rect(0, 0, tt.width, tt.height))
			got := downscale(src, tt.bound)

			b := got.Bounds()
			if b.Dx() != tt.expectW || b.Dy() != tt.expectH {
				t.Errorf("downscale(%dx%d, %d) = %dx%d, want %dx%d",
					tt.width, tt.height, tt.bound, b.Dx(), b.Dy(), tt.expectW, tt.expectH)
			}
		})
	}
}

func TestFlattenDropsTransparency(t *testing.T) {
	t.Parallel()

	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255}) // opaque red
	src.SetNRGBA(1, 0, color.NRGBA{A: 0})           // fully transparent

	got := flatten(src)

	r, _, _, a := got.At(0, 0).RGBA()
	if a != 0xffff || r != 0xffff {
		t.Errorf("opaque pixel altered: got r=%d a=%d", r, a)
	}

	r, g, b, a := got.At(1, 0).RGBA()
	if r != 0xffff || g != 0xffff || b != 0xffff || a != 0xffff {
		t.Errorf("transparent pixel not flattened to white: r=%d g=%d b=%d a=%d", r, g, b, a)
	}
}

// pngBytes encodes a solid-color PNG for download fixtures.
func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 30, B: 30, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding fixture png: %v", err)
	}
	return buf.Bytes()
}

// countingImageServer serves a PNG under /ok.png, 404 elsewhere, and counts
// requests per path.
func countingImageServer(t *testing.T) (*httptest.Server, func(path string) int) {
	t.Helper()

	var mu sync.Mutex
	counts := make(map[string]int)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		counts[r.URL.Path]++
		mu.Unlock()

		if r.URL.Path != "/ok.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes(t, 40, 20))
	}))
	t.Cleanup(srv.Close)

	get := func(path string) int {
		mu.Lock()
		defer mu.Unlock()
		return counts[path]
	}
	return srv, get
}

func newTestResolver(client *http.Client) *mediaResolver {
	return &mediaResolver{
		client:      client,
		workers:     4,
		maxImageDim: 100,
		now:         time.Now,
		logf:        func(string, ...any) {},
	}
}

func TestResolveRewritesAndDeduplicates(t *testing.T) {
	t.Parallel()

	srv, requests := countingImageServer(t)
	okURL := srv.URL + "/ok.png"

	text := "![one](" + okURL + ")\n\nrepeat ![two](" + okURL + ")\n"
	imagesDir := filepath.Join(t.TempDir(), "images")

	r := newTestResolver(srv.Client())
	got, assets, skipped, err := r.Resolve(context.Background(), text, imagesDir)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if n := requests("/ok.png"); n != 1 {
		t.Errorf("duplicate URL fetched %d times, want 1", n)
	}
	if len(assets) != 1 {
		t.Fatalf("got %d assets, want 1", len(assets))
	}
	if len(skipped) != 0 {
		t.Errorf("skipped = %v, want none", skipped)
	}

	local := assetDirName + "/" + assets[0].Name
	if n := strings.Count(got, local); n != 2 {
		t.Errorf("local path %q appears %d times, want 2:\n%s", local, n, got)
	}
	if strings.Contains(got, okURL) {
		t.Errorf("remote URL still present:\n%s", got)
	}

	if _, err := os.Stat(filepath.Join(imagesDir, assets[0].Name)); err != nil {
		t.Errorf("asset file missing: %v", err)
	}
	if assets[0].Width != 40 || assets[0].Height != 20 {
		t.Errorf("asset dimensions = %dx%d, want 40x20", assets[0].Width, assets[0].Height)
	}
}

// Worker completion order must never change the rewritten document. The
// handler stalls one URL until the other has been served, in both
// directions, and the two resolutions must come out byte-identical.
func TestResolveCompletionOrderIndependence(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var stallPath string
	var released chan struct{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		stall := stallPath
		rel := released
		mu.Unlock()

		if r.URL.Path == stall {
			<-rel
		} else {
			defer close(rel)
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes(t, 16, 16))
	}))
	t.Cleanup(srv.Close)

	first := srv.URL + "/first.png"
	second := srv.URL + "/second.png"
	text := "![a](" + first + ")\n![b](" + second + ")\n"
	at := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)

	resolve := func(stall string) string {
		mu.Lock()
		stallPath = stall
		released = make(chan struct{})
		mu.Unlock()

		r := newTestResolver(srv.Client())
		r.now = func() time.Time { return at }
		got, assets, skipped, err := r.Resolve(context.Background(), text, filepath.Join(t.TempDir(), "images"))
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if len(assets) != 2 || len(skipped) != 0 {
			t.Fatalf("assets=%v skipped=%v, want two assets and no skips", assets, skipped)
		}
		return got
	}

	firstStalled := resolve("/first.png")
	secondStalled := resolve("/second.png")

	if firstStalled != secondStalled {
		t.Errorf("completion order changed the document:\n%q\nvs\n%q", firstStalled, secondStalled)
	}
	if strings.Contains(firstStalled, srv.URL) {
		t.Errorf("remote URL survived rewriting:\n%s", firstStalled)
	}
}

// A URL that is a strict prefix of another collected URL must not rewrite
// inside the longer reference.
func TestResolvePrefixURLs(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes(t, 12, 12))
	}))
	t.Cleanup(srv.Close)

	short := srv.URL + "/a.png"
	long := srv.URL + "/a.png?v=2"
	text := "![one](" + short + ")\n![two](" + long + ")\n"

	got, assets, skipped, err := newTestResolver(srv.Client()).
		Resolve(context.Background(), text, filepath.Join(t.TempDir(), "images"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(assets) != 2 || len(skipped) != 0 {
		t.Fatalf("assets=%v skipped=%v, want two assets and no skips", assets, skipped)
	}

	// Assets follow appearance order: assets[0] for the short URL.
	if !strings.Contains(got, "![one]("+assetDirName+"/"+assets[0].Name+")") {
		t.Errorf("short URL not rewritten to its own asset:\n%s", got)
	}
	if !strings.Contains(got, "![two]("+assetDirName+"/"+assets[1].Name+")") {
		t.Errorf("long URL not rewritten to its own asset:\n%s", got)
	}
	if strings.Contains(got, "?v=2") {
		t.Errorf("query suffix left dangling after rewrite:\n%s", got)
	}
}

func TestResolveDownscalesLargeImages(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes(t, 300, 150))
	}))
	t.Cleanup(srv.Close)

	r := newTestResolver(srv.Client())
	_, assets, _, err := r.Resolve(context.Background(),
		"![big]("+srv.URL+"/big.png)", filepath.Join(t.TempDir(), "images"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(assets) != 1 {
		t.Fatalf("got %d assets, want 1", len(assets))
	}
	if assets[0].Width != 100 || assets[0].Height != 50 {
		t.Errorf("dimensions = %dx%d, want 100x50", assets[0].Width, assets[0].Height)
	}
}

func TestResolveIsolatesFailures(t *testing.T) {
	t.Parallel()

	srv, _ := countingImageServer(t)
	okURL := srv.URL + "/ok.png"
	badURL := srv.URL + "/missing.png"

	text := "![good](" + okURL + ")\n![bad](" + badURL + ")\n"

	r := newTestResolver(srv.Client())
	got, assets, skipped, err := r.Resolve(context.Background(), text, filepath.Join(t.TempDir(), "images"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if len(assets) != 1 {
		t.Fatalf("got %d assets, want 1", len(assets))
	}
	if len(skipped) != 1 || skipped[0] != badURL {
		t.Errorf("skipped = %v, want [%s]", skipped, badURL)
	}
	if !strings.Contains(got, badURL) {
		t.Errorf("unreachable URL should stay as its remote reference:\n%s", got)
	}
	if strings.Contains(got, okURL) {
		t.Errorf("reachable URL not replaced:\n%s", got)
	}
}

func TestResolveSkipsFencedCodeBlocks(t *testing.T) {
	t.Parallel()

	srv, requests := countingImageServer(t)
	fencedURL := srv.URL + "/fenced.png"

	fence := "```\n![example](" + fencedURL + ")\n```"
	got, assets, skipped, err := newTestResolver(srv.Client()).
		Resolve(context.Background(), fence, filepath.Join(t.TempDir(), "images"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if got != fence {
		t.Errorf("fenced block altered:\n%s", got)
	}
	if len(assets) != 0 || len(skipped) != 0 {
		t.Errorf("fenced URL should not be resolved: assets=%v skipped=%v", assets, skipped)
	}
	if n := requests("/fenced.png"); n != 0 {
		t.Errorf("fenced URL fetched %d times, want 0", n)
	}
}

func TestResolveDecodeFailureRemovesFile(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("not an image"))
	}))
	t.Cleanup(srv.Close)

	imagesDir := filepath.Join(t.TempDir(), "images")
	url := srv.URL + "/broken.png"

	got, assets, skipped, err := newTestResolver(srv.Client()).
		Resolve(context.Background(), "![x]("+url+")", imagesDir)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if len(assets) != 0 {
		t.Errorf("assets = %v, want none", assets)
	}
	if len(skipped) != 1 {
		t.Errorf("skipped = %v, want the broken URL", skipped)
	}
	if !strings.Contains(got, url) {
		t.Errorf("broken URL should remain in text")
	}

	entries, err := os.ReadDir(imagesDir)
	if err != nil {
		t.Fatalf("reading images dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("partial file left behind: %v", entries)
	}
}

func TestResolveNoImages(t *testing.T) {
	t.Parallel()

	text := "plain text, no images"
	got, assets, skipped, err := newTestResolver(http.DefaultClient).
		Resolve(context.Background(), text, filepath.Join(t.TempDir(), "images"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != text || assets != nil || skipped != nil {
		t.Errorf("no-op resolve changed state: %q %v %v", got, assets, skipped)
	}
}
