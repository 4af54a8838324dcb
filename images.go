package md2epub

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	xdraw "golang.org/x/image/draw"

	"github.com/alnah/go-md2epub/internal/fileutil"

	// WebP decode support; WebP sources are always re-encoded as JPEG.
	_ "golang.org/x/image/webp"
)

// Asset format constants. Anything else, WebP included, normalizes to JPEG.
const (
	formatJPEG = "jpeg"
	formatPNG  = "png"
	formatGIF  = "gif"
)

// maxAssetSize caps a single image download.
const maxAssetSize = 20 << 20 // 20 MB

// assetDirName is the workspace subdirectory referenced by rewritten links.
const assetDirName = "images"

// mediaResolver downloads and normalizes every remote image referenced in a
// composite document, rewriting references to local workspace paths.
type mediaResolver struct {
	client      *http.Client
	workers     int
	maxImageDim int
	now         func() time.Time
	logf        func(format string, args ...any)
}

// Resolve rewrites every resolvable remote image reference in text to
// images/<name> and returns the rewritten text, the created assets, and the
// URLs that failed. Fenced code blocks are shielded, so image-like syntax in
// example code is never touched.
//
// Fetch and transcode run on a bounded worker pool. A failing URL never
// aborts its siblings, and every task completes before the first text
// substitution is applied, so completion order cannot affect the result.
func (r *mediaResolver) Resolve(ctx context.Context, text, imagesDir string) (string, []LocalAsset, []string, error) {
	fences := newCodeProtector("fence")
	protected := fences.protect(text, fencedBlockRE)

	urls := scanImageURLs(protected)
	if len(urls) == 0 {
		return text, nil, nil, nil
	}

	if err := fileutil.EnsureDir(imagesDir, dirPermissions); err != nil {
		return "", nil, nil, fmt.Errorf("%w: %v", ErrWorkspaceCreate, err)
	}

	workers := r.workers
	if workers > len(urls) {
		workers = len(urls)
	}

	resolved := make(map[string]LocalAsset, len(urls))
	var mu sync.Mutex
	var wg sync.WaitGroup
	jobs := make(chan string, len(urls))

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range jobs {
				asset, err := r.fetchImage(ctx, u, imagesDir)
				if err != nil {
					r.logf("image %s: %v", u, err)
					continue
				}
				mu.Lock()
				resolved[u] = asset
				mu.Unlock()
			}
		}()
	}

	for _, u := range urls {
		jobs <- u
	}
	close(jobs)
	wg.Wait() // join-all barrier: no substitution before every task is done

	var assets []LocalAsset
	var skipped []string
	byLength := make([]string, 0, len(resolved))
	for _, u := range urls {
		asset, ok := resolved[u]
		if !ok {
			skipped = append(skipped, u)
			continue
		}
		assets = append(assets, asset)
		byLength = append(byLength, u)
	}

	// Longest URLs first: a URL that is a prefix of another must never
	// rewrite inside the longer occurrence.
	sort.SliceStable(byLength, func(i, j int) bool { return len(byLength[i]) > len(byLength[j]) })
	for _, u := range byLength {
		protected = strings.ReplaceAll(protected, u, assetDirName+"/"+resolved[u].Name)
	}

	return fences.restore(protected), assets, skipped, nil
}

// fetchImage downloads one URL into dir and normalizes it in place.
func (r *mediaResolver) fetchImage(ctx context.Context, rawURL, dir string) (LocalAsset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return LocalAsset{}, fmt.Errorf("%w: %v", ErrImageFetch, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return LocalAsset{}, fmt.Errorf("%w: %v", ErrImageFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return LocalAsset{}, fmt.Errorf("%w: status %d", ErrImageFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetSize+1))
	if err != nil {
		return LocalAsset{}, fmt.Errorf("%w: %v", ErrImageFetch, err)
	}
	if len(body) > maxAssetSize {
		return LocalAsset{}, fmt.Errorf("%w: response exceeds %d bytes", ErrImageFetch, maxAssetSize)
	}

	format := classifyFormat(resp.Header.Get("Content-Type"), rawURL)
	name := assetName(rawURL, format, r.now())
	assetPath := filepath.Join(dir, name)

	// Write the original bytes first, then normalize in place. A decode
	// failure removes the partial file and counts as a fetch failure.
	if err := os.WriteFile(assetPath, body, filePermissions); err != nil {
		return LocalAsset{}, fmt.Errorf("%w: %v", ErrImageFetch, err)
	}

	width, height, err := normalizeImage(assetPath, format, r.maxImageDim)
	if err != nil {
		_ = os.Remove(assetPath)
		return LocalAsset{}, err
	}

	info, err := os.Stat(assetPath)
	if err != nil {
		return LocalAsset{}, fmt.Errorf("%w: %v", ErrImageFetch, err)
	}

	return LocalAsset{
		Name:   name,
		URL:    rawURL,
		Format: format,
		Width:  width,
		Height: height,
		Bytes:  info.Size(),
	}, nil
}

// classifyFormat picks the target asset format from the response content
// type, falling back to the URL's file extension, defaulting to JPEG.
func classifyFormat(contentType, rawURL string) string {
	ct := strings.ToLower(contentType)
	ext := strings.ToLower(path.Ext(urlPath(rawURL)))

	switch {
	case strings.Contains(ct, "jpeg"), strings.Contains(ct, "jpg"),
		ext == ".jpg", ext == ".jpeg":
		return formatJPEG
	case strings.Contains(ct, "png"), ext == ".png":
		return formatPNG
	case strings.Contains(ct, "gif"), ext == ".gif":
		return formatGIF
	default:
		// WebP and every unrecognized format normalize to JPEG.
		return formatJPEG
	}
}

// urlPath returns the path component of rawURL, ignoring query and fragment.
func urlPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Path
}

// assetName builds a collision-free filename from the fetch time and a short
// hash of the source URL. The same URL always maps to the same logical asset
// within one run because it is fetched exactly once.
func assetName(rawURL, format string, t time.Time) string {
	sum := sha256.Sum256([]byte(rawURL))
	return fmt.Sprintf("image_%s_%s%s",
		t.Format("20060102_150405"), hex.EncodeToString(sum[:4]), formatExt(format))
}

// formatExt maps an asset format to its file extension.
func formatExt(format string) string {
	switch format {
	case formatPNG:
		return ".png"
	case formatGIF:
		return ".gif"
	default:
		return ".jpg"
	}
}

// normalizeImage re-decodes the file at assetPath, downscales it so neither
// dimension exceeds maxDim, flattens transparency when targeting JPEG, and
// re-encodes it in place. Returns the final pixel dimensions.
func normalizeImage(assetPath, format string, maxDim int) (int, int, error) {
	f, err := os.Open(assetPath) // #nosec G304 -- path built from our own asset name
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	img, _, err := image.Decode(f)
	_ = f.Close()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}

	img = downscale(img, maxDim)

	out, err := os.Create(assetPath) // #nosec G304 -- same path we just wrote
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	defer out.Close()

	switch format {
	case formatPNG:
		err = png.Encode(out, img)
	case formatGIF:
		err = gif.Encode(out, img, nil)
	default:
		// JPEG has no alpha channel; composite onto white first.
		err = jpeg.Encode(out, flatten(img), &jpeg.Options{Quality: jpegQuality})
	}
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}

	b := img.Bounds()
	return b.Dx(), b.Dy(), nil
}

// downscale resizes img so neither dimension exceeds bound, preserving
// aspect ratio. Images already within the bound are returned unchanged;
// nothing is ever upscaled.
func downscale(img image.Image, bound int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= bound && h <= bound {
		return img
	}

	scale := float64(bound) / float64(w)
	if h > w {
		scale = float64(bound) / float64(h)
	}
	nw := max(int(float64(w)*scale+0.5), 1)
	nh := max(int(float64(h)*scale+0.5), 1)

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst
}

// flatten composites img onto a white background, dropping any transparency.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}
