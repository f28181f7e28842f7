// Package providers defines the contract between the fallback orchestrator
// and the per-platform adapters. Each adapter hides its vendor envelope and
// hands back either raw text or image bytes.
package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"regexp"
	"strings"
	"syscall"
	"time"

	"wordbento/internal/domain"
	"wordbento/internal/storage"
)

// TextRequest is a single-turn text generation request.
type TextRequest struct {
	System string
	Prompt string
}

// TextAdapter returns the raw text payload of one generation call.
type TextAdapter interface {
	GenerateText(ctx context.Context, cred domain.Credential, req TextRequest) (string, error)
}

// ImageRequest describes an illustration to generate.
type ImageRequest struct {
	Prompt string
	Size   string
}

// Image is one generated picture. Data is always populated; URL is the
// remote location when the provider returned a link.
type Image struct {
	URL      string
	Data     []byte
	MIMEType string
}

// ImageAdapter returns the images produced by one generation call.
type ImageAdapter interface {
	GenerateImages(ctx context.Context, cred domain.Credential, req ImageRequest) ([]Image, error)
}

// Error describes why a single platform attempt failed.
type Error struct {
	Platform string
	Reason   string
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Platform, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", e.Platform, e.Reason, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{domain.ErrProviderUnavailable}
	}
	return []error{domain.ErrProviderUnavailable, e.Err}
}

// Unavailable wraps err as a provider failure for platform.
func Unavailable(platform, reason string, err error) error {
	return &Error{Platform: platform, Reason: reason, Err: err}
}

// MaxImageBytes caps a single downloaded image.
const MaxImageBytes = 20 << 20

// ErrBlockedAddress is returned when a download would reach a non-public address.
var ErrBlockedAddress = errors.New("download target is not a public address")

// sharedAddressSpace is the carrier-grade NAT range, which netip does not flag as private.
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// PublicAddr reports whether ip is routable on the public internet.
func PublicAddr(ip netip.Addr) bool {
	ip = ip.Unmap()
	switch {
	case !ip.IsValid(), !ip.IsGlobalUnicast():
		return false
	case ip.IsPrivate(), ip.IsLoopback(), ip.IsLinkLocalUnicast():
		return false
	case sharedAddressSpace.Contains(ip):
		return false
	}
	return true
}

// refusePrivate is a dialer Control hook. It runs after name resolution for
// every connection, redirects included, so rebinding a name does not help.
func refusePrivate(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return err
	}
	if !PublicAddr(ip) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, ip)
	}
	return nil
}

// NewDownloadClient returns the client used to fetch provider image links.
// Links come from model output, so it only dials public addresses and ignores
// proxy settings.
func NewDownloadClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: 10 * time.Second, Control: refusePrivate}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:                 nil,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: timeout,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// Download fetches an image URL returned by a provider. The body must sniff
// as a raster image; the declared Content-Type is not trusted. A nil client
// means NewDownloadClient.
func Download(ctx context.Context, client *http.Client, imageURL string) (Image, error) {
	parsed, err := url.Parse(strings.TrimSpace(imageURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return Image{}, fmt.Errorf("invalid image url: %s", imageURL)
	}
	if client == nil {
		client = NewDownloadClient(60 * time.Second)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return Image{}, fmt.Errorf("build download request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return Image{}, fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return Image{}, fmt.Errorf("download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes+1))
	if err != nil {
		return Image{}, fmt.Errorf("read image: %w", err)
	}
	if len(data) > MaxImageBytes {
		return Image{}, fmt.Errorf("image exceeds %d bytes", MaxImageBytes)
	}
	if len(data) == 0 {
		return Image{}, fmt.Errorf("empty image body")
	}
	mime, ok := storage.SniffImage(data)
	if !ok {
		return Image{}, fmt.Errorf("download is not an image: %s", mime)
	}
	return Image{URL: parsed.String(), Data: data, MIMEType: mime}, nil
}

// DownloadAll fetches every URL, skipping the ones that fail. The returned
// error is the last download failure when nothing could be fetched.
func DownloadAll(ctx context.Context, client *http.Client, urls []string) ([]Image, error) {
	var (
		out     []Image
		lastErr error
	)
	for _, u := range urls {
		img, err := Download(ctx, client, u)
		if err != nil {
			lastErr = err
			continue
		}
		out = append(out, img)
	}
	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

var linkPattern = regexp.MustCompile(`https?://[^\s"]+`)

// ExtractURLs returns the distinct http(s) links found in text, in order.
func ExtractURLs(text string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, m := range linkPattern.FindAllString(text, -1) {
		m = strings.TrimRight(m, ")].,'>")
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
