package tools

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/edgecomet/netscan/internal/common/urlutil"
)

// CurlResult is the structured outcome of a curl-style fetch (spec.md §4.D).
type CurlResult struct {
	Body        []byte
	HTTPCode    int
	ContentType string
	Size        int
	OK          bool
}

// CurlOptions mirrors the per-site curl knobs spec.md §4.D/§6 describe.
type CurlOptions struct {
	Referer       string
	CustomHeaders map[string]string
	MaxRedirects  int
	Timeout       time.Duration
	UseBinary     bool // shell out to the real curl(1) instead of fetching in-process
}

// defaultUserAgent mimics a real browser, matching spec.md's "browser-mimicking headers".
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// CurlAdapter implements the curl external-tool adapter. Grounded on the
// teacher's internal/edge/bypass.BypassService.FetchContent for the
// in-process fasthttp fetch path, including its SSRF-safe dial; a second,
// binary-exec path covers cases needing byte-for-byte curl(1) behavior
// (e.g. `--compressed`/`--write-out` semantics the in-process path can't
// reproduce exactly).
type CurlAdapter struct {
	client     *fasthttp.Client
	binaryPath string
}

// NewCurlAdapter builds a CurlAdapter. binaryPath defaults to "curl" when empty.
func NewCurlAdapter(binaryPath string) *CurlAdapter {
	if binaryPath == "" {
		binaryPath = "curl"
	}
	return &CurlAdapter{
		client:     &fasthttp.Client{Dial: ssrfSafeDial},
		binaryPath: binaryPath,
	}
}

// Fetch performs a GET per spec.md §4.D, in-process by default.
func (a *CurlAdapter) Fetch(ctx context.Context, targetURL string, opts CurlOptions) (*CurlResult, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UseBinary {
		return a.fetchViaBinary(ctx, targetURL, opts)
	}
	return a.fetchInProcess(targetURL, opts)
}

func (a *CurlAdapter) fetchInProcess(targetURL string, opts CurlOptions) (*CurlResult, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(targetURL)
	req.Header.SetMethod("GET")
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept-Encoding", "gzip, deflate")
	if opts.Referer != "" {
		req.Header.Set("Referer", opts.Referer)
	}
	for name, value := range opts.CustomHeaders {
		req.Header.Set(name, value)
	}

	maxRedirects := opts.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 10
	}

	client := a.client
	client.ReadTimeout = opts.Timeout
	client.WriteTimeout = opts.Timeout

	err := client.DoRedirects(req, resp, maxRedirects)
	if err != nil {
		return &CurlResult{OK: false}, fmt.Errorf("curl fetch %q: %w", targetURL, err)
	}

	body := append([]byte(nil), resp.Body()...)
	return &CurlResult{
		Body:        body,
		HTTPCode:    resp.StatusCode(),
		ContentType: string(resp.Header.ContentType()),
		Size:        len(body),
		OK:          resp.StatusCode() >= 200 && resp.StatusCode() < 400,
	}, nil
}

func (a *CurlAdapter) fetchViaBinary(ctx context.Context, targetURL string, opts CurlOptions) (*CurlResult, error) {
	maxRedirects := opts.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 10
	}

	args := []string{
		"-s", "-L",
		"--max-time", strconv.Itoa(int(opts.Timeout.Seconds())),
		"--max-redirs", strconv.Itoa(maxRedirects),
		"--fail-with-body",
		"--compressed",
		"-A", defaultUserAgent,
		"--write-out", "\n%{http_code} %{content_type}",
	}
	if opts.Referer != "" {
		args = append(args, "-e", opts.Referer)
	}
	for name, value := range opts.CustomHeaders {
		args = append(args, "-H", fmt.Sprintf("%s: %s", name, value))
	}
	args = append(args, targetURL)

	out, err := runSubprocess(ctx, opts.Timeout+5*time.Second, a.binaryPath, args...)
	if err != nil && len(out) == 0 {
		return &CurlResult{OK: false}, err
	}

	body, code, contentType := splitCurlWriteOut(out)
	return &CurlResult{
		Body:        body,
		HTTPCode:    code,
		ContentType: contentType,
		Size:        len(body),
		OK:          code >= 200 && code < 400,
	}, nil
}

// splitCurlWriteOut separates the body from the trailing "--write-out" line
// this adapter appends to every invocation.
func splitCurlWriteOut(out []byte) (body []byte, httpCode int, contentType string) {
	idx := strings.LastIndexByte(string(out), '\n')
	if idx < 0 {
		return out, 0, ""
	}
	body = out[:idx]
	trailer := strings.TrimSpace(string(out[idx+1:]))
	parts := strings.SplitN(trailer, " ", 2)
	if len(parts) > 0 {
		httpCode, _ = strconv.Atoi(parts[0])
	}
	if len(parts) > 1 {
		contentType = parts[1]
	}
	return body, httpCode, contentType
}

// ssrfSafeDial resolves the hostname, validates all resolved IPs are
// public, then connects -- adapted verbatim from the teacher's
// internal/edge/bypass.ssrfSafeDial, preventing DNS-rebinding to a
// private/internal address via a curl-fetched URL.
func ssrfSafeDial(addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", addr, err)
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, fmt.Errorf("DNS resolution failed for %q: %w", host, err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no IP addresses found for %q", host)
	}

	for _, ip := range ips {
		if err := urlutil.ValidateResolvedIP(ip); err != nil {
			return nil, fmt.Errorf("SSRF protection for %q: %w", host, err)
		}
	}

	return fasthttp.DialTimeout(net.JoinHostPort(ips[0].String(), port), 10*time.Second)
}
