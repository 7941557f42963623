package fetch

import (
	"bytes"
	"net/http"
)

// BlockType names an anti-bot interstitial served instead of the document.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockRateLimit  BlockType = "rate_limit"
)

// marker is a fingerprint of an interstitial. Markup markers are class names,
// ids, and script paths; prose markers are visible wording, which an answer
// page may legitimately quote.
type marker struct {
	text   []byte
	block  BlockType
	markup bool
}

var markers = []marker{
	{[]byte("cf-browser-verification"), BlockCloudflare, true},
	{[]byte("cf-challenge"), BlockCloudflare, true},
	{[]byte("challenge-platform"), BlockCloudflare, true},
	{[]byte("checking your browser before accessing"), BlockCloudflare, false},
	{[]byte("g-recaptcha"), BlockCaptcha, true},
	{[]byte("h-captcha"), BlockCaptcha, true},
	{[]byte("hcaptcha.com"), BlockCaptcha, true},
	{[]byte("captcha-delivery"), BlockCaptcha, true},
	{[]byte("/captcha/"), BlockCaptcha, true},
	{[]byte("unusual traffic from your computer"), BlockRateLimit, false},
	{[]byte("too many requests"), BlockRateLimit, false},
}

// DetectBlock reports whether a response is an anti-bot page.
//
// With a response, a 2xx is always the document: its body is never
// reclassified, so pages that discuss captchas or rate limits stay usable.
// Error responses are scanned for every marker. With a nil response (a
// rendered page, no status available), only markup markers found inside a
// tag count.
func DetectBlock(resp *http.Response, body []byte) BlockType {
	if resp != nil {
		switch code := resp.StatusCode; {
		case code >= 200 && code <= 299:
			return BlockNone
		case code == http.StatusTooManyRequests:
			return BlockRateLimit
		case code == http.StatusForbidden || code == http.StatusServiceUnavailable:
			if resp.Header.Get("Cf-Ray") != "" || resp.Header.Get("Cf-Mitigated") != "" ||
				resp.Header.Get("Server") == "cloudflare" {
				return BlockCloudflare
			}
		}
		return scanMarkers(bytes.ToLower(body), false)
	}
	return scanMarkers(bytes.ToLower(body), true)
}

func scanMarkers(lower []byte, tagsOnly bool) BlockType {
	for _, m := range markers {
		if tagsOnly {
			if m.markup && inTag(lower, m.text) {
				return m.block
			}
			continue
		}
		if bytes.Contains(lower, m.text) {
			return m.block
		}
	}
	return BlockNone
}

// inTag reports whether needle occurs between a '<' and its closing '>'.
func inTag(b, needle []byte) bool {
	for off := 0; ; {
		i := bytes.Index(b[off:], needle)
		if i < 0 {
			return false
		}
		i += off
		if bytes.LastIndexByte(b[:i], '<') > bytes.LastIndexByte(b[:i], '>') {
			return true
		}
		off = i + len(needle)
	}
}
