package fetch

// impersonationHeaders is the static chrome131 fingerprint sent with every
// source request. The set is versioned with the impersonated client; update
// it as a block when bumping the browser version.
func impersonationHeaders(appID string) map[string]string {
	return map[string]string{
		"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
			"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		"Accept":           "*/*",
		"Accept-Language":  "en-US,en;q=0.9",
		"X-IG-App-ID":      appID,
		"X-Requested-With": "XMLHttpRequest",
		"X-ASBD-ID":        "129477",
		"Referer":          "https://www.instagram.com/",
		"Origin":           "https://www.instagram.com",
	}
}
