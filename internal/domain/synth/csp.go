package synth

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// policy builds the content-security-policy shared by every template.
type policy struct {
	// locked allows only the bootstrap script, by hash.
	locked string
	// open allows the host origin, the library CDNs and blob: for the
	// profiles that run code.
	open string
}

func newPolicy(origin string, external []string, bootstrap string) policy {
	sum := sha256.Sum256([]byte(bootstrap))
	hash := "'sha256-" + base64.StdEncoding.EncodeToString(sum[:]) + "'"

	locked := directives(
		"default-src 'none'",
		"script-src "+hash,
		"style-src 'unsafe-inline'",
		"img-src data: blob: https:",
		"font-src data: https:",
		"media-src data: blob: https:",
	)

	sources := append([]string{"'self'", origin}, external...)
	list := strings.Join(sources, " ")
	open := directives(
		"default-src 'self' "+origin+" blob: data:",
		"script-src "+list+" 'unsafe-inline' 'unsafe-eval' blob:",
		"style-src "+list+" 'unsafe-inline'",
		"connect-src "+list+" blob: data:",
		"img-src * data: blob:",
		"font-src * data:",
		"worker-src blob:",
	)
	return policy{locked: locked, open: open}
}

func directives(parts ...string) string {
	return strings.Join(parts, "; ")
}
