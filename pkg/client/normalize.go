package client

import (
	"fmt"
	"strings"
)

// NormalizeAPIBase canonicalizes an API base URL to the
// scheme://host[:port]/api/v1 shape. Trailing slashes are trimmed, a missing
// /api/v1 suffix is appended, and a bare /api suffix is completed. Inputs
// without an http or https scheme are rejected.
func NormalizeAPIBase(value string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(value), "/")
	if base == "" {
		return "", fmt.Errorf("api base cannot be empty")
	}

	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return "", fmt.Errorf("api base %q must use an http or https scheme", value)
	}

	if !strings.HasSuffix(base, "/api/v1") {
		if strings.HasSuffix(base, "/api") {
			base += "/v1"
		} else {
			base += "/api/v1"
		}
	}

	return base, nil
}
