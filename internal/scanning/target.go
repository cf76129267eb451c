package scanning

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gunout/network-scanner/internal/errors"
)

const defaultScheme = "https://"

// NewScanTarget normalizes raw user input into a ScanTarget. Input without a
// scheme gets https:// prepended; only http and https are accepted.
func NewScanTarget(raw string) (ScanTarget, error) {
	input := strings.TrimSpace(raw)
	if input == "" {
		return ScanTarget{}, errors.ErrEmptyTarget()
	}

	if !strings.Contains(input, "://") {
		input = defaultScheme + input
	}

	parsed, err := url.Parse(input)
	if err != nil {
		return ScanTarget{}, errors.ErrInvalidTarget(raw, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ScanTarget{}, errors.ErrInvalidTarget(raw,
			fmt.Errorf("unsupported scheme %q", parsed.Scheme))
	}

	host := parsed.Hostname()
	if host == "" {
		return ScanTarget{}, errors.ErrInvalidTarget(raw, fmt.Errorf("missing host"))
	}

	return ScanTarget{
		URL:  parsed.String(),
		Host: strings.ToLower(host),
	}, nil
}
