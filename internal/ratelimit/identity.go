package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const unknownAddress = "unknown"

// ClientIdentity combines the best available client address with a coarse
// hash of the user agent. It is a throttling key, not a fingerprint.
func ClientIdentity(request *http.Request) string {
	return clientAddress(request) + ":" + userAgentDigest(request.UserAgent())
}

func clientAddress(request *http.Request) string {
	if forwarded := request.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if address := strings.TrimSpace(first); address != "" {
			return address
		}
	}
	if realIP := strings.TrimSpace(request.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	if request.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(request.RemoteAddr); err == nil && host != "" {
			return host
		}
		return request.RemoteAddr
	}
	return unknownAddress
}

func userAgentDigest(userAgent string) string {
	return strconv.FormatUint(xxhash.Sum64String(userAgent)&0xffffffff, 36)
}
