package registration

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Fingerprint derives a stable hash identifying the registering client from
// the device name, organization code, selected request headers, and the
// declared capabilities. Capabilities are sorted so declaration order does
// not change the hash.
func Fingerprint(deviceName, orgCode string, headers map[string]string, capabilities []string) string {
	caps := append([]string(nil), capabilities...)
	sort.Strings(caps)

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(deviceName)
	b.WriteByte(':')
	b.WriteString(orgCode)
	for _, k := range keys {
		b.WriteByte(':')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(headers[k])
	}
	for _, c := range caps {
		b.WriteByte(':')
		b.WriteString(c)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
