package timesync

import (
	"strconv"
	"strings"

	"crocker/internal/errcode"
)

// ClaimTag prefixes a tagged time claim: "TIME:1735689600".
const ClaimTag = "TIME:"

// minClaimLen rejects payloads too short to carry a plausible timestamp.
const minClaimLen = 8

var (
	ErrClaimTooShort = errcode.New(errcode.ParseError, "timesync.parse_claim", "payload too short")
	ErrClaimNoDigits = errcode.New(errcode.ParseError, "timesync.parse_claim", "no digits")
)

// ParseClaim decodes a time-claim payload, either "TIME:<digits>" or bare
// "<digits>". Leading whitespace is skipped and anything after the digits
// is ignored.
func ParseClaim(payload []byte) (uint64, error) {
	const op = "timesync.parse_claim"
	if len(payload) < minClaimLen {
		return 0, ErrClaimTooShort
	}

	s := strings.TrimLeft(string(payload), " \t\r\n")
	s = strings.TrimPrefix(s, ClaimTag)
	s = strings.TrimLeft(s, " \t")

	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, ErrClaimNoDigits
	}
	v, err := strconv.ParseUint(s[:end], 10, 64)
	if err != nil {
		return 0, errcode.Wrap(errcode.ParseError, op, err)
	}
	return v, nil
}
