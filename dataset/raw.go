package dataset

import (
	"regexp"
	"strings"
)

// RawTerpene is the terpene identity given to unblended oil.
const RawTerpene = "Raw"

var (
	d9Distillate = regexp.MustCompile(`d9.*distillate`)
	d8Distillate = regexp.MustCompile(`d8.*distillate`)
)

// IsRaw reports whether a (media, terpene) pair describes raw, unblended oil.
//
// A row is raw when the terpene is empty, "nan" or "Raw"; when it equals the
// media name; when a d9/d8 media is paired with a matching distillate; or when
// the terpene name contains the media name and is not a "/" blend.
func IsRaw(media, terpene string) bool {
	t := strings.ToLower(strings.TrimSpace(terpene))
	m := strings.ToLower(strings.TrimSpace(media))

	switch {
	case t == "", t == "nan", t == "raw":
		return true
	case t == m:
		return true
	case m == "d9" && d9Distillate.MatchString(t):
		return true
	case m == "d8" && d8Distillate.MatchString(t):
		return true
	case m != "" && strings.Contains(t, m) && !strings.Contains(t, "/"):
		return true
	}

	return false
}
