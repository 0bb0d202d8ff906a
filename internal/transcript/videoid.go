package transcript

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	videoURLPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:youtube\.com\/watch\?v=|youtu\.be\/|youtube\.com\/embed\/|youtube\.com\/shorts\/)([^&\n?#]+)`),
		regexp.MustCompile(`youtube\.com\/watch\?.*v=([^&\n?#]+)`),
	}
	bareVideoID = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
)

// ParseVideoID extracts the video ID from a watch, short-link, embed or shorts
// URL. A bare 11 character ID is accepted as is.
func ParseVideoID(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if bareVideoID.MatchString(ref) {
		return ref, nil
	}
	for _, re := range videoURLPatterns {
		if m := re.FindStringSubmatch(ref); m != nil {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("invalid YouTube URL: %q", ref)
}
