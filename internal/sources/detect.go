package sources

import "regexp"

var serviceFeedPatterns = []struct {
	service string
	pattern *regexp.Regexp
}{
	{"YouTube", regexp.MustCompile(`(?i)^https?://(www\.)?youtube\.com/rss/user/.+/videos\.rss`)},
	{"YouTube", regexp.MustCompile(`(?i)^https?://gdata\.youtube\.com/feeds/base/videos/-/.+`)},
	{"YouTube", regexp.MustCompile(`(?i)^https?://(www\.)?youtube\.com/feeds/videos\.xml\?(channel_id|user)=.+`)},
	{"blip.tv", regexp.MustCompile(`(?i)^https?://.+\.blip\.tv/\?skin=rss`)},
	{"blip.tv", regexp.MustCompile(`(?i)^https?://.+\.blip\.tv/rss`)},
	{"Vimeo", regexp.MustCompile(`(?i)^https?://(www\.)?vimeo\.com/user:?[0-9]+/(clips/|videos/)?rss`)},
}

// DetectService names the video service a user feed belongs to, or returns
// "" for ordinary feeds.
func DetectService(feedURL string) string {
	for _, p := range serviceFeedPatterns {
		if p.pattern.MatchString(feedURL) {
			return p.service
		}
	}
	return ""
}
