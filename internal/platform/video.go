// Package platform recognises hosted video URLs and reduces them to the
// (platform, video id) pair used as the duplicate detection key.
package platform

import (
	"net/url"
	"regexp"
	"strings"
)

// Known platforms.
const (
	YouTube   = "youtube"
	TikTok    = "tiktok"
	Instagram = "instagram"
)

// Ref identifies one video on one platform.
type Ref struct {
	Platform string
	VideoID  string
}

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// Detect parses locator and returns the video it names. ok is false for
// anything that is not a recognised video URL.
func Detect(locator string) (Ref, bool) {
	raw := strings.TrimSpace(locator)
	if raw == "" {
		return Ref{}, false
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return Ref{}, false
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")
	segs := pathSegments(u.Path)

	var ref Ref
	switch {
	case host == "youtu.be":
		ref = Ref{YouTube, first(segs)}
	case host == "youtube.com" || host == "music.youtube.com":
		ref.Platform = YouTube
		switch {
		case len(segs) == 1 && segs[0] == "watch":
			ref.VideoID = u.Query().Get("v")
		case len(segs) >= 2 && (segs[0] == "shorts" || segs[0] == "embed" || segs[0] == "live"):
			ref.VideoID = segs[1]
		}
	case host == "tiktok.com" || strings.HasSuffix(host, ".tiktok.com"):
		ref.Platform = TikTok
		for i := 0; i+1 < len(segs); i++ {
			if segs[i] == "video" {
				ref.VideoID = segs[i+1]
				break
			}
		}
	case host == "instagram.com":
		ref.Platform = Instagram
		for i := 0; i+1 < len(segs); i++ {
			if segs[i] == "reel" || segs[i] == "reels" || segs[i] == "p" {
				ref.VideoID = segs[i+1]
				break
			}
		}
	default:
		return Ref{}, false
	}

	if !videoIDPattern.MatchString(ref.VideoID) {
		return Ref{}, false
	}
	return ref, true
}

// DetectAny returns the first locator that names a recognised video.
func DetectAny(locators []string) (Ref, bool) {
	for _, l := range locators {
		if ref, ok := Detect(l); ok {
			return ref, true
		}
	}
	return Ref{}, false
}

func pathSegments(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func first(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}
