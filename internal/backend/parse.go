package backend

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	abbrevCountRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*([kmb])`)
	plainCountRe  = regexp.MustCompile(`(\d+(?:,\d+)*)`)
	ogCountsRe    = regexp.MustCompile(`(?i)([\d.,]+[kmb]?)\s+followers?,\s*([\d.,]+[kmb]?)\s+following,\s*([\d.,]+[kmb]?)\s+posts`)
)

// parseCount turns display counts like "1,234", "12.3K" or "1m" into ints.
func parseCount(text string) int {
	text = strings.ToLower(strings.TrimSpace(text))

	if matches := abbrevCountRe.FindStringSubmatch(text); len(matches) >= 3 {
		num, _ := strconv.ParseFloat(matches[1], 64)
		switch matches[2] {
		case "k":
			return int(num * 1000)
		case "m":
			return int(num * 1000000)
		case "b":
			return int(num * 1000000000)
		}
	}

	if matches := plainCountRe.FindStringSubmatch(text); len(matches) >= 2 {
		numStr := strings.ReplaceAll(matches[1], ",", "")
		if num, err := strconv.Atoi(numStr); err == nil {
			return num
		}
	}

	return 0
}

// parseOGCounts extracts follower/following/post counts from a profile page's
// og:description meta content, e.g. "1,234 Followers, 56 Following, 78 Posts".
func parseOGCounts(content string) (followers, following, posts int) {
	matches := ogCountsRe.FindStringSubmatch(content)
	if len(matches) < 4 {
		return 0, 0, 0
	}
	return parseCount(matches[1]), parseCount(matches[2]), parseCount(matches[3])
}

// firstLDJSON returns the first ld+json script payload of a document, if any.
func firstLDJSON(doc *goquery.Document) []byte {
	script := doc.Find("script[type='application/ld+json']").First()
	if script.Length() == 0 {
		return nil
	}
	return []byte(strings.TrimSpace(script.Text()))
}

func metaContent(doc *goquery.Document, property string) string {
	content, _ := doc.Find("meta[property='" + property + "']").First().Attr("content")
	return content
}

var shortcodePathRe = regexp.MustCompile(`(?:^|/)p/([A-Za-z0-9_-]+)`)

// ParseShortcodeTarget recognizes single-post targets: either a bare
// "p/<shortcode>" or a full instagram.com/p/<shortcode>/ URL. Anything else
// is a profile target.
func ParseShortcodeTarget(target string) (string, bool) {
	target = strings.TrimSpace(target)
	if strings.Contains(target, "instagram.com") || strings.HasPrefix(target, "p/") || strings.HasPrefix(target, "/p/") {
		if matches := shortcodePathRe.FindStringSubmatch(target); len(matches) > 1 {
			return matches[1], true
		}
	}
	return "", false
}
