package backend

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/buger/jsonparser"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"instagram-dispatcher/pkg/types"
)

// BrowserClient drives a real browser through chromedp, with a Selenium
// Firefox fallback when Chrome automation fails. Its session artifact is the
// cookie bundle exported from the browser after login.
type BrowserClient struct {
	creds       Credentials
	sessionFile string
	userAgent   string
	proxyURL    string
	cookies     []Cookie
	logger      *logrus.Logger
	loggedIn    bool
}

func NewBrowserClient(creds Credentials, sessionFile, userAgent string, logger *logrus.Logger) *BrowserClient {
	return &BrowserClient{
		creds:       creds,
		sessionFile: sessionFile,
		userAgent:   userAgent,
		logger:      logger,
	}
}

func (bc *BrowserClient) Name() string {
	return "browser"
}

func (bc *BrowserClient) UseProxy(proxyURL string) error {
	// Applied when the next browser context is allocated.
	bc.proxyURL = proxyURL
	return nil
}

func (bc *BrowserClient) RestoreSession(ctx context.Context) error {
	artifact, err := loadSessionArtifact(bc.sessionFile, bc.creds.Username)
	if err != nil {
		return err
	}
	bc.cookies = artifact.Cookies
	bc.logger.Infof("[browser] loaded %d cookies from session file", len(bc.cookies))

	html, err := bc.renderPage(ctx, webBaseURL+"/", 0)
	if err != nil {
		return fmt.Errorf("session validation failed: %w", err)
	}
	if !looksLoggedIn(html) {
		return ErrLoginRequired
	}

	bc.loggedIn = true
	return nil
}

func (bc *BrowserClient) Login(ctx context.Context) error {
	if !isChromeAvailable() {
		return fmt.Errorf("no chrome binary found for browser login")
	}

	bc.logger.Infof("[browser] logging in with %s...", bc.creds.Username)

	allocCtx, cancel, err := bc.newBrowserContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	var html string
	var browserCookies []*network.Cookie
	err = chromedp.Run(allocCtx,
		chromedp.Navigate(webBaseURL+"/accounts/login/"),
		chromedp.WaitVisible(`input[name="username"]`, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="username"]`, bc.creds.Username, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="password"]`, bc.creds.Password, chromedp.ByQuery),
		chromedp.Click(`button[type="submit"]`, chromedp.ByQuery),
		chromedp.Sleep(6*time.Second),
		chromedp.OuterHTML("html", &html),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var cookieErr error
			browserCookies, cookieErr = network.GetCookies().Do(ctx)
			return cookieErr
		}),
	)
	if err != nil {
		return fmt.Errorf("browser login failed: %w", err)
	}

	switch {
	case strings.Contains(html, "two_factor") || strings.Contains(html, "verification code"):
		return ErrTwoFactorRequired
	case strings.Contains(html, "/challenge/"):
		return ErrCheckpoint
	case !looksLoggedIn(html):
		return fmt.Errorf("login rejected for %s", bc.creds.Username)
	}

	bc.cookies = bc.cookies[:0]
	for _, cookie := range browserCookies {
		bc.cookies = append(bc.cookies, Cookie{
			Name:     cookie.Name,
			Value:    cookie.Value,
			Domain:   cookie.Domain,
			Path:     cookie.Path,
			Secure:   cookie.Secure,
			HttpOnly: cookie.HTTPOnly,
		})
	}

	bc.logger.Infof("[browser] login successful, captured %d cookies", len(bc.cookies))
	bc.loggedIn = true
	return nil
}

func (bc *BrowserClient) SaveSession() error {
	artifact := &sessionArtifact{
		Username:  bc.creds.Username,
		UserAgent: bc.userAgent,
		SavedAt:   time.Now(),
		Cookies:   bc.cookies,
	}

	if err := artifact.save(bc.sessionFile); err != nil {
		return err
	}
	bc.logger.Infof("[browser] saved %d cookies to session file", len(bc.cookies))
	return nil
}

func (bc *BrowserClient) FetchProfile(ctx context.Context, username string, maxPosts int) (*types.Profile, []types.Post, error) {
	html, err := bc.renderPage(ctx, fmt.Sprintf("%s/%s/", webBaseURL, username), 2)
	if err != nil {
		return nil, nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse profile page: %w", err)
	}

	if pageSaysNotFound(doc) {
		return nil, nil, ErrNotFound
	}

	profile := bc.extractProfile(doc, username)
	posts := bc.extractGridPosts(doc, maxPosts)
	return profile, posts, nil
}

func (bc *BrowserClient) FetchPost(ctx context.Context, shortcode string) (*types.Post, error) {
	html, err := bc.renderPage(ctx, fmt.Sprintf("%s/p/%s/", webBaseURL, shortcode), 0)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse post page: %w", err)
	}

	if pageSaysNotFound(doc) {
		return nil, ErrNotFound
	}

	return parsePostPage(doc, shortcode)
}

// renderPage loads a page in chromedp with the session cookies applied,
// scrolling scrolls times to trigger lazy content, and returns the final
// HTML. When chromedp fails it falls back to Selenium Firefox.
func (bc *BrowserClient) renderPage(ctx context.Context, pageURL string, scrolls int) (string, error) {
	if isChromeAvailable() {
		html, err := bc.renderPageChromedp(ctx, pageURL, scrolls)
		if err == nil {
			return html, nil
		}
		bc.logger.Warnf("[browser] chromedp rendering failed: %v", err)
	} else {
		bc.logger.Warn("[browser] no chrome binary found, trying Selenium Firefox")
	}

	renderer, err := newSeleniumRenderer(bc.logger, bc.userAgent)
	if err != nil {
		return "", fmt.Errorf("both chromedp and Selenium rendering unavailable: %w", err)
	}
	defer renderer.Close()

	return renderer.RenderPage(pageURL, bc.cookies, scrolls)
}

func (bc *BrowserClient) renderPageChromedp(ctx context.Context, pageURL string, scrolls int) (string, error) {
	allocCtx, cancel, err := bc.newBrowserContext(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()

	actions := []chromedp.Action{
		chromedp.Navigate(webBaseURL),
		chromedp.Sleep(2 * time.Second),
		bc.setCookies(),
		chromedp.Navigate(pageURL),
		chromedp.WaitVisible("body", chromedp.ByQuery),
		chromedp.Sleep(3 * time.Second),
	}
	for i := 0; i < scrolls; i++ {
		actions = append(actions,
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight);`, nil),
			chromedp.Sleep(2*time.Second),
		)
	}

	var html string
	actions = append(actions, chromedp.OuterHTML("html", &html))

	if err := chromedp.Run(allocCtx, actions...); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", pageURL, err)
	}
	return html, nil
}

// newBrowserContext allocates a fresh browser per call so the proxy chosen
// for this action applies to the whole browser process.
func (bc *BrowserClient) newBrowserContext(ctx context.Context) (context.Context, context.CancelFunc, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.UserAgent(bc.userAgent),
	)
	if bc.proxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(bc.proxyURL))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	timeoutCtx, timeoutCancel := context.WithTimeout(allocCtx, 5*time.Minute)
	browserCtx, browserCancel := chromedp.NewContext(timeoutCtx,
		chromedp.WithLogf(bc.logger.Printf),
	)

	cancel := func() {
		browserCancel()
		timeoutCancel()
		allocCancel()
	}
	return browserCtx, cancel, nil
}

func (bc *BrowserClient) setCookies() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for _, cookie := range bc.cookies {
			domain := cookie.Domain
			if domain == "" {
				domain = ".instagram.com"
			}
			path := cookie.Path
			if path == "" {
				path = "/"
			}
			err := network.SetCookie(cookie.Name, cookie.Value).
				WithDomain(domain).
				WithPath(path).
				Do(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (bc *BrowserClient) extractProfile(doc *goquery.Document, username string) *types.Profile {
	profile := &types.Profile{Username: username}

	// og:title looks like "Full Name (@username) • Instagram photos and videos".
	if title := metaContent(doc, "og:title"); title != "" {
		if idx := strings.Index(title, " (@"); idx > 0 {
			profile.FullName = strings.TrimSpace(title[:idx])
		}
	}
	if og := metaContent(doc, "og:description"); og != "" {
		profile.FollowerCount, profile.FollowingCount, _ = parseOGCounts(og)
		// The bio trails the counts after " - ".
		if idx := strings.Index(og, " - "); idx != -1 {
			profile.Bio = strings.TrimSpace(og[idx+3:])
		}
	}
	if image := metaContent(doc, "og:image"); image != "" {
		profile.AvatarURL = image
	}

	if profile.FullName == "" || profile.Bio == "" {
		if ld := firstLDJSON(doc); ld != nil {
			if profile.FullName == "" {
				profile.FullName = ldString(ld, "name")
			}
			if profile.Bio == "" {
				profile.Bio = ldString(ld, "description")
			}
		}
	}

	return profile
}

// extractGridPosts walks the rendered profile grid. Engagement counts are not
// in the grid markup, so grid posts carry shortcode, caption and video flag
// only.
func (bc *BrowserClient) extractGridPosts(doc *goquery.Document, maxPosts int) []types.Post {
	var posts []types.Post
	seen := make(map[string]bool)

	doc.Find("a[href*='/p/'], a[href*='/reel/']").Each(func(i int, link *goquery.Selection) {
		if len(posts) >= maxPosts {
			return
		}
		href, exists := link.Attr("href")
		if !exists {
			return
		}
		matches := gridLinkRe.FindStringSubmatch(href)
		if len(matches) < 2 || seen[matches[1]] {
			return
		}
		seen[matches[1]] = true

		post := types.Post{
			Shortcode: matches[1],
			IsVideo:   strings.Contains(href, "/reel/"),
		}
		if alt, ok := link.Find("img").First().Attr("alt"); ok {
			post.Caption = strings.TrimSpace(alt)
		}
		posts = append(posts, post)
	})

	return posts
}

var gridLinkRe = regexp.MustCompile(`(?:^|/)(?:p|reel)/([A-Za-z0-9_-]+)`)

func looksLoggedIn(html string) bool {
	if strings.Contains(html, `"viewer"`) || strings.Contains(html, `"viewerId"`) {
		return true
	}
	if strings.Contains(html, `name="username"`) && strings.Contains(html, `name="password"`) {
		return false
	}
	// A login form on the landing page means the cookies were rejected.
	return !strings.Contains(html, "loginForm") && !strings.Contains(html, "/accounts/login/")
}

func pageSaysNotFound(doc *goquery.Document) bool {
	title := strings.ToLower(doc.Find("title").First().Text())
	return strings.Contains(title, "page not found") || strings.Contains(title, "isn't available")
}

func ldString(ld []byte, key string) string {
	value, _ := jsonparser.GetString(ld, key)
	return value
}

func isChromeAvailable() bool {
	paths := []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser"}
	for _, path := range paths {
		if _, err := exec.LookPath(path); err == nil {
			return true
		}
	}
	return false
}

func (bc *BrowserClient) Close() error {
	// Browser contexts are per-call; nothing is held between actions.
	return nil
}
