package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/buger/jsonparser"
	"github.com/sirupsen/logrus"

	"instagram-dispatcher/internal/proxy"
	"instagram-dispatcher/pkg/types"
)

const (
	webBaseURL = "https://www.instagram.com"
	webAPIURL  = "https://i.instagram.com/api/v1"

	// App ID the web frontend sends on its own API calls.
	igAppID = "936619743392459"
)

// WebClient drives Instagram's web API directly over an authenticated
// http.Client. Its session artifact is the cookie bundle of the logged-in
// browser session, stored as JSON.
type WebClient struct {
	creds       Credentials
	client      *http.Client
	jar         *cookiejar.Jar
	sessionFile string
	userAgent   string
	logger      *logrus.Logger
	loggedIn    bool
}

func NewWebClient(creds Credentials, sessionFile, userAgent string, timeout time.Duration, logger *logrus.Logger) (*WebClient, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	transport, _ := proxy.Transport("")
	client := &http.Client{
		Jar:       jar,
		Timeout:   timeout,
		Transport: transport,
	}

	return &WebClient{
		creds:       creds,
		client:      client,
		jar:         jar,
		sessionFile: sessionFile,
		userAgent:   userAgent,
		logger:      logger,
	}, nil
}

func (wc *WebClient) Name() string {
	return "web"
}

func (wc *WebClient) UseProxy(proxyURL string) error {
	transport, err := proxy.Transport(proxyURL)
	if err != nil {
		return err
	}
	wc.client.Transport = transport
	return nil
}

func (wc *WebClient) RestoreSession(ctx context.Context) error {
	artifact, err := loadSessionArtifact(wc.sessionFile, wc.creds.Username)
	if err != nil {
		return err
	}

	igURL, _ := url.Parse(webBaseURL)
	wc.jar.SetCookies(igURL, artifact.httpCookies())
	wc.logger.Infof("[web] loaded %d cookies from session file", len(artifact.Cookies))

	if err := wc.validateSession(ctx); err != nil {
		return err
	}

	wc.loggedIn = true
	return nil
}

// validateSession makes a cheap authenticated request and checks whether
// Instagram still accepts the cookies.
func (wc *WebClient) validateSession(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, webBaseURL+"/accounts/edit/", nil)
	if err != nil {
		return fmt.Errorf("failed to create validation request: %w", err)
	}
	wc.setHeaders(req)

	resp, err := wc.client.Do(req)
	if err != nil {
		return fmt.Errorf("session validation failed: %w", err)
	}
	defer resp.Body.Close()

	finalURL := resp.Request.URL.String()
	if strings.Contains(finalURL, "/accounts/login") {
		return ErrLoginRequired
	}
	if strings.Contains(finalURL, "/challenge") {
		return ErrCheckpoint
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrLoginRequired
	case http.StatusTooManyRequests:
		return fmt.Errorf("session validation rate limited (429)")
	default:
		return fmt.Errorf("session validation failed: status code %d", resp.StatusCode)
	}
}

func (wc *WebClient) Login(ctx context.Context) error {
	wc.logger.Infof("[web] logging in with %s...", wc.creds.Username)

	// Prime the csrftoken cookie from the login page.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, webBaseURL+"/accounts/login/", nil)
	if err != nil {
		return fmt.Errorf("failed to create login page request: %w", err)
	}
	wc.setHeaders(req)

	resp, err := wc.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch login page: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	csrf := wc.csrfToken()
	if csrf == "" {
		return fmt.Errorf("no csrftoken cookie after login page fetch")
	}

	// The web frontend sends the password in this envelope when the page has
	// no encryption keys available.
	encPassword := fmt.Sprintf("#PWD_INSTAGRAM_BROWSER:0:%d:%s", time.Now().Unix(), wc.creds.Password)
	form := url.Values{
		"username":     {wc.creds.Username},
		"enc_password": {encPassword},
	}

	loginReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		webBaseURL+"/accounts/login/ajax/", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create login request: %w", err)
	}
	wc.setHeaders(loginReq)
	loginReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	loginReq.Header.Set("X-CSRFToken", csrf)
	loginReq.Header.Set("X-Requested-With", "XMLHttpRequest")
	loginReq.Header.Set("Referer", webBaseURL+"/accounts/login/")

	loginResp, err := wc.client.Do(loginReq)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer loginResp.Body.Close()

	body, err := io.ReadAll(loginResp.Body)
	if err != nil {
		return fmt.Errorf("failed to read login response: %w", err)
	}

	if twoFactor, _ := jsonparser.GetBoolean(body, "two_factor_required"); twoFactor {
		return ErrTwoFactorRequired
	}
	if checkpointURL, _ := jsonparser.GetString(body, "checkpoint_url"); checkpointURL != "" {
		return ErrCheckpoint
	}
	if authenticated, _ := jsonparser.GetBoolean(body, "authenticated"); !authenticated {
		return fmt.Errorf("login rejected for %s (status %d)", wc.creds.Username, loginResp.StatusCode)
	}

	wc.logger.Info("[web] login successful")
	wc.loggedIn = true
	return nil
}

func (wc *WebClient) SaveSession() error {
	igURL, _ := url.Parse(webBaseURL)
	artifact := &sessionArtifact{
		Username:  wc.creds.Username,
		UserAgent: wc.userAgent,
		SavedAt:   time.Now(),
		Cookies:   fromHTTPCookies(wc.jar.Cookies(igURL)),
	}

	if err := artifact.save(wc.sessionFile); err != nil {
		return err
	}
	wc.logger.Infof("[web] saved %d cookies to session file", len(artifact.Cookies))
	return nil
}

func (wc *WebClient) FetchProfile(ctx context.Context, username string, maxPosts int) (*types.Profile, []types.Post, error) {
	endpoint := fmt.Sprintf("%s/users/web_profile_info/?username=%s", webAPIURL, url.QueryEscape(username))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create profile request: %w", err)
	}
	wc.setHeaders(req)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := wc.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("profile request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil, ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, nil, ErrLoginRequired
	case http.StatusTooManyRequests:
		return nil, nil, fmt.Errorf("profile request rate limited (429)")
	default:
		return nil, nil, fmt.Errorf("profile request failed: status code %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read profile response: %w", err)
	}

	if _, err := jsonparser.GetString(body, "data", "user", "username"); err != nil {
		// Some accounts only come back through the HTML profile page.
		wc.logger.Debugf("[web] profile JSON missing for %s, falling back to HTML", username)
		return wc.fetchProfileHTML(ctx, username)
	}

	profile := &types.Profile{Username: username}
	profile.FullName, _ = jsonparser.GetString(body, "data", "user", "full_name")
	profile.Bio, _ = jsonparser.GetString(body, "data", "user", "biography")
	profile.AvatarURL, _ = jsonparser.GetString(body, "data", "user", "profile_pic_url_hd")
	if profile.AvatarURL == "" {
		profile.AvatarURL, _ = jsonparser.GetString(body, "data", "user", "profile_pic_url")
	}
	if count, err := jsonparser.GetInt(body, "data", "user", "edge_followed_by", "count"); err == nil {
		profile.FollowerCount = int(count)
	}
	if count, err := jsonparser.GetInt(body, "data", "user", "edge_follow", "count"); err == nil {
		profile.FollowingCount = int(count)
	}

	var posts []types.Post
	jsonparser.ArrayEach(body, func(value []byte, dataType jsonparser.ValueType, offset int, arrayErr error) {
		if len(posts) >= maxPosts {
			return
		}
		posts = append(posts, wc.parseTimelineNode(value))
	}, "data", "user", "edge_owner_to_timeline_media", "edges")

	return profile, posts, nil
}

func (wc *WebClient) parseTimelineNode(edge []byte) types.Post {
	var post types.Post
	post.Shortcode, _ = jsonparser.GetString(edge, "node", "shortcode")
	post.IsVideo, _ = jsonparser.GetBoolean(edge, "node", "is_video")

	if taken, err := jsonparser.GetInt(edge, "node", "taken_at_timestamp"); err == nil {
		post.TakenAt = time.Unix(taken, 0)
	}
	if count, err := jsonparser.GetInt(edge, "node", "edge_liked_by", "count"); err == nil {
		post.LikeCount = int(count)
	} else if count, err := jsonparser.GetInt(edge, "node", "edge_media_preview_like", "count"); err == nil {
		post.LikeCount = int(count)
	}
	if count, err := jsonparser.GetInt(edge, "node", "edge_media_to_comment", "count"); err == nil {
		post.CommentCount = int(count)
	}
	if post.IsVideo {
		if count, err := jsonparser.GetInt(edge, "node", "video_view_count"); err == nil {
			post.ViewCount = int(count)
		}
	}

	jsonparser.ArrayEach(edge, func(value []byte, dataType jsonparser.ValueType, offset int, arrayErr error) {
		if post.Caption == "" {
			post.Caption, _ = jsonparser.GetString(value, "node", "text")
		}
	}, "node", "edge_media_to_caption", "edges")

	return post
}

// fetchProfileHTML scrapes the public profile page when the JSON endpoint
// comes back empty. Recent posts are not available this way.
func (wc *WebClient) fetchProfileHTML(ctx context.Context, username string) (*types.Profile, []types.Post, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/%s/", webBaseURL, url.PathEscape(username)), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create profile page request: %w", err)
	}
	wc.setHeaders(req)

	resp, err := wc.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("profile page request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("profile page request failed: status code %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse profile page: %w", err)
	}

	profile := &types.Profile{Username: username}
	if ld := firstLDJSON(doc); ld != nil {
		profile.FullName, _ = jsonparser.GetString(ld, "name")
		profile.Bio, _ = jsonparser.GetString(ld, "description")
		profile.AvatarURL, _ = jsonparser.GetString(ld, "image")
	}
	if og := metaContent(doc, "og:description"); og != "" {
		profile.FollowerCount, profile.FollowingCount, _ = parseOGCounts(og)
	}

	return profile, nil, nil
}

func (wc *WebClient) FetchPost(ctx context.Context, shortcode string) (*types.Post, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/p/%s/", webBaseURL, url.PathEscape(shortcode)), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create post request: %w", err)
	}
	wc.setHeaders(req)

	resp, err := wc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("post request failed: status code %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse post page: %w", err)
	}

	return parsePostPage(doc, shortcode)
}

// parsePostPage extracts one post from its page's ld+json block and meta
// tags. Shared with the browser backend, which lands on the same markup.
func parsePostPage(doc *goquery.Document, shortcode string) (*types.Post, error) {
	post := &types.Post{Shortcode: shortcode}

	if ld := firstLDJSON(doc); ld != nil {
		post.Caption, _ = jsonparser.GetString(ld, "caption")
		if post.Caption == "" {
			post.Caption, _ = jsonparser.GetString(ld, "articleBody")
		}
		if uploaded, err := jsonparser.GetString(ld, "uploadDate"); err == nil {
			if taken, err := time.Parse(time.RFC3339, uploaded); err == nil {
				post.TakenAt = taken
			}
		}
		if videoURL, _ := jsonparser.GetString(ld, "contentUrl"); videoURL != "" {
			post.IsVideo = true
		}

		jsonparser.ArrayEach(ld, func(value []byte, dataType jsonparser.ValueType, offset int, arrayErr error) {
			interactionType, _ := jsonparser.GetString(value, "interactionType")
			count, _ := jsonparser.GetInt(value, "userInteractionCount")
			switch {
			case strings.Contains(interactionType, "LikeAction"):
				post.LikeCount = int(count)
			case strings.Contains(interactionType, "CommentAction"):
				post.CommentCount = int(count)
			case strings.Contains(interactionType, "WatchAction"):
				post.IsVideo = true
				post.ViewCount = int(count)
			}
		}, "interactionStatistic")
	}

	// og:description looks like "123 likes, 4 comments - user on ...: "caption"".
	if og := metaContent(doc, "og:description"); og != "" {
		for _, segment := range strings.Split(og, ",") {
			lower := strings.ToLower(segment)
			if strings.Contains(lower, "like") && post.LikeCount == 0 {
				post.LikeCount = parseCount(segment)
			}
			if strings.Contains(lower, "comment") && post.CommentCount == 0 {
				post.CommentCount = parseCount(segment)
			}
		}
		if post.Caption == "" {
			if idx := strings.Index(og, ": "); idx != -1 {
				post.Caption = strings.Trim(og[idx+2:], `"“”`)
			}
		}
	}

	if post.Caption == "" && post.LikeCount == 0 && post.TakenAt.IsZero() {
		return nil, fmt.Errorf("post page for %s had no recognizable content", shortcode)
	}

	return post, nil
}

func (wc *WebClient) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", wc.userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("X-IG-App-ID", igAppID)
	if csrf := wc.csrfToken(); csrf != "" {
		req.Header.Set("X-CSRFToken", csrf)
	}
}

func (wc *WebClient) csrfToken() string {
	igURL, _ := url.Parse(webBaseURL)
	for _, cookie := range wc.jar.Cookies(igURL) {
		if cookie.Name == "csrftoken" {
			return cookie.Value
		}
	}
	return ""
}

func (wc *WebClient) Close() error {
	wc.client.CloseIdleConnections()
	return nil
}
