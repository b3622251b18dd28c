package backend

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/firefox"
)

// seleniumRenderer is the fallback page renderer when chromedp cannot run:
// a headless Firefox driven through geckodriver.
type seleniumRenderer struct {
	driver  selenium.WebDriver
	service *selenium.Service
	logger  *logrus.Logger
}

func newSeleniumRenderer(logger *logrus.Logger, userAgent string) (*seleniumRenderer, error) {
	firefoxCaps := selenium.Capabilities{
		"browserName": "firefox",
	}

	firefoxOptions := firefox.Capabilities{
		Args: []string{
			"--headless",
			"--no-sandbox",
			"--disable-dev-shm-usage",
			"--disable-gpu",
		},
		Prefs: map[string]interface{}{
			"general.useragent.override": userAgent,
			"dom.webdriver.enabled":      false,
			"useAutomationExtension":     false,
		},
	}

	firefoxCaps.AddFirefox(firefoxOptions)

	const port = 4444
	opts := []selenium.ServiceOption{}
	selenium.SetDebug(false)

	service, err := selenium.NewGeckoDriverService("geckodriver", port, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to start GeckoDriver service: %w", err)
	}

	driver, err := selenium.NewRemote(firefoxCaps, fmt.Sprintf("http://localhost:%d", port))
	if err != nil {
		service.Stop()
		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	return &seleniumRenderer{
		driver:  driver,
		service: service,
		logger:  logger,
	}, nil
}

// RenderPage loads pageURL with the session cookies applied and returns the
// rendered page source.
func (sr *seleniumRenderer) RenderPage(pageURL string, cookies []Cookie, scrolls int) (string, error) {
	// Establish the domain before cookies can be set.
	if err := sr.driver.Get(webBaseURL); err != nil {
		return "", fmt.Errorf("failed to navigate to landing page: %w", err)
	}
	time.Sleep(3 * time.Second)

	for _, cookie := range cookies {
		domain := cookie.Domain
		if domain == "" {
			domain = ".instagram.com"
		}
		if !strings.HasPrefix(domain, ".") && domain != "instagram.com" {
			domain = "." + domain
		}

		seleniumCookie := &selenium.Cookie{
			Name:   cookie.Name,
			Value:  cookie.Value,
			Domain: domain,
			Path:   "/",
		}

		if err := sr.driver.AddCookie(seleniumCookie); err != nil {
			sr.logger.Warnf("Failed to set cookie %s: %v", cookie.Name, err)
			continue
		}
		sr.logger.Debugf("Successfully set cookie: %s for domain: %s", cookie.Name, domain)
	}

	if err := sr.driver.Get(pageURL); err != nil {
		return "", fmt.Errorf("failed to navigate to %s: %w", pageURL, err)
	}
	time.Sleep(5 * time.Second)

	for i := 0; i < scrolls; i++ {
		if _, err := sr.driver.ExecuteScript("window.scrollTo(0, document.body.scrollHeight);", nil); err != nil {
			sr.logger.Warnf("Failed to scroll: %v", err)
		}
		time.Sleep(3 * time.Second)
	}

	pageSource, err := sr.driver.PageSource()
	if err != nil {
		return "", fmt.Errorf("failed to get page source: %w", err)
	}

	return pageSource, nil
}

func (sr *seleniumRenderer) Close() {
	if sr.driver != nil {
		sr.driver.Quit()
	}
	if sr.service != nil {
		sr.service.Stop()
	}
}
