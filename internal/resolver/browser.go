package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const (
	browserTimeout = 45 * time.Second
	youtubeOrigin  = "https://www.youtube.com"
)

// browserSearcher drives headless Chrome against the results page. It is
// the slowest tier but sees the page exactly as a signed-out viewer
// would, so it still works when plain HTTP gets served a consent wall.
// Cookies from each run are copied into the shared jar so the scrape
// tier inherits a warmed-up session.
type browserSearcher struct {
	jar http.CookieJar
}

func newBrowserSearcher(jar http.CookieJar) *browserSearcher {
	return &browserSearcher{jar: jar}
}

func (s *browserSearcher) Name() string { return "browser" }

func (s *browserSearcher) Search(ctx context.Context, phrase string) ([]Candidate, error) {
	browserCtx, cancel := chromedp.NewContext(ctx)
	defer cancel()
	browserCtx, cancel = context.WithTimeout(browserCtx, browserTimeout)
	defer cancel()

	searchURL := youtubeOrigin + "/results?search_query=" + url.QueryEscape(phrase)
	var rawPayload string
	var cdpCookies []*network.Cookie

	err := chromedp.Run(browserCtx,
		network.Enable(),
		chromedp.Navigate(searchURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(`JSON.stringify(window.ytInitialData || null)`, &rawPayload),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cdpCookies, err = network.GetAllCookies().Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("browser search: %w", err)
	}

	s.adoptCookies(cdpCookies)

	var payload map[string]any
	if err := json.Unmarshal([]byte(rawPayload), &payload); err != nil {
		return nil, fmt.Errorf("parsing browser page data: %w", err)
	}
	if payload == nil {
		return nil, errors.New("page data missing after load")
	}
	return collectVideoCandidates(payload), nil
}

func (s *browserSearcher) adoptCookies(cdpCookies []*network.Cookie) {
	if s.jar == nil || len(cdpCookies) == 0 {
		return
	}
	converted := make([]*http.Cookie, 0, len(cdpCookies))
	for _, cookie := range cdpCookies {
		converted = append(converted, &http.Cookie{
			Name:     cookie.Name,
			Value:    cookie.Value,
			Domain:   cookie.Domain,
			Path:     cookie.Path,
			Secure:   cookie.Secure,
			HttpOnly: cookie.HTTPOnly,
			Expires:  time.Unix(int64(cookie.Expires), 0),
		})
	}
	if origin, err := url.Parse(youtubeOrigin); err == nil {
		s.jar.SetCookies(origin, converted)
	}
}
