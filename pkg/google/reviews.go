// Package google reads reviews from the Google Business Profile API.
package google

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
)

// Review is one external review mapped to local fields.
type Review struct {
	ExternalID   string
	Rating       *int // nil when the provider sends an unknown star value
	Comment      string
	ReviewerName string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Credentials identify a connected Business Profile location.
type Credentials struct {
	AccountID    string
	LocationID   string
	RefreshToken string
}

// ReviewsClient lists all reviews for a location.
type ReviewsClient interface {
	ListReviews(ctx context.Context, creds Credentials) ([]Review, error)
}

// Config holds the OAuth client and API location.
type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	APIBaseURL   string
	Timeout      time.Duration
	PageSize     int
}

// Client calls the v4 reviews endpoint with a refreshed OAuth token.
type Client struct {
	config Config
}

const maxPages = 200

// NewClient creates a reviews client.
func NewClient(config Config) *Client {
	if config.PageSize <= 0 {
		config.PageSize = 50
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	config.APIBaseURL = strings.TrimRight(config.APIBaseURL, "/")
	return &Client{config: config}
}

func (c *Client) httpClient(ctx context.Context, refreshToken string) *http.Client {
	conf := &oauth2.Config{
		ClientID:     c.config.ClientID,
		ClientSecret: c.config.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.config.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: []string{"https://www.googleapis.com/auth/business.manage"},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: c.config.Timeout})
	client := oauth2.NewClient(ctx, conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}))
	client.Timeout = c.config.Timeout
	return client
}

// ListReviews fetches every page of reviews for the location.
func (c *Client) ListReviews(ctx context.Context, creds Credentials) ([]Review, error) {
	if creds.AccountID == "" || creds.LocationID == "" || creds.RefreshToken == "" {
		return nil, fmt.Errorf("google credentials are incomplete")
	}
	client := c.httpClient(ctx, creds.RefreshToken)
	endpoint := fmt.Sprintf("%s/v4/accounts/%s/locations/%s/reviews",
		c.config.APIBaseURL, url.PathEscape(creds.AccountID), url.PathEscape(creds.LocationID))

	var reviews []Review
	pageToken := ""
	for page := 0; page < maxPages; page++ {
		q := url.Values{}
		q.Set("pageSize", fmt.Sprint(c.config.PageSize))
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		body, err := c.get(ctx, client, endpoint+"?"+q.Encode())
		if err != nil {
			return nil, err
		}

		batch, next := ParseReviewsPage(body)
		reviews = append(reviews, batch...)
		if next == "" {
			return reviews, nil
		}
		pageToken = next
	}
	log.WithField("locationID", creds.LocationID).Warn("stopped paging google reviews after page limit")
	return reviews, nil
}

func (c *Client) get(ctx context.Context, client *http.Client, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build reviews request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list google reviews: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read google reviews response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google reviews returned status %d: %s", resp.StatusCode, gjson.GetBytes(body, "error.message").String())
	}
	return body, nil
}

// ParseReviewsPage extracts the reviews and the next page token from one response.
func ParseReviewsPage(body []byte) ([]Review, string) {
	var reviews []Review
	gjson.GetBytes(body, "reviews").ForEach(func(_, r gjson.Result) bool {
		id := r.Get("reviewId").String()
		if id == "" {
			// name 形如 accounts/x/locations/y/reviews/<id>
			name := r.Get("name").String()
			id = name[strings.LastIndex(name, "/")+1:]
		}
		reviews = append(reviews, Review{
			ExternalID:   id,
			Rating:       StarRating(r.Get("starRating").String()),
			Comment:      r.Get("comment").String(),
			ReviewerName: r.Get("reviewer.displayName").String(),
			CreatedAt:    r.Get("createTime").Time(),
			UpdatedAt:    r.Get("updateTime").Time(),
		})
		return true
	})
	return reviews, gjson.GetBytes(body, "nextPageToken").String()
}

var starRatings = map[string]int{
	"ONE":   1,
	"TWO":   2,
	"THREE": 3,
	"FOUR":  4,
	"FIVE":  5,
}

// StarRating maps the provider's enum to 1..5, or nil for unknown values.
func StarRating(value string) *int {
	v, ok := starRatings[strings.ToUpper(strings.TrimSpace(value))]
	if !ok {
		return nil
	}
	return &v
}
