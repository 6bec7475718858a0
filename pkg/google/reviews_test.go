package google

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStarRating(t *testing.T) {
	for value, want := range map[string]int{"ONE": 1, "two": 2, "THREE": 3, "FOUR": 4, " FIVE ": 5} {
		got := StarRating(value)
		require.NotNil(t, got, value)
		assert.Equal(t, want, *got)
	}
	assert.Nil(t, StarRating("STAR_RATING_UNSPECIFIED"))
	assert.Nil(t, StarRating(""))
}

func TestParseReviewsPage(t *testing.T) {
	body := []byte(`{
		"reviews": [
			{"reviewId": "a1", "reviewer": {"displayName": "Ann"}, "starRating": "FIVE", "comment": "Lovely", "createTime": "2024-03-01T10:00:00Z"},
			{"name": "accounts/1/locations/2/reviews/b2", "starRating": "STAR_RATING_UNSPECIFIED"}
		],
		"nextPageToken": "next"
	}`)

	reviews, next := ParseReviewsPage(body)
	require.Len(t, reviews, 2)
	assert.Equal(t, "next", next)
	assert.Equal(t, "a1", reviews[0].ExternalID)
	assert.Equal(t, 5, *reviews[0].Rating)
	assert.Equal(t, "Ann", reviews[0].ReviewerName)
	assert.Equal(t, 2024, reviews[0].CreatedAt.Year())
	assert.Equal(t, "b2", reviews[1].ExternalID)
	assert.Nil(t, reviews[1].Rating)
}

func TestListReviewsFollowsPagesWithOAuthToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh-1", r.PostForm.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access-1","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/v4/accounts/acc/locations/loc/reviews", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("pageToken") == "" {
			_, _ = w.Write([]byte(`{"reviews":[{"reviewId":"r1","starRating":"ONE"}],"nextPageToken":"p2"}`))
			return
		}
		_, _ = w.Write([]byte(`{"reviews":[{"reviewId":"r2","starRating":"FOUR"}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(Config{ClientID: "id", ClientSecret: "secret", TokenURL: srv.URL + "/token", APIBaseURL: srv.URL})
	reviews, err := c.ListReviews(context.Background(), Credentials{AccountID: "acc", LocationID: "loc", RefreshToken: "refresh-1"})
	require.NoError(t, err)
	require.Len(t, reviews, 2)
	assert.Equal(t, "r1", reviews[0].ExternalID)
	assert.Equal(t, "r2", reviews[1].ExternalID)
}

func TestListReviewsSurfacesAPIErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"a","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/v4/accounts/acc/locations/loc/reviews", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"message":"permission denied"}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(Config{TokenURL: srv.URL + "/token", APIBaseURL: srv.URL})
	_, err := c.ListReviews(context.Background(), Credentials{AccountID: "acc", LocationID: "loc", RefreshToken: "r"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}
