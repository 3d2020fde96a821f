package publishers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SocialSchedulerAPI/models"
)

func textPost(content string) *models.ScheduledPost {
	return &models.ScheduledPost{
		ID:      "post-1",
		Content: content,
		Status:  models.StatusPublishing,
	}
}

func facebookConn() *models.Connection {
	return &models.Connection{
		ID:          "conn-fb",
		Platform:    models.Facebook,
		AccessToken: "user-token",
	}
}

func newGraphServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("GRAPH_API_BASE_URL", srv.URL)
	t.Setenv("GRAPH_API_VERSION", "v21.0")
	return srv
}

func TestFacebookPublishText(t *testing.T) {
	var feedAuth string
	newGraphServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v21.0/me/accounts":
			assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(map[string]interface{}{
				"data": []map[string]string{
					{"id": "page-1", "name": "My Page", "access_token": "page-token"},
				},
			})
		case "/v21.0/page-1/feed":
			feedAuth = r.Header.Get("Authorization")
			var payload map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "Launch!", payload["message"])
			json.NewEncoder(w).Encode(map[string]string{"id": "page-1_123"})
		default:
			t.Errorf("unexpected request to %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	pub := NewFacebookPublisher(nil)
	postID, err := pub.Publish(context.Background(), textPost("Launch!"), facebookConn())

	require.NoError(t, err)
	assert.Equal(t, "page-1_123", postID)
	assert.Equal(t, "Bearer page-token", feedAuth)
}

func TestFacebookPublishPinnedPage(t *testing.T) {
	newGraphServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v21.0/me/accounts":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"data": []map[string]string{
					{"id": "page-1", "access_token": "token-1"},
					{"id": "page-2", "access_token": "token-2"},
				},
			})
		case "/v21.0/page-2/feed":
			json.NewEncoder(w).Encode(map[string]string{"id": "page-2_456"})
		default:
			t.Errorf("unexpected request to %s", r.URL.Path)
		}
	})

	conn := facebookConn()
	conn.PlatformPageID = "page-2"

	pub := NewFacebookPublisher(nil)
	postID, err := pub.Publish(context.Background(), textPost("Launch!"), conn)

	require.NoError(t, err)
	assert.Equal(t, "page-2_456", postID)
}

func TestFacebookPublishSurfacesGraphErrors(t *testing.T) {
	newGraphServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{
				"message": "Invalid OAuth access token",
				"type":    "OAuthException",
				"code":    190,
			},
		})
	})

	pub := NewFacebookPublisher(nil)
	_, err := pub.Publish(context.Background(), textPost("Launch!"), facebookConn())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid OAuth access token")
	assert.Contains(t, err.Error(), "190")
}

func TestFacebookPublishRejectsExpiredToken(t *testing.T) {
	newGraphServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be made with an expired token")
	})

	expired := time.Now().Add(-time.Hour)
	conn := facebookConn()
	conn.ExpiresAt = &expired

	pub := NewFacebookPublisher(nil)
	_, err := pub.Publish(context.Background(), textPost("Launch!"), conn)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestFacebookPublishRequiresCredentials(t *testing.T) {
	pub := NewFacebookPublisher(nil)

	_, err := pub.Publish(context.Background(), textPost("Launch!"), nil)
	assert.Error(t, err)

	_, err = pub.Publish(context.Background(), textPost("Launch!"), &models.Connection{})
	assert.Error(t, err)
}

func TestFacebookPublishUnknownPinnedPage(t *testing.T) {
	newGraphServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{
				{"id": "page-1", "access_token": "token-1"},
			},
		})
	})

	conn := facebookConn()
	conn.PlatformPageID = "page-9"

	pub := NewFacebookPublisher(nil)
	_, err := pub.Publish(context.Background(), textPost("Launch!"), conn)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "page-9")
}
