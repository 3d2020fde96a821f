package publishers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SocialSchedulerAPI/models"
)

func newLinkedInServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("LINKEDIN_API_BASE_URL", srv.URL)
	return srv
}

func TestLinkedInPublishAsMember(t *testing.T) {
	newLinkedInServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/ugcPosts", r.URL.Path)
		assert.Equal(t, "Bearer li-token", r.Header.Get("Authorization"))
		assert.Equal(t, "2.0.0", r.Header.Get("X-Restli-Protocol-Version"))

		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "urn:li:person:member-1", payload["author"])

		w.Header().Set("X-RestLi-Id", "urn:li:share:123")
		w.WriteHeader(http.StatusCreated)
	})

	conn := &models.Connection{
		ID:             "conn-li",
		Platform:       models.LinkedIn,
		AccessToken:    "li-token",
		PlatformUserID: "member-1",
	}

	pub := NewLinkedInPublisher(nil)
	postID, err := pub.Publish(context.Background(), textPost("Launch!"), conn)

	require.NoError(t, err)
	assert.Equal(t, "urn:li:share:123", postID)
}

func TestLinkedInPublishAsOrganization(t *testing.T) {
	newLinkedInServer(t, func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "urn:li:organization:org-1", payload["author"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": "urn:li:share:456"})
	})

	conn := &models.Connection{
		ID:             "conn-li",
		Platform:       models.LinkedIn,
		AccessToken:    "li-token",
		PlatformUserID: "member-1",
		PlatformPageID: "org-1",
	}

	pub := NewLinkedInPublisher(nil)
	postID, err := pub.Publish(context.Background(), textPost("Launch!"), conn)

	require.NoError(t, err)
	assert.Equal(t, "urn:li:share:456", postID)
}

func TestLinkedInPublishSurfacesAPIErrors(t *testing.T) {
	newLinkedInServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"message":          "Expired access token",
			"serviceErrorCode": 65601,
			"status":           401,
		})
	})

	conn := &models.Connection{
		AccessToken:    "li-token",
		PlatformUserID: "member-1",
	}

	pub := NewLinkedInPublisher(nil)
	_, err := pub.Publish(context.Background(), textPost("Launch!"), conn)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expired access token")
}

func TestLinkedInPublishRequiresAnAuthor(t *testing.T) {
	pub := NewLinkedInPublisher(nil)
	_, err := pub.Publish(context.Background(), textPost("Launch!"), &models.Connection{AccessToken: "li-token"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no member or organization id")
}
