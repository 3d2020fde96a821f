package publishers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"SocialSchedulerAPI/config"
	"SocialSchedulerAPI/models"
)

// LinkedInPublisher creates a text share via the ugcPosts API, posting as
// the connected member or, when a page id is stored, as that organization.
type LinkedInPublisher struct {
	client *http.Client
}

func NewLinkedInPublisher(client *http.Client) *LinkedInPublisher {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &LinkedInPublisher{client: client}
}

type linkedInPostResponse struct {
	ID string `json:"id"`
}

type linkedInErrorResponse struct {
	Message          string `json:"message"`
	ServiceErrorCode int    `json:"serviceErrorCode"`
	Status           int    `json:"status"`
}

func (l *LinkedInPublisher) Publish(ctx context.Context, post *models.ScheduledPost, conn *models.Connection) (string, error) {
	if conn == nil || conn.AccessToken == "" {
		return "", fmt.Errorf("missing LinkedIn credentials")
	}
	if conn.ExpiresAt != nil && conn.ExpiresAt.Before(time.Now()) {
		return "", fmt.Errorf("LinkedIn access token has expired")
	}

	author := ""
	switch {
	case conn.PlatformPageID != "":
		author = "urn:li:organization:" + conn.PlatformPageID
	case conn.PlatformUserID != "":
		author = "urn:li:person:" + conn.PlatformUserID
	default:
		return "", fmt.Errorf("LinkedIn connection has no member or organization id")
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"author":         author,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]interface{}{
			"com.linkedin.ugc.ShareContent": map[string]interface{}{
				"shareCommentary": map[string]string{
					"text": post.Content,
				},
				"shareMediaCategory": "NONE",
			},
		},
		"visibility": map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	})

	url := config.Load().LinkedInAPIBase + "/v2/ugcPosts"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+conn.AccessToken)
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		var liError linkedInErrorResponse
		json.Unmarshal(body, &liError)
		if liError.Message == "" {
			return "", fmt.Errorf("LinkedIn API error: status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("LinkedIn API error: %s (code: %d)", liError.Message, liError.ServiceErrorCode)
	}

	if id := resp.Header.Get("X-RestLi-Id"); id != "" {
		return id, nil
	}

	var postResp linkedInPostResponse
	if err := json.Unmarshal(body, &postResp); err != nil {
		return "", err
	}
	return postResp.ID, nil
}
