package publishers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"SocialSchedulerAPI/config"
	"SocialSchedulerAPI/models"
)

// FacebookPublisher posts to a Facebook page via the Graph API. The stored
// user token is exchanged for a page access token, then the post goes to the
// page feed (text) or the photos edge (with media).
type FacebookPublisher struct {
	client *http.Client
}

// NewFacebookPublisher creates a FacebookPublisher with an injectable
// http.Client. Passing nil uses a default client; per-attempt deadlines come
// from the request context, not the client.
func NewFacebookPublisher(client *http.Client) *FacebookPublisher {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &FacebookPublisher{client: client}
}

type facebookPageResponse struct {
	Data []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		AccessToken string `json:"access_token"`
	} `json:"data"`
}

type facebookPostResponse struct {
	ID string `json:"id"`
}

type facebookErrorResponse struct {
	Error struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}

func graphURL(path string) string {
	cfg := config.Load()
	return fmt.Sprintf("%s/%s/%s", cfg.GraphAPIBase, cfg.GraphAPIVersion, path)
}

func decodeGraphError(body []byte) error {
	var fbError facebookErrorResponse
	json.Unmarshal(body, &fbError)
	if fbError.Error.Message == "" {
		return fmt.Errorf("Facebook API error: unexpected response")
	}
	return fmt.Errorf("Facebook API error: %s (code: %d)", fbError.Error.Message, fbError.Error.Code)
}

func (f *FacebookPublisher) Publish(ctx context.Context, post *models.ScheduledPost, conn *models.Connection) (string, error) {
	if conn == nil || conn.AccessToken == "" {
		return "", fmt.Errorf("missing Facebook credentials")
	}
	if conn.ExpiresAt != nil && conn.ExpiresAt.Before(time.Now()) {
		return "", fmt.Errorf("Facebook access token has expired")
	}

	pageToken, pageID, err := f.getPageAccessToken(ctx, conn)
	if err != nil {
		return "", err
	}

	images := imagesOf(post)
	if len(images) == 0 {
		return f.publishText(ctx, post.Content, pageToken, pageID)
	}
	return f.publishPhotos(ctx, post.Content, images, pageToken, pageID)
}

// getPageAccessToken resolves the page the post should go to. When the
// connection pins a page id, that page must be among the user's pages;
// otherwise the first page is used.
func (f *FacebookPublisher) getPageAccessToken(ctx context.Context, conn *models.Connection) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, graphURL("me/accounts"), nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Authorization", "Bearer "+conn.AccessToken)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", "", decodeGraphError(body)
	}

	var pageResp facebookPageResponse
	if err := json.Unmarshal(body, &pageResp); err != nil {
		return "", "", err
	}
	if len(pageResp.Data) == 0 {
		return "", "", fmt.Errorf("no Facebook pages found for this account")
	}

	if conn.PlatformPageID != "" {
		for _, page := range pageResp.Data {
			if page.ID == conn.PlatformPageID {
				return page.AccessToken, page.ID, nil
			}
		}
		return "", "", fmt.Errorf("connected page %s not found for this account", conn.PlatformPageID)
	}

	page := pageResp.Data[0]
	return page.AccessToken, page.ID, nil
}

func (f *FacebookPublisher) publishText(ctx context.Context, message, pageToken, pageID string) (string, error) {
	payload, _ := json.Marshal(map[string]string{"message": message})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		graphURL(pageID+"/feed"), bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+pageToken)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", decodeGraphError(body)
	}

	var postResp facebookPostResponse
	if err := json.Unmarshal(body, &postResp); err != nil {
		return "", err
	}
	return postResp.ID, nil
}

// publishPhotos posts one photo directly, or uploads several unpublished and
// attaches them to a single feed post.
func (f *FacebookPublisher) publishPhotos(ctx context.Context, message string, images []*models.Media, pageToken, pageID string) (string, error) {
	if len(images) == 1 {
		return f.uploadPhoto(ctx, images[0], pageToken, pageID, true, message)
	}

	photoIDs := make([]string, 0, len(images))
	for _, media := range images {
		photoID, err := f.uploadPhoto(ctx, media, pageToken, pageID, false, "")
		if err != nil {
			return "", err
		}
		photoIDs = append(photoIDs, photoID)
	}

	attached := make([]map[string]string, 0, len(photoIDs))
	for _, photoID := range photoIDs {
		attached = append(attached, map[string]string{"media_fbid": photoID})
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"message":        message,
		"attached_media": attached,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		graphURL(pageID+"/feed"), bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+pageToken)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", decodeGraphError(body)
	}

	var postResp facebookPostResponse
	if err := json.Unmarshal(body, &postResp); err != nil {
		return "", err
	}
	return postResp.ID, nil
}

func (f *FacebookPublisher) uploadPhoto(ctx context.Context, media *models.Media, pageToken, pageID string, published bool, message string) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	file, err := os.Open(media.Path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	part, err := writer.CreateFormFile("source", filepath.Base(media.Path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", err
	}

	if message != "" {
		writer.WriteField("message", message)
	}
	if !published {
		writer.WriteField("published", "false")
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		graphURL(pageID+"/photos"), body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+pageToken)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", decodeGraphError(respBody)
	}

	var photoResp facebookPostResponse
	if err := json.Unmarshal(respBody, &photoResp); err != nil {
		return "", err
	}
	return photoResp.ID, nil
}

func imagesOf(post *models.ScheduledPost) []*models.Media {
	images := []*models.Media{}
	for _, media := range post.Media {
		if media.Type == models.MediaImage {
			images = append(images, media)
		}
	}
	return images
}
