package publishers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"SocialSchedulerAPI/models"
)

// InstagramPublisher posts through the Graph API content-publishing flow:
// create a media container from a public image URL, then publish it.
// Instagram has no text-only posts, so at least one image is required.
type InstagramPublisher struct {
	client *http.Client
}

func NewInstagramPublisher(client *http.Client) *InstagramPublisher {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &InstagramPublisher{client: client}
}

type instagramContainerResponse struct {
	ID string `json:"id"`
}

func (i *InstagramPublisher) Publish(ctx context.Context, post *models.ScheduledPost, conn *models.Connection) (string, error) {
	if conn == nil || conn.AccessToken == "" {
		return "", fmt.Errorf("missing Instagram credentials")
	}
	if conn.PlatformUserID == "" {
		return "", fmt.Errorf("Instagram connection has no business account id")
	}

	images := imagesOf(post)
	if len(images) == 0 {
		return "", fmt.Errorf("Instagram requires at least one image")
	}

	containerID, err := i.createContainer(ctx, conn, images[0].URL, post.Content)
	if err != nil {
		return "", err
	}
	return i.publishContainer(ctx, conn, containerID)
}

func (i *InstagramPublisher) createContainer(ctx context.Context, conn *models.Connection, imageURL, caption string) (string, error) {
	payload, _ := json.Marshal(map[string]string{
		"image_url": imageURL,
		"caption":   caption,
	})
	return i.graphPost(ctx, conn, conn.PlatformUserID+"/media", payload)
}

func (i *InstagramPublisher) publishContainer(ctx context.Context, conn *models.Connection, containerID string) (string, error) {
	payload, _ := json.Marshal(map[string]string{
		"creation_id": containerID,
	})
	return i.graphPost(ctx, conn, conn.PlatformUserID+"/media_publish", payload)
}

func (i *InstagramPublisher) graphPost(ctx context.Context, conn *models.Connection, path string, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, graphURL(path), bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+conn.AccessToken)

	resp, err := i.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", decodeGraphError(body)
	}

	var container instagramContainerResponse
	if err := json.Unmarshal(body, &container); err != nil {
		return "", err
	}
	return container.ID, nil
}
