package call

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/easecampusghana/extraclasses-live/internal/dtos"
	"github.com/easecampusghana/extraclasses-live/internal/models"
)

// APIClient implements Directory and SessionStore against the hosted call
// service's REST API. One client per authenticated user.
type APIClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Lookup resolves a room code through GET /api/rooms/:code.
func (c *APIClient) Lookup(ctx context.Context, roomCode string) (*RoomInfo, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.roomPath(roomCode, ""), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusForbidden:
		return nil, ErrRoomNotFound
	default:
		return nil, fmt.Errorf("room lookup: unexpected status %d", resp.StatusCode)
	}

	var body dtos.RoomLookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode room lookup: %w", err)
	}

	return &RoomInfo{
		SessionID:        body.SessionID,
		RoomCode:         body.RoomCode,
		Role:             models.Role(body.Role),
		Status:           models.VideoSessionStatus(body.Status),
		Subject:          body.Subject,
		StartTime:        body.StartTime,
		EndTime:          body.EndTime,
		OtherPartyName:   body.OtherPartyName,
		OtherPartyJoined: body.OtherPartyJoined,
		CanJoin:          body.CanJoin,
		Message:          body.Message,
	}, nil
}

// MarkReady posts the waiting-room join transition.
func (c *APIClient) MarkReady(ctx context.Context, roomCode string) error {
	return c.post(ctx, c.roomPath(roomCode, "ready"))
}

// End posts the end-call transition.
func (c *APIClient) End(ctx context.Context, roomCode string) error {
	return c.post(ctx, c.roomPath(roomCode, "end"))
}

// History reads the bounded signaling backfill for a room.
func (c *APIClient) History(ctx context.Context, roomCode string, limit int) ([]dtos.SignalMessage, error) {
	path := c.roomPath(roomCode, "signals")
	if limit > 0 {
		path += "?limit=" + fmt.Sprint(limit)
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("signal history: unexpected status %d", resp.StatusCode)
	}
	var body dtos.SignalHistoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode signal history: %w", err)
	}
	return body.Messages, nil
}

func (c *APIClient) post(ctx context.Context, path string) error {
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(nil))
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusNotFound, http.StatusForbidden:
		return ErrRoomNotFound
	case http.StatusGone:
		return models.ErrSessionEnded
	default:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}

func (c *APIClient) newRequest(ctx context.Context, method, path string, body *bytes.Reader) (*http.Request, error) {
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *APIClient) roomPath(roomCode, action string) string {
	path := "/api/rooms/" + url.PathEscape(roomCode)
	if action != "" {
		path += "/" + action
	}
	return path
}
