package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"rollcall/internal/model"
)

// Client talks to the rollcall API on behalf of one user.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
	Dialer  *websocket.Dialer
}

// NewClient creates a client for baseURL, e.g. http://localhost:5000.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 15 * time.Second},
		Dialer:  websocket.DefaultDialer,
	}
}

// LoginResult is the body of a successful login.
type LoginResult struct {
	Token string         `json:"token"`
	Role  model.RoleName `json:"role"`
	User  model.User     `json:"user"`
}

// Login authenticates and keeps the returned token for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var out LoginResult
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &out); err != nil {
		return LoginResult{}, err
	}
	c.Token = out.Token
	return out, nil
}

// Fetch implements Fetcher.
func (c *Client) Fetch(ctx context.Context, v View) ([]model.AttendanceRecord, error) {
	path := "/api/attendance/student"
	if !v.IsStudent() {
		path = "/api/attendance/class/" + url.PathEscape(v.ClassID) + "/date/" + url.PathEscape(v.Date)
	}
	var out []model.AttendanceRecord
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ClassStudents returns the roster of a class.
func (c *Client) ClassStudents(ctx context.Context, classID string) ([]model.StudentSummary, error) {
	var out []model.StudentSummary
	if err := c.do(ctx, http.MethodGet, "/api/class/"+url.PathEscape(classID)+"/students", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Events dials the event channel and streams change-events until ctx ends or the
// connection drops. The returned channel is closed then.
func (c *Client) Events(ctx context.Context) (<-chan model.ChangeEvent, error) {
	u, err := url.Parse(c.BaseURL + "/api/ws")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	header := http.Header{}
	header.Set("Authorization", c.Token)

	conn, resp, err := c.Dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial event channel: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("dial event channel: %w", err)
	}

	out := make(chan model.ChangeEvent, 16)
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			var env model.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					log.Printf("dashboard: event channel closed: %v", err)
				}
				return
			}
			if env.Event != model.EventName {
				continue
			}
			select {
			case out <- env.Data:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var msg struct {
			Message string `json:"message"`
		}
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, &msg) != nil || msg.Message == "" {
			msg.Message = strings.TrimSpace(string(raw))
		}
		return &APIError{Status: resp.StatusCode, Message: msg.Message}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
