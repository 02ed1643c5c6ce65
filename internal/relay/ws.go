package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"collab-lab/internal/models"
)

// WSTransport talks to a relay topic server: events are POSTed to
// <base>/relay/<topic> and streamed back from <base>/relay/<topic>/ws.
type WSTransport struct {
	baseURL string
	client  *http.Client
	dialer  *websocket.Dialer
}

func NewWSTransport(baseURL string) *WSTransport {
	return &WSTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

func (t *WSTransport) Publish(ctx context.Context, topic string, env models.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/relay/"+url.PathEscape(topic), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "relay post")
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errors.Errorf("relay post status %d", resp.StatusCode)
	}
	return nil
}

func (t *WSTransport) Subscribe(ctx context.Context, topic string) (<-chan models.Envelope, error) {
	wsURL, err := streamURL(t.baseURL, topic)
	if err != nil {
		return nil, err
	}
	conn, _, err := t.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "relay dial")
	}

	out := make(chan models.Envelope)
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			var env models.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				if ctx.Err() == nil {
					jww.DEBUG.Printf("relay stream ended topic=%s: %v", topic, err)
				}
				return
			}
			select {
			case out <- env:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func streamURL(base, topic string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", errors.Wrap(err, "parse relay url")
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/relay/" + topic + "/ws"
	return u.String(), nil
}
