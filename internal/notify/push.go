package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// PushNotifier relays offer events to drivers: a live websocket session
// first, then an HTTP POST to the push provider as fallback. It is a
// plain event sink, outside the dispatch state machine; losing a
// notification never affects the assignment protocol.
type PushNotifier struct {
	Endpoint string // push provider HTTP endpoint, optional
	Client   *http.Client
	WS       *WSRegistry
}

func NewPushNotifier(endpoint string, ws *WSRegistry) *PushNotifier {
	return &PushNotifier{Endpoint: endpoint, Client: &http.Client{Timeout: 3 * time.Second}, WS: ws}
}

func (p *PushNotifier) Publish(ctx context.Context, ev models.DispatchEvent) error {
	switch ev.Type {
	case models.EventOffered, models.EventReassigned:
	default:
		return nil
	}
	if p.WS != nil {
		// a missing or dead socket falls through to the HTTP provider
		if err := p.WS.Send(ev.DriverID, ev); err == nil {
			return nil
		}
	}
	if p.Endpoint == "" {
		return nil
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}
