package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

type HTTPPusher struct {
	BaseURL string
	Client  *http.Client
}

func (h *HTTPPusher) Push(ctx context.Context, ev Event) error {
	if h.Client == nil {
		h.Client = &http.Client{Timeout: 10 * time.Second}
	}

	b, _ := json.Marshal(ev)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+"/events", bytes.NewBuffer(b))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	resp, err := h.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.New("push gateway error")
	}
	return nil
}
