package dispatch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RemoteHost is another automation host accepting GET <base>/<device>/<mode>.
type RemoteHost struct {
	Name    string
	BaseURL string
	Client  *http.Client
}

func NewRemoteHost(name, baseURL string, timeout time.Duration) *RemoteHost {
	return &RemoteHost{
		Name:    name,
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

func (h *RemoteHost) Call(ctx context.Context, device, mode string) error {
	u := h.BaseURL + "/" + url.PathEscape(device) + "/" + url.PathEscape(mode)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		return fmt.Errorf("remote %s: %w", h.Name, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("remote %s: %s returned %s", h.Name, u, resp.Status)
	}
	return nil
}
