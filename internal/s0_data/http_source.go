package s0_data

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strings"
)

// Getter issues GET requests (pkg/httputil.Client 가 구현)
type Getter interface {
	Get(ctx context.Context, url string) (*http.Response, error)
}

// NewHTTPSource creates a CSV source over a remote data folder
// baseURL/{bars.csv,...} 를 한 번 내려받아 메모리에서 제공
func NewHTTPSource(baseURL string, client Getter) *CSVSource {
	base := strings.TrimRight(baseURL, "/")
	return NewCSVSourceWith(func(ctx context.Context, name string) (io.ReadCloser, error) {
		resp, err := client.Get(ctx, base+"/"+name)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", name, err)
		}
		switch {
		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return nil, fmt.Errorf("%s: %w", name, fs.ErrNotExist)
		case resp.StatusCode != http.StatusOK:
			resp.Body.Close()
			return nil, fmt.Errorf("fetch %s: unexpected status %d", name, resp.StatusCode)
		}
		return resp.Body, nil
	})
}
