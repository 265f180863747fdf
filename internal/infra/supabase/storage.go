package supabase

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"

	"go.uber.org/zap"
)

// ============================================================
// Storage API: logo / avatar uploads
// ============================================================

// Upload stores data under bucket/filename (overwriting) and returns the
// public URL of the object.
func (c *Client) Upload(ctx context.Context, bucket, filename, contentType string, data []byte) (string, error) {
	objectPath := path.Join(url.PathEscape(bucket), escapeObjectPath(filename))
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s", c.baseURL, objectPath)

	_, err := c.write(ctx, "Upload", func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.serviceRoleKey))
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("x-upsert", "true")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := readBody(resp)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			c.logger.Warn("supabase: storage upload non-2xx",
				zap.String("bucket", bucket),
				zap.String("filename", filename),
				zap.Int("status", resp.StatusCode),
			)
			return nil, parseAPIError(resp.StatusCode, body)
		}
		return body, nil
	})
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s/storage/v1/object/public/%s", c.baseURL, objectPath), nil
}

func escapeObjectPath(name string) string {
	u := url.URL{Path: name}
	return u.EscapedPath()
}
