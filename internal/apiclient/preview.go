package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// PreviewImage fetches one rendered page image.
func (c *Client) PreviewImage(ctx context.Context, fileKey string, page int) ([]byte, string, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	resp, err := c.do(ctx, request{
		op:     "preview_image",
		method: http.MethodGet,
		path:   "/preview/" + url.PathEscape(fileKey),
		query:  q,
	})
	if err != nil {
		return nil, "", err
	}
	return resp.body, resp.header.Get("Content-Type"), nil
}

// PreviewDocumentURL is the embeddable original document for fileKey.
func (c *Client) PreviewDocumentURL(fileKey string) string {
	return c.endpoint("/preview/"+url.PathEscape(fileKey)+"/pdf", nil)
}
