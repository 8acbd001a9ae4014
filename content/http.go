package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/nounce/nounced/domain"
	"github.com/nounce/nounced/util"
)

// HTTPStore talks to a pinning service (Pinata-compatible API). The
// content id is still computed locally from the bytes; the service id is
// only used for the public gateway URL.
type HTTPStore struct {
	apiUrl     string
	gatewayUrl string
	jwt        string
	client     *http.Client
}

func NewHTTPStore(apiUrl, gatewayUrl, jwt string) *HTTPStore {
	return &HTTPStore{
		apiUrl:     apiUrl,
		gatewayUrl: gatewayUrl,
		jwt:        jwt,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *HTTPStore) Put(ctx context.Context, data []byte, name string, tags map[string]string) (*Pin, error) {
	id := util.ContentId(data)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}

	meta := map[string]interface{}{"name": name, "keyvalues": tags}
	metaJSON, _ := json.Marshal(meta)
	if err := writer.WriteField("pinataMetadata", string(metaJSON)); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.apiUrl+"/pinning/pinFileToIPFS", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.jwt)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: pin upload: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: pin service returned %d: %s", domain.ErrUpstream, resp.StatusCode, msg)
	}

	var pinResp struct {
		IpfsHash string `json:"IpfsHash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&pinResp); err != nil {
		return nil, fmt.Errorf("%w: decoding pin response: %v", domain.ErrUpstream, err)
	}

	url := fmt.Sprintf("%s/%s", s.gatewayUrl, pinResp.IpfsHash)
	return &Pin{Id: id, Url: url}, nil
}

func (s *HTTPStore) Unpin(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, "DELETE", s.apiUrl+"/pinning/unpin/"+id, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.jwt)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: unpin: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: unpin returned %d", domain.ErrUpstream, resp.StatusCode)
	}
	return nil
}

// Ping checks connectivity against the service's auth test endpoint.
func (s *HTTPStore) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", s.apiUrl+"/data/testAuthentication", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.jwt)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: auth test returned %d", domain.ErrUpstream, resp.StatusCode)
	}
	return nil
}
