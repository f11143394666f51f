// Package resource fetches the protected decision read-model a consumed link
// unlocks. The decision service is an external collaborator.
package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/archject/portal-access/internal/config"
)

// Decision is the protected payload returned to a client after Consume.
type Decision struct {
	ID       string           `json:"id"`
	Title    string           `json:"title"`
	Status   string           `json:"status"`
	Options  []DecisionOption `json:"options"`
	Comments []Comment        `json:"comments"`
}

type DecisionOption struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	MediaURL string   `json:"media_url,omitempty"`
	Selected bool     `json:"selected"`
	Tags     []string `json:"tags,omitempty"`
}

type Comment struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// DecisionClient fetches a decision by id.
type DecisionClient interface {
	GetDecision(ctx context.Context, tenantID int64, decisionID string) (Decision, error)
}

// NewClient selects the implementation from config. Mock data is served only
// when explicitly requested; a fetch failure with the flag off is an error,
// never fabricated data.
func NewClient(cfg config.Config) DecisionClient {
	if cfg.UseMockResource {
		return &MockClient{}
	}
	return &HTTPClient{
		baseURL: cfg.ResourceBaseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// HTTPClient talks to the decision service over HTTP.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func (c *HTTPClient) GetDecision(ctx context.Context, tenantID int64, decisionID string) (Decision, error) {
	endpoint := fmt.Sprintf("%s/internal/decisions/%s", c.baseURL, url.PathEscape(decisionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Decision{}, fmt.Errorf("build decision request: %w", err)
	}
	req.Header.Set("X-Tenant-ID", fmt.Sprint(tenantID))

	resp, err := c.client.Do(req)
	if err != nil {
		return Decision{}, fmt.Errorf("fetch decision: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Decision{}, fmt.Errorf("fetch decision: unexpected status %d", resp.StatusCode)
	}

	var d Decision
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return Decision{}, fmt.Errorf("decode decision: %w", err)
	}
	return d, nil
}

// MockClient serves fixture data for demos and local development. Selected
// only by the USE_MOCK_RESOURCE flag.
type MockClient struct{}

func (c *MockClient) GetDecision(ctx context.Context, tenantID int64, decisionID string) (Decision, error) {
	return Decision{
		ID:     decisionID,
		Title:  "Facade material selection",
		Status: "awaiting_approval",
		Options: []DecisionOption{
			{ID: "opt-1", Label: "Brushed concrete", Selected: false},
			{ID: "opt-2", Label: "Timber cladding", Selected: false},
		},
	}, nil
}
