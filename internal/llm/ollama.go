package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

// Ollama talks to an Ollama server through the official client with
// streaming disabled, so Generate gets the whole completion in one response.
type Ollama struct {
	baseURL string
	model   string
	client  *api.Client
}

var _ Generator = (*Ollama)(nil)

// NewOllama creates an Ollama generator. A nil httpClient means
// http.DefaultClient; deadlines come from the request context.
func NewOllama(baseURL, model string, httpClient *http.Client) (*Ollama, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("llm/ollama: parsing base URL %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("llm/ollama: base URL %q needs a scheme and host", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Ollama{
		baseURL: baseURL,
		model:   model,
		client:  api.NewClient(u, httpClient),
	}, nil
}

func (o *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:  o.model,
		Prompt: prompt,
		Stream: &stream,
	}

	var sb strings.Builder
	err := o.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) {
			return "", fmt.Errorf("llm/ollama: status %d: %w", statusErr.StatusCode, err)
		}
		return "", fmt.Errorf("llm/ollama: calling %s: %w", o.baseURL, err)
	}

	out := sb.String()
	if strings.TrimSpace(out) == "" {
		return "", errors.New("llm/ollama: empty response")
	}
	return out, nil
}

func (o *Ollama) Model() string { return o.model }

func (o *Ollama) Close() error { return nil }
