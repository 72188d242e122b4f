package quotes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// A Source provides the list of quotes to pick from. Implementations are
// called once per qualifying message and must not retry on their own.
type Source interface {
	FetchQuotes(ctx context.Context) ([]Quote, error)
}

// HTTPSource downloads the quote list as a JSON array from a fixed URL.
type HTTPSource struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration // zero disables the per request timeout
	logger  *zap.Logger
}

// NewHTTPSource creates a new HTTPSource. A nil client falls back to
// http.DefaultClient.
func NewHTTPSource(url string, client *http.Client, timeout time.Duration, logger *zap.Logger) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HTTPSource{
		URL:     url,
		Client:  client,
		Timeout: timeout,
		logger:  logger,
	}
}

// FetchQuotes performs a single GET request. Every failure is logged and
// returned as a *FetchError.
func (s *HTTPSource) FetchQuotes(ctx context.Context) ([]Quote, error) {
	list, err := s.fetch(ctx)
	if err != nil {
		fields := []zap.Field{zap.String("url", s.URL), zap.Error(err)}
		var fe *FetchError
		if errors.As(err, &fe) {
			fields = append(fields, zap.Stringer("kind", fe.Kind))
			if fe.Kind == KindHTTPStatus {
				fields = append(fields, zap.Int("status", fe.StatusCode))
			}
		}
		s.logger.Error("Failed to fetch quotes", fields...)
		return nil, err
	}

	s.logger.Debug("Fetched quotes", zap.String("url", s.URL), zap.Int("count", len(list)))
	return list, nil
}

func (s *HTTPSource) fetch(ctx context.Context) ([]Quote, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, Err: err}
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{Kind: KindHTTPStatus, StatusCode: resp.StatusCode}
	}

	// The Content-Type of raw.githubusercontent.com is text/plain, so the
	// header is ignored and the body is always parsed as JSON.
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, Err: fmt.Errorf("read body: %w", err)}
	}

	return decodeList(body)
}

func decodeList(body []byte) ([]Quote, error) {
	var raw json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &FetchError{Kind: KindParse, Err: err}
	}

	if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
		return nil, &FetchError{Kind: KindUnexpectedShape, Err: errors.New("top level value is not a list")}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &FetchError{Kind: KindParse, Err: err}
	}

	list := make([]Quote, len(items))
	for i, item := range items {
		if err := json.Unmarshal(item, &list[i]); err != nil {
			if errors.Is(err, ErrNotObject) {
				return nil, &FetchError{Kind: KindUnexpectedShape, Err: fmt.Errorf("element %d: %w", i, err)}
			}
			return nil, &FetchError{Kind: KindParse, Err: err}
		}
	}
	return list, nil
}
