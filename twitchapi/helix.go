// Package twitchapi contains the Twitch Helix collaborators: a client
// credentials token source and the paginated live-stream feed used by channel
// discovery.
package twitchapi

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nicklaw5/helix/v2"

	"github.com/onnwee/lurker/discovery"
)

// maxPageSize is the largest page Helix serves for Get Streams.
const maxPageSize = 100

// FeedOptions configures a StreamFeed. When Tokens is set, requests use app
// access tokens from it; otherwise UserToken (the bot's chat token, with or
// without the "oauth:" prefix) authenticates the requests.
type FeedOptions struct {
	ClientID   string
	UserToken  string
	Tokens     *TokenSource
	APIBaseURL string
	HTTPClient *http.Client
	PageSize   int
	PageDelay  time.Duration
}

// StreamFeed pages through Helix Get Streams, which Twitch orders by viewer
// count, descending.
type StreamFeed struct {
	client    *helix.Client
	tokens    *TokenSource
	pageSize  int
	pageDelay time.Duration
}

// NewStreamFeed builds a feed from opts.
func NewStreamFeed(opts FeedOptions) (*StreamFeed, error) {
	hopts := &helix.Options{ClientID: opts.ClientID}
	if opts.Tokens == nil {
		hopts.UserAccessToken = strings.TrimPrefix(opts.UserToken, "oauth:")
	}
	if opts.APIBaseURL != "" {
		hopts.APIBaseURL = opts.APIBaseURL
	}
	if opts.HTTPClient != nil {
		hopts.HTTPClient = opts.HTTPClient
	}
	client, err := helix.NewClient(hopts)
	if err != nil {
		return nil, fmt.Errorf("helix: NewClient: %w", err)
	}
	size := opts.PageSize
	if size <= 0 || size > maxPageSize {
		size = maxPageSize
	}
	return &StreamFeed{client: client, tokens: opts.Tokens, pageSize: size, pageDelay: opts.PageDelay}, nil
}

// LiveStreams returns a lazy sequence of live streams. A page is requested only
// when the consumer has drained the previous one, so breaking out of the loop
// stops pagination. Errors are yielded once and end the sequence.
func (f *StreamFeed) LiveStreams(ctx context.Context) iter.Seq2[discovery.StreamRecord, error] {
	return func(yield func(discovery.StreamRecord, error) bool) {
		cursor := ""
		for page := 0; ; page++ {
			if page > 0 && f.pageDelay > 0 {
				select {
				case <-ctx.Done():
				case <-time.After(f.pageDelay):
				}
			}
			if err := ctx.Err(); err != nil {
				yield(discovery.StreamRecord{}, err)
				return
			}
			streams, next, err := f.fetchPage(ctx, cursor)
			if err != nil {
				yield(discovery.StreamRecord{}, fmt.Errorf("page %d: %w", page, err))
				return
			}
			for _, s := range streams {
				rec := discovery.StreamRecord{Viewers: s.ViewerCount, DisplayName: s.UserName, Login: s.UserLogin}
				if !yield(rec, nil) {
					return
				}
			}
			if next == "" || len(streams) == 0 {
				return
			}
			cursor = next
		}
	}
}

func (f *StreamFeed) fetchPage(ctx context.Context, cursor string) ([]helix.Stream, string, error) {
	if f.tokens != nil {
		tok, err := f.tokens.Get(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("app token: %w", err)
		}
		f.client.SetAppAccessToken(tok)
	}
	resp, err := f.client.GetStreams(&helix.StreamsParams{First: f.pageSize, After: cursor})
	if err != nil {
		return nil, "", fmt.Errorf("helix: GetStreams: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized && f.tokens != nil {
		f.tokens.Invalidate()
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("helix: GetStreams failed (%d: %s) %s", resp.StatusCode, resp.Error, resp.ErrorMessage)
	}
	slog.Debug("helix streams page", slog.Int("count", len(resp.Data.Streams)), slog.Bool("more", resp.Data.Pagination.Cursor != ""), slog.String("component", "twitchapi"))
	return resp.Data.Streams, resp.Data.Pagination.Cursor, nil
}
