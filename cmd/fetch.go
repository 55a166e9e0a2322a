package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

const maxFetchBytes = 16 << 20

func newFetchCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Replace the payload with the JSON document served at url",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := args[0]
			timeout := getDurationFlag(cmd, "timeout", 10*time.Second)

			return withSession(cmd, func(s *session) error {
				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				defer cancel()
				return s.store.Fetch(ctx, httpJSON(http.DefaultClient, url))
			})
		},
	}
	c.Flags().Duration("timeout", 10*time.Second, "Request timeout")
	return c
}

// httpJSON fetches url and decodes the body as JSON
func httpJSON(client *http.Client, url string) func(ctx context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
		}

		var v any
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxFetchBytes)).Decode(&v); err != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, err)
		}
		return v, nil
	}
}
