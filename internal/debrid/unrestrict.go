// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package debrid

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultUnrestrictWorkers is the worker-pool size used when the caller
// passes a non-positive value.
const DefaultUnrestrictWorkers = 3

// LinkUnrestrictor converts restricted links into direct URLs.
type LinkUnrestrictor interface {
	UnrestrictLink(ctx context.Context, link string) (string, error)
}

// UnrestrictAll unrestricts links concurrently with a bounded worker pool and
// returns the direct URLs in input order. A link that fails to unrestrict
// falls back to itself rather than failing the batch. The call blocks until
// every worker has finished.
func UnrestrictAll(ctx context.Context, client LinkUnrestrictor, links []string, maxWorkers int) []string {
	if len(links) == 0 {
		return nil
	}
	if maxWorkers <= 0 {
		maxWorkers = DefaultUnrestrictWorkers
	}

	results := make([]string, len(links))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)

	for i, link := range links {
		g.Go(func() error {
			direct, err := client.UnrestrictLink(gctx, link)
			if err != nil {
				log.Warn().Err(err).Int("index", i).Msg("Failed to unrestrict link, keeping restricted link")
				results[i] = link
				return nil
			}
			results[i] = direct
			return nil
		})
	}

	// Workers never return errors; Wait is the synchronous join.
	_ = g.Wait()

	return results
}
