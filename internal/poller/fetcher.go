package poller

import (
	"context"
	"fmt"
	"sync"

	"presence-tracker-backend/internal/ident"
	"presence-tracker-backend/internal/model"
	"presence-tracker-backend/internal/provider"
)

// Result captures the outcome of one presence lookup. Failures are carried
// per item so one bad target cannot abort its batch.
type Result struct {
	Target     model.Target
	Identifier ident.Identifier
	Entity     provider.Entity
	Err        error
}

// Fetch fans out one concurrent lookup per target and returns one result
// per input, in input order. The degree of parallelism is the batch size;
// the caller bounds it by how it slices batches.
func Fetch(ctx context.Context, client provider.Client, targets []model.Target) []Result {
	results := make([]Result, len(targets))

	var wg sync.WaitGroup
	for i, t := range targets {
		results[i].Target = t

		id, err := ident.FromTarget(t)
		if err != nil {
			results[i].Err = fmt.Errorf("%w: %v", provider.ErrResolution, err)
			continue
		}
		results[i].Identifier = id

		wg.Add(1)
		go func(i int, id ident.Identifier) {
			defer wg.Done()
			ent, err := client.Resolve(ctx, id)
			results[i].Entity = ent
			results[i].Err = err
		}(i, id)
	}
	wg.Wait()

	return results
}
