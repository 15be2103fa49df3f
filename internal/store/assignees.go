package store

import (
	"context"
	"log/slog"
	"time"

	"taskboard-api/internal/cache"
	"taskboard-api/internal/models"
)

// Directory resolves assignee ids to {id, name, email}, caching hits for a short TTL.
type Directory struct {
	users *UserRepository
	cache *cache.TTL[string, models.Assignee]
}

func NewDirectory(users *UserRepository, ttl time.Duration) *Directory {
	return &Directory{
		users: users,
		cache: cache.NewTTL[string, models.Assignee](ttl),
	}
}

// Resolve returns the known assignees among ids. Unknown ids are absent from the result.
func (d *Directory) Resolve(ctx context.Context, ids ...string) (map[string]models.Assignee, error) {
	out := make(map[string]models.Assignee, len(ids))
	var missing []string
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if a, ok := d.cache.Get(id); ok {
			out[id] = a
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	users, err := d.users.FindByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		a := u.AsAssignee()
		d.cache.Put(u.ID, a)
		out[u.ID] = a
	}
	return out, nil
}

// Fill sets Assignee on every task from its AssigneeID.
func (d *Directory) Fill(ctx context.Context, tasks []models.Task) error {
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.AssigneeID)
	}
	resolved, err := d.Resolve(ctx, ids...)
	if err != nil {
		return err
	}
	for i := range tasks {
		if a, ok := resolved[tasks[i].AssigneeID]; ok {
			tasks[i].Assignee = a
		} else {
			tasks[i].Assignee = models.Assignee{ID: tasks[i].AssigneeID}
		}
	}
	return nil
}

// Invalidate drops a cached user after it changes or is removed.
func (d *Directory) Invalidate(id string) {
	d.cache.Forget(id)
}

// Run drops expired cache entries every interval until ctx is done.
func (d *Directory) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sweep()
		}
	}
}

func (d *Directory) sweep() {
	n := d.cache.Sweep()
	slog.Debug("assignee cache swept", "remaining", n)
}
