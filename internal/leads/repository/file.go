package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"salesbot_backend/platform/fsstore"
)

const leadsFileName = "leads.jsonl"

// File appends one JSON line per lead version. On open the log is replayed
// and the last line per ID wins, which is how MergeFacts updates a lead.
type File struct {
	path string

	mu    sync.Mutex
	leads map[uuid.UUID]Lead
}

// OpenFile replays dir/leads.jsonl. A torn final line is ignored.
func OpenFile(dir string) (*File, error) {
	if err := fsstore.EnsureDir(dir); err != nil {
		return nil, err
	}
	r := &File{path: filepath.Join(dir, leadsFileName), leads: map[uuid.UUID]Lead{}}

	raw, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read leads file: %w", err)
	}

	for _, line := range bytes.Split(raw, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var lead Lead
		if err := json.Unmarshal(line, &lead); err != nil {
			continue
		}
		r.leads[lead.ID] = lead
	}

	// Terminate a torn tail so the next append starts on its own line.
	if len(raw) > 0 && raw[len(raw)-1] != '\n' {
		if err := fsstore.AppendLine(r.path, nil); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *File) CreateIfAbsent(_ context.Context, lead Lead, since time.Time) (Lead, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var latest *Lead
	for _, existing := range r.leads {
		if existing.ContactValue != lead.ContactValue || existing.Channel != lead.Channel {
			continue
		}
		if existing.CreatedAt.Before(since) {
			continue
		}
		if latest == nil || existing.CreatedAt.After(latest.CreatedAt) {
			candidate := existing
			latest = &candidate
		}
	}
	if latest != nil {
		return cloneLead(*latest), false, nil
	}

	if err := r.append(lead); err != nil {
		return Lead{}, false, err
	}
	r.leads[lead.ID] = cloneLead(lead)
	return cloneLead(lead), true, nil
}

func (r *File) MergeFacts(_ context.Context, id uuid.UUID, facts map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lead, ok := r.leads[id]
	if !ok {
		return ErrNotFound
	}
	updated := cloneLead(lead)
	if updated.Facts == nil {
		updated.Facts = map[string]string{}
	}
	maps.Copy(updated.Facts, facts)

	if err := r.append(updated); err != nil {
		return err
	}
	r.leads[id] = updated
	return nil
}

func (r *File) ListSince(_ context.Context, since time.Time) ([]Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Lead, 0, len(r.leads))
	for _, lead := range r.leads {
		if lead.CreatedAt.Before(since) {
			continue
		}
		out = append(out, cloneLead(lead))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *File) append(lead Lead) error {
	line, err := json.Marshal(lead)
	if err != nil {
		return fmt.Errorf("encode lead: %w", err)
	}
	return fsstore.AppendLine(r.path, line)
}

func cloneLead(lead Lead) Lead {
	lead.Facts = maps.Clone(lead.Facts)
	return lead
}
