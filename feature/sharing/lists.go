package sharing

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"contact-manager/feature/contacts/models"
)

// Resolver resolves distribution list names to their current member sets.
// Lists are pure addressing aliases: expansion happens at share time, no
// contact ever references a list, and deleting a list revokes nothing.
type Resolver struct {
	mu    sync.RWMutex
	lists map[string][]string
}

// NewResolver creates a resolver from the configured list definitions,
// given as "name:user1,user2;other:user3".
func NewResolver(definitions string) (*Resolver, error) {
	r := &Resolver{lists: make(map[string][]string)}

	for _, def := range strings.Split(definitions, ";") {
		def = strings.TrimSpace(def)
		if def == "" {
			continue
		}
		sep := strings.IndexByte(def, ':')
		if sep < 0 {
			return nil, fmt.Errorf("malformed distribution list %q, want name:user1,user2", def)
		}
		name := strings.TrimSpace(def[:sep])
		if name == "" {
			return nil, fmt.Errorf("malformed distribution list %q, empty name", def)
		}

		var members []string
		for _, m := range strings.Split(def[sep+1:], ",") {
			if m = strings.TrimSpace(m); m != "" {
				members = append(members, m)
			}
		}
		r.lists[name] = dedupeMembers(members)
	}
	return r, nil
}

// Resolve returns the current members of a list.
func (r *Resolver) Resolve(name string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members, ok := r.lists[name]
	if !ok {
		return nil, false
	}
	return append([]string(nil), members...), true
}

// Lists returns all known lists, sorted by name.
func (r *Resolver) Lists() []models.DistributionList {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.DistributionList, 0, len(r.lists))
	for name, members := range r.lists {
		out = append(out, models.DistributionList{
			Name:      name,
			Usernames: append([]string(nil), members...),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AddMember adds a user to a list, creating the list if needed. It returns
// true when the membership actually changed.
func (r *Resolver) AddMember(name, username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.lists[name] {
		if m == username {
			return false
		}
	}
	r.lists[name] = append(r.lists[name], username)
	return true
}

// RemoveMember removes a user from a list. It returns true when the user
// was a member.
func (r *Resolver) RemoveMember(name, username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.lists[name]
	if !ok {
		return false
	}
	kept := members[:0]
	removed := false
	for _, m := range members {
		if m == username {
			removed = true
			continue
		}
		kept = append(kept, m)
	}
	r.lists[name] = kept
	return removed
}

func dedupeMembers(members []string) []string {
	seen := make(map[string]struct{}, len(members))
	out := members[:0]
	for _, m := range members {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
