package directory

import (
	"math/rand/v2"
	"time"

	"github.com/foxzi/rbacdash/internal/rbac"
)

// lastLoginWindow bounds how far back a generated lastLogin may be
const lastLoginWindow = 10_000_000_000 * time.Millisecond

// Enricher turns upstream entries into demo users with a random role,
// status and lastLogin
type Enricher struct {
	rand *rand.Rand
}

// NewEnricher creates an enricher drawing from r. A nil r uses a randomly
// seeded source.
func NewEnricher(r *rand.Rand) *Enricher {
	if r == nil {
		r = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Enricher{rand: r}
}

// Enrich builds users from entries as of now
func (e *Enricher) Enrich(entries []Entry, now time.Time) []rbac.User {
	users := make([]rbac.User, len(entries))
	for i, entry := range entries {
		status := rbac.StatusInactive
		if e.rand.Float64() > 0.5 {
			status = rbac.StatusActive
		}

		users[i] = rbac.User{
			Name:      entry.Name,
			Email:     entry.Email,
			Role:      rbac.UserRoles[e.rand.IntN(len(rbac.UserRoles))],
			Status:    status,
			LastLogin: now.Add(-time.Duration(e.rand.Int64N(int64(lastLoginWindow)))).UTC(),
		}
	}
	return users
}
