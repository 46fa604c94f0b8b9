package profile

import (
	"context"
	"strings"

	"github.com/visitdesk/visitdesk/internal/platform/auth"
	"github.com/visitdesk/visitdesk/internal/platform/store"
	"github.com/visitdesk/visitdesk/internal/platform/trigger"
)

// RoleFor picks the role assigned at signup.
func RoleFor(email, receptionDomain string) string {
	domain := "@" + strings.TrimPrefix(strings.ToLower(receptionDomain), "@")
	if receptionDomain != "" && strings.HasSuffix(strings.ToLower(strings.TrimSpace(email)), domain) {
		return auth.RoleReceptionist
	}
	return auth.RoleHost
}

// Hooks react to profile writes. repo must not be observed by the dispatcher
// the hooks are registered on.
type Hooks struct {
	repo            Repository
	receptionDomain string
}

func NewHooks(repo Repository, receptionDomain string) *Hooks {
	return &Hooks{repo: repo, receptionDomain: receptionDomain}
}

func (h *Hooks) Register(d *trigger.Dispatcher) {
	d.On(Collection, trigger.Created, "assign-role", h.AssignRole)
}

// AssignRole sets role on a newly created profile unless one is present.
func (h *Hooks) AssignRole(ctx context.Context, ch trigger.Change) error {
	if ch.After.Fields.String("role") != "" {
		return nil
	}
	role := RoleFor(ch.After.Fields.String("email"), h.receptionDomain)
	_, err := h.repo.Update(ctx, ch.ID, store.Fields{"role": role})
	return err
}
