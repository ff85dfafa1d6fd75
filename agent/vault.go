package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/rare/core"
	"github.com/hupe1980/rare/logging"
)

// VaultAgentID is the id of the secure storage engine.
const VaultAgentID = "vault"

// Vault actions.
const (
	ActionVaultAccess = "vault_access"
	ActionVaultRead   = "vault_read"
)

// DefaultGrantTTL is how long a vault grant stays valid.
const DefaultGrantTTL = 30 * time.Minute

// VaultAgentOptions configures a VaultAgent.
type VaultAgentOptions struct {
	GrantTTL time.Duration
	Clock    func() time.Time
	Logger   logging.Logger
}

// Grant is a time-boxed capability to read the vault.
type Grant struct {
	ID        string    `json:"id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// VaultAgent guards secrets behind a time-boxed grant. Expiry is checked
// lazily against the clock whenever the vault is consulted.
type VaultAgent struct {
	*Base
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	grant   *Grant
	secrets map[string]string
}

// NewVaultAgent creates the "vault" engine.
func NewVaultAgent(optFns ...func(o *VaultAgentOptions)) *VaultAgent {
	opts := VaultAgentOptions{GrantTTL: DefaultGrantTTL, Clock: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.GrantTTL <= 0 {
		opts.GrantTTL = DefaultGrantTTL
	}

	v := &VaultAgent{
		Base: NewBase(VaultAgentID, func(o *BaseOptions) {
			o.Name = "Vault"
			o.Description = "Secure storage unlocked by time-boxed grants"
			o.Logger = opts.Logger
		}),
		ttl:     opts.GrantTTL,
		now:     opts.Clock,
		secrets: make(map[string]string),
	}
	v.Handle(ActionVaultAccess, v.access)
	v.Handle(ActionVaultRead, v.read)
	return v
}

// Grant unlocks the vault for ttl, or the configured default when ttl <= 0.
// A new grant replaces the previous one.
func (v *VaultAgent) Grant(ttl time.Duration) Grant {
	if ttl <= 0 {
		ttl = v.ttl
	}
	now := v.now()
	g := Grant{ID: core.NewID(), IssuedAt: now, ExpiresAt: now.Add(ttl)}

	v.mu.Lock()
	v.grant = &g
	v.mu.Unlock()

	v.log.LogInfo("vault grant issued", "grant_id", g.ID, "expires_at", g.ExpiresAt)
	return g
}

// Revoke locks the vault immediately.
func (v *VaultAgent) Revoke() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.grant = nil
}

// Unlocked reports whether a grant is active, dropping an expired one.
func (v *VaultAgent) Unlocked() bool {
	_, ok := v.activeGrant()
	return ok
}

func (v *VaultAgent) activeGrant() (Grant, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.grant == nil {
		return Grant{}, false
	}
	if !v.now().Before(v.grant.ExpiresAt) {
		v.grant = nil
		return Grant{}, false
	}
	return *v.grant, true
}

// Put stores a secret. Writing does not require a grant.
func (v *VaultAgent) Put(key, value string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.secrets[key] = value
}

func (v *VaultAgent) access(context.Context, core.ExecuteCommand) (Result, error) {
	g, ok := v.activeGrant()
	if !ok {
		return Result{Output: "locked", Data: map[string]any{"unlocked": false}}, nil
	}
	return Result{Output: "unlocked", Data: map[string]any{
		"unlocked":   true,
		"grant_id":   g.ID,
		"expires_at": g.ExpiresAt,
	}}, nil
}

func (v *VaultAgent) read(_ context.Context, cmd core.ExecuteCommand) (Result, error) {
	if _, ok := v.activeGrant(); !ok {
		return Result{}, core.ErrVaultLocked
	}
	key := stringParam(cmd.Parameters, "key")
	v.mu.Lock()
	secret, found := v.secrets[key]
	v.mu.Unlock()
	if !found {
		return Result{}, fmt.Errorf("vault: no secret %q", key)
	}
	return Result{Output: secret}, nil
}
