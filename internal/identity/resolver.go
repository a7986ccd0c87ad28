package identity

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/DrJLabs/Forgetful-sub001/internal/config"
	"github.com/DrJLabs/Forgetful-sub001/pkg/logger"
)

// SessionDescriptor carries everything a transport layer knows about who is
// calling. All fields are optional; resolution always produces an owner id.
type SessionDescriptor struct {
	// ClientName is the declared bridging-protocol client, e.g. an MCP host
	// or a registered app name from a JWT. It is a hint, not a credential.
	ClientName string
	// SessionToken identifies one logical session at the transport layer.
	SessionToken string
	// OwnerID is an explicit owner supplied by the caller, used verbatim.
	OwnerID string
}

// Resolver maps session descriptors to stable owner ids. Rule order, first
// match wins: an explicit owner id; a cached session-token binding; the
// declared client's configured default owner (which also binds the session
// token); the generic fallback owner. Resolution never fails — every caller
// lands on a deterministic owner id, so a misrouted session fragments into
// the fallback bucket instead of erroring or bleeding into another owner.
type Resolver struct {
	fallback string
	ttl      time.Duration
	bindings *cache.Cache

	mu       sync.RWMutex
	defaults map[string]string

	log *logger.Logger
}

// NewResolver builds a resolver from the identity configuration. A zero or
// absent bindingTTL keeps bindings for the process lifetime.
func NewResolver(cfg config.IdentityConfig, log *logger.Logger) *Resolver {
	ttl := config.ParseDurationOr(cfg.BindingTTL, cache.NoExpiration)
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	cleanup := 10 * time.Minute
	if ttl == cache.NoExpiration {
		cleanup = 0
	}

	defaults := make(map[string]string, len(cfg.Protocols))
	for _, p := range cfg.Protocols {
		if p.Client != "" && p.DefaultOwner != "" {
			defaults[p.Client] = p.DefaultOwner
		}
	}

	return &Resolver{
		fallback: cfg.FallbackOwner,
		ttl:      ttl,
		bindings: cache.New(ttl, cleanup),
		defaults: defaults,
		log:      log,
	}
}

// RegisterProtocol adds or replaces a client-name→default-owner binding.
// Called at startup for every registered app loaded from the registry.
func (r *Resolver) RegisterProtocol(client, defaultOwner string) {
	if client == "" || defaultOwner == "" {
		return
	}
	r.mu.Lock()
	r.defaults[client] = defaultOwner
	r.mu.Unlock()
}

// Resolve maps a descriptor to an owner id.
func (r *Resolver) Resolve(desc SessionDescriptor) string {
	if desc.OwnerID != "" {
		return desc.OwnerID
	}

	if desc.SessionToken != "" {
		if owner, ok := r.bindings.Get(desc.SessionToken); ok {
			return owner.(string)
		}
	}

	if desc.ClientName != "" {
		r.mu.RLock()
		owner, ok := r.defaults[desc.ClientName]
		r.mu.RUnlock()
		if ok {
			// Remember the binding so this logical caller keeps resolving to
			// the same owner even if later requests drop the client name.
			if desc.SessionToken != "" {
				r.bindings.Set(desc.SessionToken, owner, r.ttl)
			}
			return owner
		}
		r.log.WithPayload(map[string]interface{}{
			"client": desc.ClientName,
		}).Debug("unknown client name, using fallback owner")
	}

	return r.fallback
}

// Bind explicitly associates a session token with an owner id.
func (r *Resolver) Bind(sessionToken, ownerID string) {
	if sessionToken == "" || ownerID == "" {
		return
	}
	r.bindings.Set(sessionToken, ownerID, r.ttl)
}

// Invalidate drops a session-token binding, if present.
func (r *Resolver) Invalidate(sessionToken string) {
	r.bindings.Delete(sessionToken)
}
