package identity

import (
	"fmt"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrJLabs/Forgetful-sub001/internal/config"
	"github.com/DrJLabs/Forgetful-sub001/pkg/logger"
)

func newTestResolver() *Resolver {
	logger.Init(logrus.ErrorLevel)
	return NewResolver(config.IdentityConfig{
		FallbackOwner: "default_user",
		Protocols: []config.ProtocolBinding{
			{Client: "mcp", DefaultOwner: "workstation_user"},
			{Client: "chat_web", DefaultOwner: "web_user"},
		},
	}, logger.New("identity_test", "", ""))
}

func TestResolveExplicitOwnerWinsOverEverything(t *testing.T) {
	r := newTestResolver()
	r.Bind("tok-1", "cached_owner")

	owner := r.Resolve(SessionDescriptor{
		ClientName:   "mcp",
		SessionToken: "tok-1",
		OwnerID:      "alice",
	})

	assert.Equal(t, "alice", owner)
}

func TestResolveReusesCachedBinding(t *testing.T) {
	r := newTestResolver()
	r.Bind("tok-1", "alice")

	owner := r.Resolve(SessionDescriptor{SessionToken: "tok-1"})

	assert.Equal(t, "alice", owner)
}

func TestResolveKnownClientBindsSession(t *testing.T) {
	r := newTestResolver()

	first := r.Resolve(SessionDescriptor{ClientName: "mcp", SessionToken: "tok-9"})
	require.Equal(t, "workstation_user", first)

	// The binding must stick even when the client name disappears from
	// later requests of the same session.
	second := r.Resolve(SessionDescriptor{SessionToken: "tok-9"})
	assert.Equal(t, "workstation_user", second,
		"one logical caller must not fragment across owner ids")
}

func TestResolveUnknownClientFallsBack(t *testing.T) {
	r := newTestResolver()

	owner := r.Resolve(SessionDescriptor{ClientName: "rogue", SessionToken: "tok-2"})

	assert.Equal(t, "default_user", owner)
}

func TestResolveEmptyDescriptorFallsBack(t *testing.T) {
	r := newTestResolver()

	assert.Equal(t, "default_user", r.Resolve(SessionDescriptor{}))
}

func TestResolveNeverReturnsEmpty(t *testing.T) {
	r := newTestResolver()

	descriptors := []SessionDescriptor{
		{},
		{ClientName: "unknown"},
		{SessionToken: "never-bound"},
		{ClientName: "mcp"},
	}
	for _, d := range descriptors {
		assert.NotEmpty(t, r.Resolve(d))
	}
}

func TestInvalidateDropsBinding(t *testing.T) {
	r := newTestResolver()
	r.Bind("tok-1", "alice")
	r.Invalidate("tok-1")

	owner := r.Resolve(SessionDescriptor{SessionToken: "tok-1"})

	assert.Equal(t, "default_user", owner)
}

func TestRegisterProtocolAddsRuntimeBinding(t *testing.T) {
	r := newTestResolver()
	r.RegisterProtocol("new_app", "app_owner")

	owner := r.Resolve(SessionDescriptor{ClientName: "new_app"})

	assert.Equal(t, "app_owner", owner)
}

func TestResolveConcurrentSessions(t *testing.T) {
	r := newTestResolver()

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token := fmt.Sprintf("tok-%d", i)
			first := r.Resolve(SessionDescriptor{ClientName: "mcp", SessionToken: token})
			second := r.Resolve(SessionDescriptor{SessionToken: token})
			assert.Equal(t, first, second)
		}(i)
	}
	wg.Wait()
}
