package userstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnehpets/openspec/client"
	"github.com/mnehpets/openspec/jsonrpc"
	"github.com/mnehpets/openspec/spec"
)

func newService(t *testing.T) (*jsonrpc.Module[State], client.Caller) {
	t.Helper()
	m := jsonrpc.New(spec.NewInfo("users", "1.0.0"), State{
		Service: "users",
		Started: time.Now(),
		Labels:  map[string]string{"env": "test"},
		Users:   NewMemoryStore(),
	})
	require.NoError(t, Register(m))
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m, client.NewLocal(m)
}

func rpcCode(t *testing.T, err error) int {
	t.Helper()
	var rpcErr *client.RPCError
	require.ErrorAs(t, err, &rpcErr)
	return rpcErr.Code
}

func TestRegister_Twice(t *testing.T) {
	m, _ := newService(t)
	err := Register(m)
	require.Error(t, err)
	assert.ErrorIs(t, err, jsonrpc.ErrDuplicateMethod)
}

func TestMethods_Spec(t *testing.T) {
	m, _ := newService(t)
	doc := m.Spec()

	var names []string
	for _, meth := range doc.Methods {
		names = append(names, meth.Name)
	}
	assert.Equal(t, []string{"ping", "service_info", "register_user", "get_user", "list_users", "delete_user", "remove_user"}, names)

	reg, ok := doc.Method("register_user")
	require.True(t, ok)
	assert.Equal(t, []string{"string", "null"}, reg.Params[1].Schema.Types())
	assert.True(t, reg.Params[1].Required)
	assert.Equal(t, "RegisterUserResponse", reg.Result.Name)
	assert.Equal(t, "date-time", reg.Result.Schema.Get("properties.created_at.format").String())

	info, ok := doc.Method("service_info")
	require.True(t, ok)
	assert.True(t, info.Params[0].Schema.AllowsNull())

	rm, ok := doc.Method("remove_user")
	require.True(t, ok)
	assert.True(t, rm.Deprecated)
}

func TestMethods_UserLifecycle(t *testing.T) {
	ctx := context.Background()
	_, c := newService(t)

	assert.Equal(t, "pong", client.MustCall[string](ctx, c, "ping"))

	ann, err := client.Call[User](ctx, c, "register_user", "ann", "ann@example.com")
	require.NoError(t, err)
	assert.EqualValues(t, 1, ann.ID)

	_, err = client.Call[User](ctx, c, "register_user", "ann2", "ann@example.com")
	assert.Equal(t, CodeConflict, rpcCode(t, err))

	_, err = client.Call[User](ctx, c, "register_user", "  ", nil)
	assert.Equal(t, jsonrpc.CodeInvalidParams, rpcCode(t, err))

	bo, err := client.Call[User](ctx, c, "register_user", "bo", nil)
	require.NoError(t, err)
	assert.Nil(t, bo.Email)

	got, err := client.Call[User](ctx, c, "get_user", ann.ID)
	require.NoError(t, err)
	assert.Equal(t, ann.Name, got.Name)

	page, err := client.Call[Page](ctx, c, "list_users", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Len(t, page.Users, 2)

	page, err = client.Call[Page](ctx, c, "list_users", 1, 1)
	require.NoError(t, err)
	require.Len(t, page.Users, 1)
	assert.Equal(t, "bo", page.Users[0].Name)

	_, err = client.Call[Page](ctx, c, "list_users", 0, 1000)
	assert.Equal(t, jsonrpc.CodeInvalidParams, rpcCode(t, err))

	deleted, err := client.Call[bool](ctx, c, "delete_user", ann.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = client.Call[bool](ctx, c, "remove_user", ann.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = client.Call[User](ctx, c, "get_user", ann.ID)
	assert.Equal(t, CodeNotFound, rpcCode(t, err))
}

func TestMethods_ServiceInfoUsesPrivateCopy(t *testing.T) {
	ctx := context.Background()
	m, c := newService(t)

	info, err := client.Call[ServiceInfo](ctx, c, "service_info", map[string]string{"req": "1"})
	require.NoError(t, err)
	assert.Equal(t, "users", info.Service)
	assert.Equal(t, map[string]string{"env": "test", "req": "1"}, info.Labels)
	assert.Equal(t, map[string]string{"env": "test"}, m.State().Labels)

	info, err = client.Call[ServiceInfo](ctx, c, "service_info")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"env": "test"}, info.Labels)
}

func TestMethods_ConcurrentRegistrations(t *testing.T) {
	ctx := context.Background()
	_, c := newService(t)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Call[User](ctx, c, "register_user", "u", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	page, err := client.Call[Page](ctx, c, "list_users", 0, 100)
	require.NoError(t, err)
	assert.Equal(t, 20, page.Total)
}
