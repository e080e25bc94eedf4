package userstore

import (
	"context"
	"errors"
	"maps"
	"reflect"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/mnehpets/openspec/jsonrpc"
)

// Application error codes.
const (
	CodeNotFound = -32004
	CodeConflict = -32009
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// State is shared by every user method.
type State struct {
	Service string
	Started time.Time
	Labels  map[string]string
	Users   Store
}

// Clone copies the labels; the store is shared.
func (s *State) Clone() State {
	c := *s
	c.Labels = maps.Clone(s.Labels)
	return c
}

type ServiceInfo struct {
	Service string            `json:"service"`
	Uptime  string            `json:"uptime"`
	Users   int               `json:"users"`
	Labels  map[string]string `json:"labels"`
}

type Page struct {
	Users  []User `json:"users"`
	Offset int    `json:"offset"`
	Total  int    `json:"total"`
}

// Methods describes the user directory API in registration order.
func Methods() []jsonrpc.Descriptor[State] {
	return []jsonrpc.Descriptor[State]{
		jsonrpc.NewMethod[State]("ping").
			Summary("Liveness check.").
			Returns(reflect.TypeFor[string]()).
			Sync(jsonrpc.BindNone, ping),

		jsonrpc.NewMethod[State]("service_info").
			Summary("Describes the running service.").
			Doc("Extra labels are merged into the reported labels for this",
				"response only.").
			Param(jsonrpc.Arg[*map[string]string]("extra_labels")).
			Returns(reflect.TypeFor[ServiceInfo]()).
			Tag("admin").
			Sync(jsonrpc.BindOwned, serviceInfo),

		jsonrpc.NewMethod[State]("register_user").
			Summary("Creates a user.").
			Param(
				jsonrpc.Arg[string]("name").Summarize("Display name."),
				jsonrpc.Arg[*string]("email").Summarize("Optional unique email address."),
			).
			Returns(reflect.TypeFor[User](), "The stored user.").
			Error(CodeConflict, "email already registered").
			Tag("users").
			Async(jsonrpc.BindShared, registerUser),

		jsonrpc.NewMethod[State]("get_user").
			Summary("Looks up a user by id.").
			Param(jsonrpc.Arg[int64]("id")).
			Returns(reflect.TypeFor[User]()).
			Error(CodeNotFound, "user not found").
			Tag("users").
			Sync(jsonrpc.BindBorrowed, getUser),

		jsonrpc.NewMethod[State]("list_users").
			Summary("Lists users by id.").
			Param(
				jsonrpc.Arg[int]("offset"),
				jsonrpc.Arg[*int]("limit").Doc("Defaults to 50, at most 500."),
			).
			Returns(reflect.TypeFor[Page]()).
			Tag("users").
			Async(jsonrpc.BindShared, listUsers),

		jsonrpc.NewMethod[State]("delete_user").
			Summary("Deletes a user.").
			Param(jsonrpc.Arg[int64]("id")).
			Returns(reflect.TypeFor[bool](), "Whether a user was deleted.").
			Tag("users").
			Async(jsonrpc.BindShared, deleteUser),

		jsonrpc.NewMethod[State]("remove_user").
			Summary("Deletes a user.").
			Doc("Use delete_user.").
			Deprecate().
			Param(jsonrpc.Arg[int64]("id")).
			Returns(reflect.TypeFor[bool]()).
			Tag("users").
			Async(jsonrpc.BindShared, deleteUser),
	}
}

// Register adds every user method to m.
func Register(m *jsonrpc.Module[State]) error {
	var errs error
	for _, d := range Methods() {
		errs = multierr.Append(errs, m.Register(d))
	}
	return errs
}

func ping(context.Context, jsonrpc.Args, *State, jsonrpc.Extensions) (any, error) {
	return "pong", nil
}

func serviceInfo(ctx context.Context, args jsonrpc.Args, s *State, _ jsonrpc.Extensions) (any, error) {
	// s is a private copy, so the merge is not seen by other calls.
	if s.Labels == nil {
		s.Labels = make(map[string]string)
	}
	if extra := jsonrpc.At[*map[string]string](args, 0); extra != nil {
		maps.Copy(s.Labels, *extra)
	}

	n, err := s.Users.Count(ctx)
	if err != nil {
		return nil, err
	}
	return ServiceInfo{
		Service: s.Service,
		Uptime:  time.Since(s.Started).Truncate(time.Second).String(),
		Users:   n,
		Labels:  s.Labels,
	}, nil
}

func registerUser(ctx context.Context, args jsonrpc.Args, h jsonrpc.Handle[State], _ jsonrpc.Extensions) (any, error) {
	name := strings.TrimSpace(jsonrpc.At[string](args, 0))
	if name == "" {
		return nil, jsonrpc.NewInvalidParamsError("name must not be empty")
	}
	u, err := h.Get().Users.Create(ctx, User{Name: name, Email: jsonrpc.At[*string](args, 1)})
	if err != nil {
		return nil, storeError(err)
	}
	return u, nil
}

func getUser(ctx context.Context, args jsonrpc.Args, s *State, _ jsonrpc.Extensions) (any, error) {
	u, err := s.Users.Get(ctx, jsonrpc.At[int64](args, 0))
	if err != nil {
		return nil, storeError(err)
	}
	return u, nil
}

func listUsers(ctx context.Context, args jsonrpc.Args, h jsonrpc.Handle[State], _ jsonrpc.Extensions) (any, error) {
	offset := jsonrpc.At[int](args, 0)
	limit := defaultLimit
	if l := jsonrpc.At[*int](args, 1); l != nil {
		limit = *l
	}
	if offset < 0 || limit <= 0 || limit > maxLimit {
		return nil, jsonrpc.NewInvalidParamsError("offset must be >= 0 and limit between 1 and 500")
	}

	store := h.Get().Users
	users, err := store.List(ctx, offset, limit)
	if err != nil {
		return nil, storeError(err)
	}
	total, err := store.Count(ctx)
	if err != nil {
		return nil, storeError(err)
	}
	return Page{Users: users, Offset: offset, Total: total}, nil
}

func deleteUser(ctx context.Context, args jsonrpc.Args, h jsonrpc.Handle[State], _ jsonrpc.Extensions) (any, error) {
	ok, err := h.Get().Users.Delete(ctx, jsonrpc.At[int64](args, 0))
	if err != nil {
		return nil, storeError(err)
	}
	return ok, nil
}

func storeError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return jsonrpc.NewError(CodeNotFound, "user not found")
	case errors.Is(err, ErrDuplicateEmail):
		return jsonrpc.NewError(CodeConflict, "email already registered")
	}
	return err
}
