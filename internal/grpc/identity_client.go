package grpc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"rtchat-service/internal/apperr"
)

// Full method names of the identity contract. Requests and responses are protobuf
// well-known wrapper types so no generated stubs are needed on either side.
const (
	MethodAuthenticate    = "/rtchat.identity.v1.Auth/Authenticate"
	MethodIsEmailVerified = "/rtchat.identity.v1.Users/IsEmailVerified"
	MethodResolveUsername = "/rtchat.identity.v1.Users/ResolveUsername"
)

// ErrUnauthenticated is returned when a token is rejected.
var ErrUnauthenticated = errors.New("unauthenticated")

// IdentityClient resolves tokens and users through the auth and user services.
type IdentityClient struct {
	auth    grpc.ClientConnInterface
	users   grpc.ClientConnInterface
	timeout time.Duration
}

// NewIdentityClient constructs the client. timeout bounds each call; zero disables it.
func NewIdentityClient(auth, users grpc.ClientConnInterface, timeout time.Duration) *IdentityClient {
	return &IdentityClient{auth: auth, users: users, timeout: timeout}
}

func (c *IdentityClient) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Authenticate verifies token and returns the user id it belongs to.
func (c *IdentityClient) Authenticate(ctx context.Context, token string) (int64, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, ErrUnauthenticated
	}
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	resp := &wrapperspb.Int64Value{}
	if err := c.auth.Invoke(ctx, MethodAuthenticate, wrapperspb.String(token), resp); err != nil {
		if status.Code(err) == codes.Unauthenticated || status.Code(err) == codes.PermissionDenied {
			return 0, ErrUnauthenticated
		}
		return 0, fmt.Errorf("authenticate: %w", err)
	}
	if resp.GetValue() <= 0 {
		return 0, ErrUnauthenticated
	}
	return resp.GetValue(), nil
}

// IsEmailVerified reports whether userID has confirmed their email address.
func (c *IdentityClient) IsEmailVerified(ctx context.Context, userID int64) (bool, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	resp := &wrapperspb.BoolValue{}
	if err := c.users.Invoke(ctx, MethodIsEmailVerified, wrapperspb.Int64(userID), resp); err != nil {
		return false, mapUserErr("is email verified", err)
	}
	return resp.GetValue(), nil
}

// ResolveUsername returns the id of the user registered under username.
func (c *IdentityClient) ResolveUsername(ctx context.Context, username string) (int64, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return 0, fmt.Errorf("%w: username is required", apperr.ErrInvalidInput)
	}
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	resp := &wrapperspb.Int64Value{}
	if err := c.users.Invoke(ctx, MethodResolveUsername, wrapperspb.String(username), resp); err != nil {
		return 0, mapUserErr("resolve username", err)
	}
	if resp.GetValue() <= 0 {
		return 0, fmt.Errorf("%w: user %q", apperr.ErrNotFound, username)
	}
	return resp.GetValue(), nil
}

func mapUserErr(op string, err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	case codes.InvalidArgument:
		return fmt.Errorf("%s: %w", op, apperr.ErrInvalidInput)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
