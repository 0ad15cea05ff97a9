package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"rtchat-service/internal/apperr"
)

type fakeIdentity struct {
	tokens    map[string]int64
	verified  map[int64]bool
	usernames map[string]int64
}

func unary[Req any, Resp any](fn func(context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(_ any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		return fn(ctx, req)
	}
}

func (f *fakeIdentity) register(s *grpc.Server) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "rtchat.identity.v1.Auth",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: "Authenticate",
			Handler: unary(func(_ context.Context, req *wrapperspb.StringValue) (*wrapperspb.Int64Value, error) {
				id, ok := f.tokens[req.GetValue()]
				if !ok {
					return nil, status.Error(codes.Unauthenticated, "bad token")
				}
				return wrapperspb.Int64(id), nil
			}),
		}},
	}, f)
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "rtchat.identity.v1.Users",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "IsEmailVerified",
				Handler: unary(func(_ context.Context, req *wrapperspb.Int64Value) (*wrapperspb.BoolValue, error) {
					verified, ok := f.verified[req.GetValue()]
					if !ok {
						return nil, status.Error(codes.NotFound, "no user")
					}
					return wrapperspb.Bool(verified), nil
				}),
			},
			{
				MethodName: "ResolveUsername",
				Handler: unary(func(_ context.Context, req *wrapperspb.StringValue) (*wrapperspb.Int64Value, error) {
					id, ok := f.usernames[req.GetValue()]
					if !ok {
						return nil, status.Error(codes.NotFound, "no user")
					}
					return wrapperspb.Int64(id), nil
				}),
			},
		},
	}, f)
}

func newTestClient(t *testing.T) *IdentityClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	(&fakeIdentity{
		tokens:    map[string]int64{"good": 42},
		verified:  map[int64]bool{42: true, 7: false},
		usernames: map[string]int64{"bob": 7},
	}).register(server)
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewIdentityClient(conn, conn, 2*time.Second)
}

func TestAuthenticate(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	id, err := client.Authenticate(ctx, "good")
	require.NoError(t, err)
	require.Equal(t, int64(42), id)

	_, err = client.Authenticate(ctx, "bad")
	require.ErrorIs(t, err, ErrUnauthenticated)

	_, err = client.Authenticate(ctx, "  ")
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestIsEmailVerified(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	ok, err := client.IsEmailVerified(ctx, 42)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = client.IsEmailVerified(ctx, 7)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = client.IsEmailVerified(ctx, 99)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestResolveUsername(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	id, err := client.ResolveUsername(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, int64(7), id)

	_, err = client.ResolveUsername(ctx, "nobody")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = client.ResolveUsername(ctx, "")
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
}
