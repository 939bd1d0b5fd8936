package gate

import (
	"context"
	"net"
	"testing"

	"github.com/google/uuid"
	"github.com/openexch/exauth/internal/autherr"
	"github.com/openexch/exauth/internal/identity"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

func grpcContext(md metadata.MD) context.Context {
	ctx := metadata.NewIncomingContext(context.Background(), md)
	return peer.NewContext(ctx, &peer.Peer{
		Addr: &net.TCPAddr{IP: net.IPv4(10, 0, 0, 7), Port: 51234},
	})
}

func TestInterceptorAllows(t *testing.T) {
	want := &identity.Identity{UserID: uuid.New()}
	g := New(&fakeBearer{id: want}, &fakeKeys{})
	intercept := UnaryServerInterceptor(g, "user")

	var got *identity.Identity
	handler := func(ctx context.Context, req any) (any, error) {
		got, _ = IdentityFrom(ctx)
		return "ok", nil
	}

	ctx := grpcContext(metadata.Pairs("authorization", "Bearer tok"))
	resp, err := intercept(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/exauth.v1.Accounts/Get"}, handler)
	if err != nil {
		t.Fatalf("intercept: %v", err)
	}
	if resp != "ok" {
		t.Fatalf("handler result not propagated: %v", resp)
	}
	if got != want {
		t.Fatal("identity not attached to handler context")
	}
}

func TestInterceptorDenies(t *testing.T) {
	g := New(&fakeBearer{err: autherr.E(autherr.KindDeactivatedUser, "account is deactivated")}, &fakeKeys{})
	intercept := UnaryServerInterceptor(g, "user")

	handler := func(ctx context.Context, req any) (any, error) {
		t.Fatal("handler ran on denied request")
		return nil, nil
	}

	ctx := grpcContext(metadata.Pairs("authorization", "Bearer tok"))
	_, err := intercept(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/exauth.v1.Accounts/Get"}, handler)
	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("expected status error, got %v", err)
	}
	if st.Code() != codes.PermissionDenied {
		t.Fatalf("expected PermissionDenied, got %s", st.Code())
	}
}

func TestInterceptorMissingCredentials(t *testing.T) {
	g := New(&fakeBearer{}, &fakeKeys{})
	intercept := UnaryServerInterceptor(g)

	ctx := grpcContext(metadata.MD{})
	_, err := intercept(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/exauth.v1.Accounts/Get"}, func(ctx context.Context, req any) (any, error) {
		return nil, nil
	})
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}
}
