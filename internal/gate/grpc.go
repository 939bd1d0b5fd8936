package gate

import (
	"context"

	"github.com/openexch/exauth/internal/autherr"
	"github.com/openexch/exauth/internal/identity"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type identityContextKey struct{}

// UnaryServerInterceptor is the socket-transport variant of the gate. It
// follows the same decision tree as the HTTP middleware but reads the client
// address from the transport peer and reports denials as status errors.
func UnaryServerInterceptor(g *Gate, requiredScopes ...string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)

		gateReq := Request{
			APIKey:         firstValue(md, headerAPIKey),
			Authorization:  firstValue(md, "authorization"),
			APISignature:   firstValue(md, headerAPISignature),
			APIExpires:     firstValue(md, headerAPIExpires),
			Method:         "GRPC",
			Path:           info.FullMethod,
			RequiredScopes: requiredScopes,
		}
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			gateReq.SourceIP = p.Addr.String()
		}

		id, err := g.Authorize(ctx, gateReq)
		if err != nil {
			kind, ok := autherr.KindOf(err)
			if !ok {
				return nil, status.Error(codes.Internal, "internal error")
			}
			return nil, status.Error(grpcCode(kind), denialMessage(err))
		}

		return handler(context.WithValue(ctx, identityContextKey{}, id), req)
	}
}

func IdentityFrom(ctx context.Context) (*identity.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*identity.Identity)
	return id, ok
}

func firstValue(md metadata.MD, key string) string {
	vals := md.Get(key)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func grpcCode(kind autherr.Kind) codes.Code {
	switch kind {
	case autherr.KindMissingHeader, autherr.KindInvalidToken:
		return codes.Unauthenticated
	case autherr.KindCodeNotFound, autherr.KindTokenNotFound:
		return codes.NotFound
	default:
		return codes.PermissionDenied
	}
}
