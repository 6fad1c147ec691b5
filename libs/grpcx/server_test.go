package grpcx

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicsched/libs/httpx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := lis.Addr().String()
	_ = lis.Close()
	return addr
}

func TestHealthRoundTrip(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer("scheduling", logger)
	addr := freeAddr(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, addr) }()
	defer func() {
		cancel()
		<-done
	}()

	check := func() error {
		cctx, ccancel := context.WithTimeout(context.Background(), time.Second)
		defer ccancel()
		return CheckHealth(cctx, addr, "scheduling")
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		err := check()
		if err != nil && err.Error() == "scheduling is NOT_SERVING" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never reported NOT_SERVING: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	srv.SetServing(true)
	if err := check(); err != nil {
		t.Fatalf("expected SERVING, got %v", err)
	}
}

func TestRequestIDPropagation(t *testing.T) {
	var seen string
	handler := func(ctx context.Context, _ any) (any, error) {
		seen = httpx.RequestIDFromContext(ctx)
		return nil, nil
	}
	info := &grpc.UnaryServerInfo{FullMethod: "/scheduling.v1/Ping"}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-request-id", "rid-7"))
	if _, err := adoptRequestID()(ctx, nil, info, handler); err != nil {
		t.Fatal(err)
	}
	if seen != "rid-7" {
		t.Fatalf("inbound id not adopted, got %q", seen)
	}

	if _, err := adoptRequestID()(context.Background(), nil, info, handler); err != nil {
		t.Fatal(err)
	}
	if seen == "" || seen == "rid-7" {
		t.Fatalf("expected a minted id, got %q", seen)
	}

	var outgoing []string
	invoker := func(ctx context.Context, _ string, _, _ any, _ *grpc.ClientConn, _ ...grpc.CallOption) error {
		md, _ := metadata.FromOutgoingContext(ctx)
		outgoing = md.Get("x-request-id")
		return nil
	}
	callCtx := httpx.ContextWithRequestID(context.Background(), "rid-8")
	if err := forwardRequestID()(callCtx, "/m", nil, nil, nil, invoker); err != nil {
		t.Fatal(err)
	}
	if len(outgoing) != 1 || outgoing[0] != "rid-8" {
		t.Fatalf("outgoing metadata = %v", outgoing)
	}
}

func TestLevelFor(t *testing.T) {
	cases := map[codes.Code]slog.Level{
		codes.OK:              slog.LevelDebug,
		codes.NotFound:        slog.LevelWarn,
		codes.InvalidArgument: slog.LevelWarn,
		codes.Internal:        slog.LevelError,
		codes.Unavailable:     slog.LevelError,
	}
	for code, want := range cases {
		if got := levelFor(code); got != want {
			t.Errorf("levelFor(%s) = %v, want %v", code, got, want)
		}
	}
}
