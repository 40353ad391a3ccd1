package solana

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

// fakeRPC is an in-memory RPCClient for confirmation tests.
type fakeRPC struct {
	mu           sync.Mutex
	statusAfter  int32 // poll count at which the signature lands
	statusErr    interface{}
	polls        atomic.Int32
	tx           *Transaction
	neverConfirm bool
}

func (f *fakeRPC) GetBalance(context.Context, string) (uint64, error) { return 0, nil }
func (f *fakeRPC) GetTokenBalance(context.Context, string, string) (*TokenAmount, error) {
	return &TokenAmount{}, nil
}
func (f *fakeRPC) GetSlot(context.Context) (uint64, error) { return 1, nil }
func (f *fakeRPC) GetRecentPerformanceSamples(context.Context, int) ([]PerformanceSample, error) {
	return nil, nil
}
func (f *fakeRPC) SimulateTransaction(context.Context, string) (*SimulationResult, error) {
	return &SimulationResult{}, nil
}
func (f *fakeRPC) SendTransaction(context.Context, string) (string, error) { return "sig", nil }

func (f *fakeRPC) GetSignatureStatuses(_ context.Context, sigs []string) ([]*SignatureStatus, error) {
	n := f.polls.Add(1)
	if f.neverConfirm || n < f.statusAfter {
		return make([]*SignatureStatus, len(sigs)), nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return []*SignatureStatus{{Slot: 42, Err: f.statusErr, ConfirmationStatus: CommitmentConfirmed}}, nil
}

func (f *fakeRPC) GetTransaction(context.Context, string) (*Transaction, error) {
	return f.tx, nil
}

// fakeWS delivers a scripted notification or subscription error.
type fakeWS struct {
	notify *SignatureNotification
	err    error
}

func (f *fakeWS) SubscribeSignature(ctx context.Context, signature, _ string) (<-chan SignatureNotification, error) {
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan SignatureNotification, 1)
	if f.notify != nil {
		n := *f.notify
		n.Signature = signature
		ch <- n
		close(ch)
		return ch, nil
	}
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (f *fakeWS) Close() error { return nil }

func testConfirmer(t *testing.T, rpc RPCClient, ws WSClient) *Confirmer {
	return NewConfirmer(rpc, ws, ConfirmerConfig{
		PollInterval: 5 * time.Millisecond,
		FetchTimeout: 100 * time.Millisecond,
	}, zaptest.NewLogger(t))
}

func TestConfirmer_PollingOnly(t *testing.T) {
	rpc := &fakeRPC{statusAfter: 3, tx: &Transaction{Slot: 42}}
	c := testConfirmer(t, rpc, nil)

	conf, err := c.Confirm(context.Background(), "sig", time.Second)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if conf.Slot != 42 {
		t.Errorf("expected slot 42, got %d", conf.Slot)
	}
	if conf.Transaction == nil {
		t.Error("expected fetched transaction")
	}
	if rpc.polls.Load() < 3 {
		t.Errorf("expected at least 3 polls, got %d", rpc.polls.Load())
	}
}

func TestConfirmer_WebSocketNotification(t *testing.T) {
	rpc := &fakeRPC{neverConfirm: true, tx: &Transaction{Slot: 7}}
	ws := &fakeWS{notify: &SignatureNotification{Slot: 7}}
	c := testConfirmer(t, rpc, ws)

	conf, err := c.Confirm(context.Background(), "sig", time.Second)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if conf.Slot != 7 || conf.Signature != "sig" {
		t.Errorf("unexpected confirmation %+v", conf)
	}
}

func TestConfirmer_OnChainError(t *testing.T) {
	ws := &fakeWS{notify: &SignatureNotification{Err: map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}}}
	c := testConfirmer(t, &fakeRPC{neverConfirm: true}, ws)

	_, err := c.Confirm(context.Background(), "sig", time.Second)
	if !errors.Is(err, ErrTransactionFailed) {
		t.Fatalf("expected ErrTransactionFailed, got %v", err)
	}
}

func TestConfirmer_SubscribeFailureFallsBackToPolling(t *testing.T) {
	rpc := &fakeRPC{statusAfter: 1}
	c := testConfirmer(t, rpc, &fakeWS{err: errors.New("socket down")})

	conf, err := c.Confirm(context.Background(), "sig", time.Second)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if conf.Transaction != nil {
		t.Error("transaction lookup returned nothing, expected nil")
	}
}

func TestConfirmer_Timeout(t *testing.T) {
	c := testConfirmer(t, &fakeRPC{neverConfirm: true}, &fakeWS{})

	start := time.Now()
	_, err := c.Confirm(context.Background(), "sig", 50*time.Millisecond)
	if !errors.Is(err, ErrConfirmTimeout) {
		t.Fatalf("expected ErrConfirmTimeout, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("timeout took too long")
	}
}

func TestConfirmer_ParentCancelled(t *testing.T) {
	c := testConfirmer(t, &fakeRPC{neverConfirm: true}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Confirm(ctx, "sig", time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
