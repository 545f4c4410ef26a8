package killswitch

import (
	"context"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultEtcdKey is watched when no key is configured.
const DefaultEtcdKey = "/reconpipe/killswitch"

// EtcdConfig configures a distributed kill switch.
type EtcdConfig struct {
	Endpoints   []string
	Key         string
	DialTimeout time.Duration
	// RetryDelay is the pause before re-establishing a broken watch.
	RetryDelay time.Duration
}

// EtcdWatcher trips a Switch when a stop value is written to an etcd key, so
// one operator can halt runs on many machines.
type EtcdWatcher struct {
	client     *clientv3.Client
	key        string
	retryDelay time.Duration
	logger     *zap.Logger
	owned      bool
}

// NewEtcdWatcher connects to etcd and checks connectivity.
func NewEtcdWatcher(cfg EtcdConfig, logger *zap.Logger) (*EtcdWatcher, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("etcd endpoints cannot be empty")
	}
	dial := cfg.DialTimeout
	if dial <= 0 {
		dial = 5 * time.Second
	}
	cli, err := clientv3.New(clientv3.Config{Endpoints: cfg.Endpoints, DialTimeout: dial})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := cli.Get(ctx, "health-check"); err != nil && err != context.DeadlineExceeded {
		cli.Close()
		return nil, fmt.Errorf("etcd health check failed: %w", err)
	}

	w := NewEtcdWatcherFromClient(cli, cfg.Key, logger)
	w.owned = true
	if cfg.RetryDelay > 0 {
		w.retryDelay = cfg.RetryDelay
	}
	return w, nil
}

// NewEtcdWatcherFromClient wraps an existing client. Close does not close it.
func NewEtcdWatcherFromClient(cli *clientv3.Client, key string, logger *zap.Logger) *EtcdWatcher {
	if key == "" {
		key = DefaultEtcdKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EtcdWatcher{client: cli, key: key, retryDelay: time.Second, logger: logger}
}

// Key returns the watched key.
func (w *EtcdWatcher) Key() string { return w.key }

// Signal writes a stop value, tripping every watcher of the key.
func (w *EtcdWatcher) Signal(ctx context.Context, reason string) error {
	value := StopWord
	if reason != "" {
		value += ": " + reason
	}
	if _, err := w.client.Put(ctx, w.key, value); err != nil {
		return fmt.Errorf("failed to signal kill switch: %w", err)
	}
	return nil
}

// Watch blocks until the key holds a stop value, ctx ends, or the watch fails
// with a non-retryable error. A stop value already present trips sw at once.
// Deleting the key does not reset a tripped switch.
func (w *EtcdWatcher) Watch(ctx context.Context, sw *Switch) error {
	resp, err := w.client.Get(ctx, w.key)
	if err != nil {
		return fmt.Errorf("failed to read kill switch key: %w", err)
	}
	for _, kv := range resp.Kvs {
		if w.check(sw, string(kv.Value)) {
			return nil
		}
	}
	rev := resp.Header.Revision + 1

	for {
		stopped, err := w.watchOnce(ctx, sw, &rev)
		if stopped || err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sw.Done():
			return nil
		case <-time.After(w.retryDelay):
		}
	}
}

// watchOnce consumes one watch stream. It reports stopped=true when sw was
// tripped or ctx ended, and returns an error only for fatal failures.
func (w *EtcdWatcher) watchOnce(ctx context.Context, sw *Switch, rev *int64) (bool, error) {
	wctx, cancel := context.WithCancel(clientv3.WithRequireLeader(ctx))
	defer cancel()

	wch := w.client.Watch(wctx, w.key, clientv3.WithRev(*rev))
	for {
		var wr clientv3.WatchResponse
		var ok bool
		select {
		case <-sw.Done():
			return true, nil
		case wr, ok = <-wch:
		}
		if !ok {
			break
		}
		if wr.CompactRevision > 0 && *rev < wr.CompactRevision {
			*rev = wr.CompactRevision
		}
		if err := wr.Err(); err != nil {
			if !retryableWatchError(err) {
				return true, fmt.Errorf("kill switch watch failed: %w", err)
			}
			w.logger.Warn("kill switch watch interrupted", zap.Error(err))
			return false, nil
		}
		for _, ev := range wr.Events {
			*rev = ev.Kv.ModRevision + 1
			if ev.Type == clientv3.EventTypePut && w.check(sw, string(ev.Kv.Value)) {
				return true, nil
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return true, err
	}
	return false, nil
}

func (w *EtcdWatcher) check(sw *Switch, value string) bool {
	if !IsStopValue(value) {
		return false
	}
	if sw.Trip("etcd " + w.key + ": " + strings.TrimSpace(value)) {
		w.logger.Warn("kill switch activated", zap.String("source", "etcd"), zap.String("key", w.key))
	}
	return true
}

// IsStopValue reports whether an etcd value requests a stop: the stop word,
// optionally followed by ":" and a reason.
func IsStopValue(v string) bool {
	head, _, _ := strings.Cut(v, ":")
	return IsStop(head)
}

// retryableWatchError treats auth and argument failures as fatal and
// everything else (unavailable members, leader changes, compaction) as worth
// re-watching.
func retryableWatchError(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.InvalidArgument:
		return false
	default:
		return true
	}
}

// Close releases the client if the watcher created it.
func (w *EtcdWatcher) Close() error {
	if w.owned && w.client != nil {
		return w.client.Close()
	}
	return nil
}
