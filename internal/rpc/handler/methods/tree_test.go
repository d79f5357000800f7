package methods

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/brianly1003/flocksync/internal/remote/memtree"
	"github.com/brianly1003/flocksync/internal/rpc/handler"
	"github.com/brianly1003/flocksync/internal/rpc/message"
	"github.com/brianly1003/flocksync/internal/testutil"
)

func call(t *testing.T, ctx context.Context, r *handler.Registry, method string, params any) (json.RawMessage, *message.Error) {
	t.Helper()
	raw, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	h := r.Get(method)
	if h == nil {
		t.Fatalf("method %s not registered", method)
	}
	result, rpcErr := h(ctx, raw)
	if rpcErr != nil {
		return nil, rpcErr
	}
	out, _ := json.Marshal(result)
	return out, nil
}

func newTree(t *testing.T, requireUser bool) (*handler.Registry, *TreeService, *memtree.Store) {
	t.Helper()
	store, err := memtree.NewWithData(map[string]any{
		"chickens": map[string]any{"f1": map[string]any{
			"c1": map[string]any{"name": "Ada", "breed": "Silkie"},
			"c2": map[string]any{"name": "Bea", "breed": "Orpington"},
		}},
	})
	if err != nil {
		t.Fatalf("NewWithData() error = %v", err)
	}
	svc := NewTreeService(store, requireUser)
	r := handler.NewRegistry()
	r.RegisterService(svc)
	return r, svc, store
}

func TestTreeService_ReadWrite(t *testing.T) {
	r, _, store := newTree(t, false)
	ctx := context.Background()

	out, err := call(t, ctx, r, message.MethodTreeGet, message.PathParams{Path: "chickens/f1/c1/name"})
	if err != nil || string(out) != `{"value":"Ada"}` {
		t.Errorf("get = %s, %v", out, err)
	}

	if _, err := call(t, ctx, r, message.MethodTreeSet, message.WriteParams{Path: "/flocks/f1/", Value: map[string]any{"name": "Coop"}}); err != nil {
		t.Fatalf("set error = %v", err)
	}
	if v, _ := store.Get(ctx, "flocks/f1/name"); v != "Coop" {
		t.Errorf("flocks/f1/name = %v, want Coop", v)
	}

	out, err = call(t, ctx, r, message.MethodTreePush, message.WriteParams{Path: "eggs/f1", Value: map[string]any{"chickenId": "c1"}})
	if err != nil {
		t.Fatalf("push error = %v", err)
	}
	var key message.KeyResult
	_ = json.Unmarshal(out, &key)
	if v, _ := store.Get(ctx, "eggs/f1/"+key.Key+"/chickenId"); v != "c1" {
		t.Errorf("pushed egg = %v", v)
	}

	if _, err := call(t, ctx, r, message.MethodTreeUpdate, message.UpdateParams{Values: map[string]any{
		"flocks/f1/name": "Barn",
		"chickens/f1/c2": nil,
	}}); err != nil {
		t.Fatalf("update error = %v", err)
	}
	if v, _ := store.Get(ctx, "chickens/f1/c2"); v != nil {
		t.Errorf("c2 after update = %v, want nil", v)
	}

	if _, err := call(t, ctx, r, message.MethodTreeRemove, message.PathParams{Path: "flocks/f1"}); err != nil {
		t.Fatalf("remove error = %v", err)
	}
	if v, _ := store.Get(ctx, "flocks/f1"); v != nil {
		t.Errorf("flocks/f1 after remove = %v", v)
	}
}

func TestTreeService_Query(t *testing.T) {
	r, _, _ := newTree(t, false)
	out, err := call(t, context.Background(), r, message.MethodTreeQuery, message.QueryParams{Path: "chickens/f1", Child: "breed", Value: "Silkie"})
	if err != nil {
		t.Fatalf("query error = %v", err)
	}
	var res message.ChildrenResult
	_ = json.Unmarshal(out, &res)
	if _, ok := res.Children["c1"]; !ok || len(res.Children) != 1 {
		t.Errorf("children = %v, want only c1", res.Children)
	}
}

func TestTreeService_InvalidParams(t *testing.T) {
	r, _, _ := newTree(t, false)
	tests := []struct {
		name   string
		method string
		params any
	}{
		{"set without path", message.MethodTreeSet, message.WriteParams{Value: 1}},
		{"remove root", message.MethodTreeRemove, message.PathParams{Path: "/"}},
		{"empty update", message.MethodTreeUpdate, message.UpdateParams{Path: "x"}},
		{"query without child", message.MethodTreeQuery, message.QueryParams{Path: "x"}},
		{"wrong shape", message.MethodTreeGet, []int{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := call(t, context.Background(), r, tt.method, tt.params)
			if err == nil || err.Code != message.InvalidParams {
				t.Errorf("%s error = %v, want InvalidParams", tt.method, err)
			}
		})
	}
}

func TestTreeService_RequireUser(t *testing.T) {
	r, _, _ := newTree(t, true)
	peer := testutil.NewFakePeer("p1")
	ctx := handler.WithPeer(context.Background(), peer)

	if _, err := call(t, ctx, r, message.MethodTreeGet, message.PathParams{Path: "chickens"}); err == nil || err.Code != message.NotAuthenticated {
		t.Fatalf("get signed out error = %v, want NotAuthenticated", err)
	}
	peer.SetUser(&domain.User{UID: "u1"})
	if _, err := call(t, ctx, r, message.MethodTreeGet, message.PathParams{Path: "chickens"}); err != nil {
		t.Errorf("get signed in error = %v", err)
	}
}

func TestTreeService_Subscribe(t *testing.T) {
	r, svc, store := newTree(t, false)
	peer := testutil.NewFakePeer("p1")
	ctx := handler.WithPeer(context.Background(), peer)

	out, err := call(t, ctx, r, message.MethodTreeSubscribe, message.PathParams{Path: "chickens/f1"})
	if err != nil {
		t.Fatalf("subscribe error = %v", err)
	}
	var sub message.SubscriptionParams
	_ = json.Unmarshal(out, &sub)
	if sub.Subscription == "" {
		t.Fatal("empty subscription id")
	}

	if err := store.Set(ctx, "chickens/f1/c3", map[string]any{"name": "Cid"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	testutil.Eventually(t, func() bool { return len(peer.Notices()) == 1 }, "child notification")

	n := peer.Notices()[0]
	var child message.ChildParams
	_ = json.Unmarshal(n.Params, &child)
	want := message.ChildParams{Subscription: sub.Subscription, Kind: "added", Key: "c3", Value: map[string]any{"name": "Cid"}}
	if n.Method != message.NotifyTreeChild || !reflect.DeepEqual(child, want) {
		t.Errorf("notice = %s %+v, want %+v", n.Method, child, want)
	}

	if _, err := call(t, ctx, r, message.MethodTreeUnsubscribe, sub); err != nil {
		t.Fatalf("unsubscribe error = %v", err)
	}
	if svc.Subscriptions() != 0 {
		t.Errorf("Subscriptions() = %d after unsubscribe, want 0", svc.Subscriptions())
	}
	testutil.Eventually(t, func() bool { return store.Subscriptions() == 0 }, "backend subscription closed")
}

func TestTreeService_PeerCloseDropsSubscriptions(t *testing.T) {
	r, svc, store := newTree(t, false)
	peer := testutil.NewFakePeer("p1")
	ctx := handler.WithPeer(context.Background(), peer)

	for _, path := range []string{"chickens/f1", "eggs/f1"} {
		if _, err := call(t, ctx, r, message.MethodTreeSubscribe, message.PathParams{Path: path}); err != nil {
			t.Fatalf("subscribe %s error = %v", path, err)
		}
	}
	if svc.Subscriptions() != 2 {
		t.Fatalf("Subscriptions() = %d, want 2", svc.Subscriptions())
	}

	peer.Close()
	if svc.Subscriptions() != 0 {
		t.Errorf("Subscriptions() = %d after close, want 0", svc.Subscriptions())
	}
	testutil.Eventually(t, func() bool { return store.Subscriptions() == 0 }, "backend subscriptions closed")
}

func TestTreeService_BackendCloseNotifies(t *testing.T) {
	r, svc, store := newTree(t, false)
	peer := testutil.NewFakePeer("p1")
	ctx := handler.WithPeer(context.Background(), peer)

	if _, err := call(t, ctx, r, message.MethodTreeSubscribe, message.PathParams{Path: "chickens/f1"}); err != nil {
		t.Fatalf("subscribe error = %v", err)
	}
	_ = store.Close()

	testutil.Eventually(t, func() bool { return len(peer.Notices()) == 1 }, "closed notification")
	if got := peer.Notices()[0].Method; got != message.NotifyTreeClosed {
		t.Errorf("method = %s, want %s", got, message.NotifyTreeClosed)
	}
	if svc.Subscriptions() != 0 {
		t.Errorf("Subscriptions() = %d, want 0", svc.Subscriptions())
	}
}

func TestTreeService_SubscribeNeedsPeer(t *testing.T) {
	r, _, _ := newTree(t, false)
	if _, err := call(t, context.Background(), r, message.MethodTreeSubscribe, message.PathParams{Path: "x"}); err == nil || err.Code != message.InvalidRequest {
		t.Errorf("subscribe error = %v, want InvalidRequest", err)
	}
}
