package capability

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestGesture_Complete(t *testing.T) {
	g := NewGesture()

	go func() {
		time.Sleep(5 * time.Millisecond)
		g.Complete(true)
	}()

	ok, err := g.Await(context.Background())
	if err != nil || !ok {
		t.Errorf("Await() = %v, %v; want true, nil", ok, err)
	}
}

func TestGesture_FirstSettlementWins(t *testing.T) {
	g := NewGesture()

	if !g.Complete(false) {
		t.Fatal("first Complete() should settle")
	}
	if g.Complete(true) || g.Cancel() {
		t.Error("later settlements should be ignored")
	}

	ok, err := g.Await(context.Background())
	if ok || err != nil {
		t.Errorf("Await() = %v, %v; want false, nil", ok, err)
	}
}

func TestGesture_Cancel(t *testing.T) {
	g := NewGesture()
	g.Cancel()

	_, err := g.Await(context.Background())
	if !errors.Is(err, ErrGestureCancelled) {
		t.Errorf("Await() error = %v, want ErrGestureCancelled", err)
	}
}

func TestGesture_ContextCancelsGesture(t *testing.T) {
	g := NewGesture()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := g.Await(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Await() error = %v, want DeadlineExceeded", err)
	}

	select {
	case <-g.Done():
	default:
		t.Fatal("gesture should be settled after its context ends")
	}
	if g.Complete(true) {
		t.Error("late completion should be ignored after cancellation")
	}
}

func TestUINode_MarshalJSON(t *testing.T) {
	text := "OK"
	node := UINode{
		Text:    &text,
		Bounds:  Bounds{Left: 1, Top: 2, Right: 3, Bottom: 4},
		Enabled: true,
		Children: []UINode{
			{ClassName: &text},
		},
	}

	data, err := json.Marshal([]UINode{node})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	s := string(data)

	for _, want := range []string{
		`"id":null`,
		`"text":"OK"`,
		`"contentDescription":null`,
		`"bounds":{"left":1,"top":2,"right":3,"bottom":4}`,
		`"enabled":true`,
		`"children":[]`,
	} {
		if !strings.Contains(s, want) {
			t.Errorf("encoded tree missing %s: %s", want, s)
		}
	}
}
