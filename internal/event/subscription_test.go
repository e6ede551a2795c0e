package event

import (
	"context"
	"testing"
)

type structHandler struct{ name string }

func (structHandler) Handle(ctx context.Context, ev Event) error { return nil }

func TestHandlerEqual(t *testing.T) {
	f := HandlerFunc(func(ctx context.Context, ev Event) error { return nil })
	g := HandlerFunc(func(ctx context.Context, ev Event) error { return nil })

	tests := []struct {
		name string
		a, b Handler
		want bool
	}{
		{"same func value", f, f, true},
		{"different func literals", f, g, false},
		{"func vs struct", f, structHandler{}, false},
		{"equal structs", structHandler{name: "x"}, structHandler{name: "x"}, true},
		{"different structs", structHandler{name: "x"}, structHandler{name: "y"}, false},
		{"both nil", nil, nil, true},
		{"one nil", f, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := handlerEqual(tt.a, tt.b); got != tt.want {
				t.Errorf("handlerEqual() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSubscriptionCancelIsSticky(t *testing.T) {
	sub := newTestSub("ev", PriorityNormal, noopHandler())

	if !sub.IsActive() {
		t.Fatal("new subscription not active")
	}
	sub.Cancel()
	sub.Cancel()
	if sub.IsActive() {
		t.Error("cancelled subscription reports active")
	}
}
