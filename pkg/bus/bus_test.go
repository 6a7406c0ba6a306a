package bus

import (
	"fmt"
	"testing"
)

func newTestBus() *Bus {
	return New(nil)
}

func TestPublishRejectsMalformedEvent(t *testing.T) {
	b := newTestBus()

	if err := b.Publish(Event{}); err != ErrInvalidEvent {
		t.Fatalf("Publish error = %v, want ErrInvalidEvent", err)
	}
	if got := len(b.History(0)); got != 0 {
		t.Fatalf("history length = %d, want 0 after rejected publish", got)
	}
}

func TestTypedDeliveryBeforeWildcard(t *testing.T) {
	b := newTestBus()

	var order []string
	b.Subscribe(EventSpeechResult, func(Event) { order = append(order, "typed-1") })
	b.Subscribe(EventSpeechResult, func(Event) { order = append(order, "typed-2") })
	b.SubscribeAll(func(Event) { order = append(order, "wildcard") })

	if err := b.Publish(NewEvent(EventSpeechResult, map[string]any{"text": "hi"})); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	want := []string{"typed-1", "typed-2", "wildcard"}
	if len(order) != len(want) {
		t.Fatalf("delivery order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("delivery order = %v, want %v", order, want)
		}
	}
}

func TestWildcardReceivesEveryType(t *testing.T) {
	b := newTestBus()

	var got []Type
	b.SubscribeAll(func(e Event) { got = append(got, e.Type) })

	for _, eventType := range []Type{EventStartup, EventTTSSay, EventSkillLoaded} {
		if err := b.Publish(NewEvent(eventType, nil)); err != nil {
			t.Fatalf("Publish(%s) error: %v", eventType, err)
		}
	}

	if len(got) != 3 {
		t.Fatalf("wildcard received %d events, want 3", len(got))
	}
}

var subscribeTwiceCalls int

func countingSubscriber(Event) { subscribeTwiceCalls++ }

func TestDuplicateSubscriptionIsNoOp(t *testing.T) {
	b := newTestBus()
	subscribeTwiceCalls = 0

	b.Subscribe(EventSpeechResult, countingSubscriber)
	b.Subscribe(EventSpeechResult, countingSubscriber)
	b.SubscribeAll(countingSubscriber)
	b.SubscribeAll(countingSubscriber)

	if err := b.Publish(NewEvent(EventSpeechResult, nil)); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	// Once from the typed list, once from the wildcard list.
	if subscribeTwiceCalls != 2 {
		t.Fatalf("subscriber invoked %d times, want 2", subscribeTwiceCalls)
	}
}

func TestUnsubscribe(t *testing.T) {
	b := newTestBus()
	subscribeTwiceCalls = 0

	b.Subscribe(EventSpeechResult, countingSubscriber)
	b.SubscribeAll(countingSubscriber)
	b.Unsubscribe(countingSubscriber)

	if err := b.Publish(NewEvent(EventSpeechResult, nil)); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if subscribeTwiceCalls != 0 {
		t.Fatalf("subscriber invoked %d times after Unsubscribe, want 0", subscribeTwiceCalls)
	}
}

func TestUnsubscribeSingleType(t *testing.T) {
	b := newTestBus()
	subscribeTwiceCalls = 0

	b.Subscribe(EventSpeechResult, countingSubscriber)
	b.Subscribe(EventTTSSay, countingSubscriber)
	b.Unsubscribe(countingSubscriber, EventSpeechResult)

	_ = b.Publish(NewEvent(EventSpeechResult, nil))
	_ = b.Publish(NewEvent(EventTTSSay, nil))

	if subscribeTwiceCalls != 1 {
		t.Fatalf("subscriber invoked %d times, want 1 (tts.say only)", subscribeTwiceCalls)
	}
}

func TestPanickingSubscriberDoesNotStopDelivery(t *testing.T) {
	b := newTestBus()

	var delivered []string
	b.Subscribe(EventSpeechResult, func(Event) { panic("subscriber bug") })
	b.Subscribe(EventSpeechResult, func(Event) { delivered = append(delivered, "typed") })
	b.SubscribeAll(func(Event) { delivered = append(delivered, "wildcard") })

	if err := b.Publish(NewEvent(EventSpeechResult, nil)); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	if len(delivered) != 2 {
		t.Fatalf("delivered = %v, want both remaining subscribers invoked", delivered)
	}
}

func TestHistoryFIFOEviction(t *testing.T) {
	b := newTestBus()

	for i := 0; i < historyCapacity+1; i++ {
		event := NewEvent(EventAudioLevel, map[string]any{"seq": i})
		if err := b.Publish(event); err != nil {
			t.Fatalf("Publish #%d error: %v", i, err)
		}
	}

	records := b.History(0)
	if len(records) != historyCapacity {
		t.Fatalf("history length = %d, want %d", len(records), historyCapacity)
	}

	// Entry 0 evicted, most recent last.
	if got := records[0].Event.Data["seq"]; got != 1 {
		t.Fatalf("oldest retained seq = %v, want 1", got)
	}
	if got := records[len(records)-1].Event.Data["seq"]; got != historyCapacity {
		t.Fatalf("newest retained seq = %v, want %d", got, historyCapacity)
	}
}

func TestHistoryLimit(t *testing.T) {
	b := newTestBus()

	for i := 0; i < 10; i++ {
		_ = b.Publish(NewEvent(EventAudioLevel, map[string]any{"seq": i}))
	}

	records := b.History(3)
	if len(records) != 3 {
		t.Fatalf("history length = %d, want 3", len(records))
	}
	for i, want := range []int{7, 8, 9} {
		if got := records[i].Event.Data["seq"]; got != want {
			t.Fatalf("records[%d].seq = %v, want %d", i, got, want)
		}
	}
}

func TestWatchReceivesAndDrops(t *testing.T) {
	b := newTestBus()
	t.Cleanup(b.Close)

	events, cancel := b.Watch(nil, 2)
	defer cancel()

	for i := 0; i < 3; i++ {
		_ = b.Publish(NewEvent(EventGUIUpdate, map[string]any{"seq": i}))
	}

	// Buffer of two: third publish dropped rather than blocking.
	first := <-events
	second := <-events
	if first.Data["seq"] != 0 || second.Data["seq"] != 1 {
		t.Fatalf("watched seqs = %v, %v, want 0, 1", first.Data["seq"], second.Data["seq"])
	}

	select {
	case extra := <-events:
		t.Fatalf("unexpected extra event: %v", extra)
	default:
	}
}

func TestCloseIdempotentAndStopsWatchers(t *testing.T) {
	b := newTestBus()

	events, _ := b.Watch(nil, 1)
	b.Close()
	b.Close()

	if _, ok := <-events; ok {
		t.Fatal("expected watcher channel closed after Close")
	}

	// Callback delivery survives Close so shutdown events still arrive.
	var seen bool
	b.SubscribeAll(func(Event) { seen = true })
	if err := b.Publish(NewEvent(EventShutdown, nil)); err != nil {
		t.Fatalf("Publish after Close error: %v", err)
	}
	if !seen {
		t.Fatal("expected subscriber invoked after Close")
	}
}

func TestHistoryDoesNotMutate(t *testing.T) {
	b := newTestBus()

	for i := 0; i < 5; i++ {
		_ = b.Publish(NewEvent(EventAudioLevel, map[string]any{"seq": i}))
	}

	before := fmt.Sprint(b.History(0))
	_ = b.History(2)
	after := fmt.Sprint(b.History(0))

	if before != after {
		t.Fatal("History(limit) mutated the retained history")
	}
}
