package eventbus

import (
	"testing"
	"time"
)

func TestSubscribePublishDeliversEvent(t *testing.T) {
	bus := New(nil)
	id, ch := bus.Subscribe()
	defer bus.Unsubscribe(id)

	bus.Publish(BotStarted, map[string]interface{}{"botId": int64(1)})

	select {
	case evt := <-ch:
		if evt.Type != BotStarted {
			t.Fatalf("type = %s, want BOT_STARTED", evt.Type)
		}
		if evt.Payload["botId"] != int64(1) {
			t.Fatalf("payload botId = %v, want 1", evt.Payload["botId"])
		}
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	bus := New(nil)
	id, _ := bus.Subscribe()
	defer bus.Unsubscribe(id)

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberQueueSize*2; i++ {
			bus.Publish(DecisionAnalysis, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked instead of dropping oldest entries")
	}

	if bus.DropCount() == 0 {
		t.Fatal("expected at least one dropped event for the overfilled subscriber")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New(nil)
	id, ch := bus.Subscribe()
	bus.Unsubscribe(id)

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after Unsubscribe")
	}
	if bus.SubscriberCount() != 0 {
		t.Fatalf("SubscriberCount = %d, want 0", bus.SubscriberCount())
	}
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	bus := New(nil)
	id1, ch1 := bus.Subscribe()
	id2, ch2 := bus.Subscribe()
	defer bus.Unsubscribe(id1)
	defer bus.Unsubscribe(id2)

	bus.Publish(BotStopped, nil)

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case evt := <-ch:
			if evt.Type != BotStopped {
				t.Fatalf("type = %s, want BOT_STOPPED", evt.Type)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the published event")
		}
	}
}
