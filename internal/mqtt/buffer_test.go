package mqtt

import (
	"testing"
)

func TestRingBufferEmptyDrain(t *testing.T) {
	rb := newRingBuffer(10)
	got, dropped := rb.drain()
	if got != nil || dropped != 0 {
		t.Errorf("expected empty drain, got %d items, %d dropped", len(got), dropped)
	}
}

func TestRingBufferPushAndDrain(t *testing.T) {
	rb := newRingBuffer(10)
	for i := 0; i < 5; i++ {
		rb.push(bufferedMsg{topic: "t", payload: []byte{byte(i)}})
	}

	got, dropped := rb.drain()
	if len(got) != 5 {
		t.Fatalf("expected 5 items, got %d", len(got))
	}
	if dropped != 0 {
		t.Errorf("dropped: got %d, want 0", dropped)
	}
	for i := 0; i < 5; i++ {
		if got[i].payload[0] != byte(i) {
			t.Errorf("item %d: expected payload %d, got %d", i, i, got[i].payload[0])
		}
	}

	if again, _ := rb.drain(); again != nil {
		t.Errorf("expected nil from second drain, got %d items", len(again))
	}
}

func TestRingBufferOverflowKeepsNewest(t *testing.T) {
	rb := newRingBuffer(5)

	// Push 0..7; the buffer keeps 3..7
	for i := 0; i < 8; i++ {
		rb.push(bufferedMsg{topic: "t", payload: []byte{byte(i)}})
	}
	if rb.len() != 5 {
		t.Errorf("len: got %d, want 5", rb.len())
	}

	got, dropped := rb.drain()
	if len(got) != 5 {
		t.Fatalf("expected 5 items, got %d", len(got))
	}
	if dropped != 3 {
		t.Errorf("dropped: got %d, want 3", dropped)
	}
	for i := range got {
		if want := byte(i + 3); got[i].payload[0] != want {
			t.Errorf("item %d: expected payload %d, got %d", i, want, got[i].payload[0])
		}
	}
}

func TestRingBufferReusableAfterDrain(t *testing.T) {
	rb := newRingBuffer(3)
	for i := 0; i < 7; i++ {
		rb.push(bufferedMsg{payload: []byte{byte(i)}})
	}
	rb.drain()

	rb.push(bufferedMsg{payload: []byte{42}})
	got, dropped := rb.drain()
	if len(got) != 1 || got[0].payload[0] != 42 {
		t.Errorf("after reuse: got %v", got)
	}
	if dropped != 0 {
		t.Errorf("dropped count not reset: %d", dropped)
	}
}

func TestRingBufferPreservesFields(t *testing.T) {
	rb := newRingBuffer(10)
	rb.push(bufferedMsg{
		topic:    TopicSystem,
		payload:  []byte(`{"test":true}`),
		qos:      1,
		retained: true,
	})

	got, _ := rb.drain()
	if len(got) != 1 {
		t.Fatalf("expected 1 item, got %d", len(got))
	}
	if got[0].topic != TopicSystem {
		t.Errorf("topic: got %s, want %s", got[0].topic, TopicSystem)
	}
	if string(got[0].payload) != `{"test":true}` {
		t.Errorf("payload: got %s", got[0].payload)
	}
	if got[0].qos != 1 || !got[0].retained {
		t.Errorf("qos/retained: got %d/%v, want 1/true", got[0].qos, got[0].retained)
	}
}
