package queue

import (
	"testing"

	"github.com/veridrive/sigproof/internal/domain"
)

func TestMemQueueEnqueueDequeueOrder(t *testing.T) {
	q := NewMemQueue(4)

	r1 := &domain.LatencyResult{DetectionID: "d1"}
	r2 := &domain.LatencyResult{DetectionID: "d2"}

	if !q.Enqueue(1, r1) || !q.Enqueue(2, r2) {
		t.Fatalf("expected successful enqueue")
	}

	batch := q.DequeueBatch(1)
	if len(batch) != 1 || batch[0].ID != 1 || batch[0].Result.DetectionID != "d1" {
		t.Fatalf("unexpected first batch: %+v", batch)
	}

	remaining := q.DequeueBatch(10)
	if len(remaining) != 1 || remaining[0].ID != 2 {
		t.Fatalf("unexpected second batch: %+v", remaining)
	}

	if q.Len() != 0 {
		t.Fatalf("queue should be empty, got %d", q.Len())
	}
}

func TestMemQueueCapacity(t *testing.T) {
	q := NewMemQueue(2)

	r := &domain.LatencyResult{DetectionID: "cap"}

	if !q.Enqueue(1, r) || !q.Enqueue(2, r) {
		t.Fatalf("expected enqueue within capacity")
	}
	if q.Enqueue(3, r) {
		t.Fatalf("enqueue should fail when capacity exceeded")
	}

	q.DequeueBatch(1)
	if !q.Enqueue(4, r) {
		t.Fatalf("expected enqueue to succeed after dequeue")
	}
}
