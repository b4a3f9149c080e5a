package queue

import (
	"testing"

	"github.com/arkime/httppool/internal/core/domain"
)

func req(priority domain.Priority, tag string) *domain.Request {
	return &domain.Request{Priority: priority, KeyTail: tag}
}

func TestQueue_PriorityOrder(t *testing.T) {
	q := New()

	q.Enqueue(req(domain.Dropable, "d"))
	q.Enqueue(req(domain.Normal, "n"))
	q.Enqueue(req(domain.High, "h"))

	order := []string{}
	for {
		r := q.Pop()
		if r == nil {
			break
		}
		order = append(order, r.KeyTail)
	}

	want := []string{"h", "n", "d"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("pop order = %v, want %v", order, want)
		}
	}
}

func TestQueue_FIFOWithinPriority(t *testing.T) {
	q := New()
	q.Enqueue(req(domain.Normal, "first"))
	q.Enqueue(req(domain.Normal, "second"))

	if r := q.Pop(); r.KeyTail != "first" {
		t.Fatalf("expected FIFO order, got %s first", r.KeyTail)
	}
	if r := q.Pop(); r.KeyTail != "second" {
		t.Fatalf("expected FIFO order, got %s second", r.KeyTail)
	}
}

func TestQueue_EnqueueReportsWasEmpty(t *testing.T) {
	q := New()
	if wasEmpty := q.Enqueue(req(domain.Normal, "a")); !wasEmpty {
		t.Fatal("expected wasEmpty=true for first enqueue")
	}
	if wasEmpty := q.Enqueue(req(domain.Normal, "b")); wasEmpty {
		t.Fatal("expected wasEmpty=false for second enqueue")
	}
}

func TestQueue_LenAndEmptyPop(t *testing.T) {
	q := New()
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got len %d", q.Len())
	}
	if q.Pop() != nil {
		t.Fatal("expected nil Pop on empty queue")
	}
}
