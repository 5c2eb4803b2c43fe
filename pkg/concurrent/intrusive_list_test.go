package concurrent

import (
	"testing"

	"github.com/taskgraph/pkg/utils"
)

type listItem struct {
	id   int
	link ListNode
}

func newListItem(id int) *listItem {
	it := &listItem{id: id}
	it.link.Value = it
	return it
}

func TestIntrusiveList_PushPop(t *testing.T) {
	var l IntrusiveList

	a, b, c := newListItem(1), newListItem(2), newListItem(3)
	l.PushBack(&a.link)
	l.PushBack(&b.link)
	l.PushFront(&c.link)

	if l.Size() != 3 {
		t.Fatalf("Size = %d", l.Size())
	}
	if l.Front().Value.(*listItem).id != 3 {
		t.Error("PushFront should place node at head")
	}
	if l.Back().Value.(*listItem).id != 2 {
		t.Error("PushBack should place node at tail")
	}

	n := l.PopFront()
	if n.Value.(*listItem).id != 3 {
		t.Error("PopFront should return head")
	}
	if n.Linked() {
		t.Error("Popped node must be unlinked")
	}

	l.Remove(&a.link)
	if l.Size() != 1 || l.Front() != &b.link {
		t.Error("Remove of interior node broke the list")
	}
}

func TestIntrusiveList_Iterate(t *testing.T) {
	var l IntrusiveList
	for i := 0; i < 5; i++ {
		l.PushBack(&newListItem(i).link)
	}

	i := 0
	for n := l.Front(); n != nil; n = l.Next(n) {
		if n.Value.(*listItem).id != i {
			t.Errorf("Iteration order: got %d at position %d", n.Value.(*listItem).id, i)
		}
		i++
	}
	if i != 5 {
		t.Errorf("Visited %d nodes", i)
	}
}

func TestIntrusiveList_DuplicateInsert(t *testing.T) {
	var fired string
	prev := utils.SetAssertHandler(func(msg string) { fired = msg })
	defer utils.SetAssertHandler(prev)

	var l IntrusiveList
	a := newListItem(1)
	l.PushBack(&a.link)
	l.PushBack(&a.link)

	if fired == "" {
		t.Error("Duplicate insertion must trip the assert hook")
	}
}

func TestBits(t *testing.T) {
	if MSBScan(0) != -1 {
		t.Error("MSBScan(0) should be -1")
	}
	if MSBScan(1) != 0 || MSBScan(0x8000) != 15 {
		t.Error("MSBScan wrong for powers of two")
	}
	if MSBScan32(0x80000000) != 31 {
		t.Error("MSBScan32 wrong for top bit")
	}

	if !IsPow2(4096) || IsPow2(0) || IsPow2(12) {
		t.Error("IsPow2 misclassifies")
	}

	if NextPow2(17) != 32 || NextPow2(32) != 32 || NextPow2(0) != 1 {
		t.Error("NextPow2 misrounds")
	}

	if AlignUp(17, 16) != 32 || AlignUp(32, 16) != 32 {
		t.Error("AlignUp misrounds")
	}
	if AlignDown(17, 16) != 16 {
		t.Error("AlignDown misrounds")
	}
}
