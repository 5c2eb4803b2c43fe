package concurrent

import "github.com/taskgraph/pkg/utils"

// ListNode is the embeddable link for IntrusiveList. The zero value is an
// unlinked node.
type ListNode struct {
	prev, next *ListNode
	list       *IntrusiveList
	// Value points back at the containing object.
	Value interface{}
}

// Linked reports whether the node is currently on a list.
func (n *ListNode) Linked() bool {
	return n.list != nil
}

// Unlink removes the node from whatever list it is on. No-op when unlinked.
func (n *ListNode) Unlink() {
	if n.list != nil {
		n.list.Remove(n)
	}
}

// IntrusiveList is a doubly-linked list whose nodes live inside their
// containing objects, so insertion and removal never allocate. It is not
// internally synchronized; only the owning thread may mutate it.
type IntrusiveList struct {
	head, tail *ListNode
	size       int
}

// Size returns the number of linked nodes.
func (l *IntrusiveList) Size() int {
	return l.size
}

// Empty reports whether the list has no nodes.
func (l *IntrusiveList) Empty() bool {
	return l.size == 0
}

// Front returns the first node, or nil.
func (l *IntrusiveList) Front() *ListNode {
	return l.head
}

// Back returns the last node, or nil.
func (l *IntrusiveList) Back() *ListNode {
	return l.tail
}

// Next returns the node after n, or nil at the end of the list.
func (l *IntrusiveList) Next(n *ListNode) *ListNode {
	return n.next
}

// PushBack links n at the tail. Inserting a node that is already on a list
// is a programming error.
func (l *IntrusiveList) PushBack(n *ListNode) {
	utils.Assert(n.list == nil, "intrusive list: node inserted twice")
	n.list = l
	n.prev = l.tail
	n.next = nil
	if l.tail != nil {
		l.tail.next = n
	} else {
		l.head = n
	}
	l.tail = n
	l.size++
}

// PushFront links n at the head. Inserting a node that is already on a list
// is a programming error.
func (l *IntrusiveList) PushFront(n *ListNode) {
	utils.Assert(n.list == nil, "intrusive list: node inserted twice")
	n.list = l
	n.next = l.head
	n.prev = nil
	if l.head != nil {
		l.head.prev = n
	} else {
		l.tail = n
	}
	l.head = n
	l.size++
}

// Remove unlinks n. Removing a node that belongs to a different list is a
// programming error; removing an unlinked node is a no-op.
func (l *IntrusiveList) Remove(n *ListNode) {
	if n.list == nil {
		return
	}
	utils.Assert(n.list == l, "intrusive list: node removed from foreign list")
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev = nil
	n.next = nil
	n.list = nil
	l.size--
}

// PopFront unlinks and returns the first node, or nil.
func (l *IntrusiveList) PopFront() *ListNode {
	n := l.head
	if n != nil {
		l.Remove(n)
	}
	return n
}
