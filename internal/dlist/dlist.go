// Package dlist implements an intrusive doubly linked list, generalized
// with a type parameter so a single implementation can back the scheduler's
// runqueue, a process's pending-signal list, and an I2C master's pending
// transaction queue.
//
// Nodes are values the caller owns and embeds a *Node in; the list only ever
// touches the next/previous pointers it is given. A Node knows the list it
// currently belongs to, which lets Remove and Linked answer with a pointer
// comparison at the node; Contains still walks the list from the head, the
// same scan the source uses.
package dlist

import "github.com/badgeos-go/kernel/internal/kerr"

// Node is a link in a List. The zero value is an unlinked node.
type Node[T any] struct {
	next, prev *Node[T]
	list       *List[T]

	// Value is the payload the node carries. Containers that need more than
	// one list per object (e.g. a thread on both a runqueue and a
	// pending-join list) embed more than one Node.
	Value T
}

// Linked reports whether the node currently belongs to any list.
func (n *Node[T]) Linked() bool {
	return n.list != nil
}

// List is a container of Nodes. The zero value is an empty list.
type List[T any] struct {
	head, tail *Node[T]
	len        int
}

// Len returns the number of nodes in the list.
func (l *List[T]) Len() int { return l.len }

// Front returns the first node, or nil if the list is empty.
func (l *List[T]) Front() *Node[T] { return l.head }

// Back returns the last node, or nil if the list is empty.
func (l *List[T]) Back() *Node[T] { return l.tail }

// Next returns the node following n in its list, or nil at the tail.
func (n *Node[T]) Next() *Node[T] { return n.next }

// Prev returns the node preceding n in its list, or nil at the head.
func (n *Node[T]) Prev() *Node[T] { return n.prev }

// Append adds node after the tail of the list. In debug builds, it asserts
// the node is not already linked into some list.
func (l *List[T]) Append(node *Node[T]) {
	assertUnlinked(node)

	node.next = nil
	node.prev = l.tail

	if l.tail != nil {
		l.tail.next = node
	} else {
		l.head = node
	}

	l.tail = node
	node.list = l
	l.len++
}

// Prepend adds node before the head of the list. In debug builds, it
// asserts the node is not already linked into some list.
func (l *List[T]) Prepend(node *Node[T]) {
	assertUnlinked(node)

	node.prev = nil
	node.next = l.head

	if l.head != nil {
		l.head.prev = node
	} else {
		l.tail = node
	}

	l.head = node
	node.list = l
	l.len++
}

// PopFront removes and returns the head of the list, or nil if it is empty.
func (l *List[T]) PopFront() *Node[T] {
	node := l.head
	if node == nil {
		return nil
	}

	l.head = node.next

	if l.head == nil {
		l.tail = nil
	} else {
		l.head.prev = nil
	}

	l.len--
	clear(node)

	return node
}

// PopBack removes and returns the tail of the list, or nil if it is empty.
func (l *List[T]) PopBack() *Node[T] {
	node := l.tail
	if node == nil {
		return nil
	}

	l.tail = node.prev

	if l.tail == nil {
		l.head = nil
	} else {
		l.tail.next = nil
	}

	l.len--
	clear(node)

	return node
}

// Remove unlinks node from the list, wherever it sits. It is a no-op if the
// node does not belong to this list.
func (l *List[T]) Remove(node *Node[T]) {
	if node.list != l {
		return
	}

	if node.prev != nil {
		node.prev.next = node.next
	}

	if node.next != nil {
		node.next.prev = node.prev
	}

	if node == l.head {
		l.head = node.next
	}

	if node == l.tail {
		l.tail = node.prev
	}

	l.len--
	clear(node)
}

// Contains reports whether node is currently linked into this list. It walks
// the list from the head, the same linear check the source implements.
func (l *List[T]) Contains(node *Node[T]) bool {
	for iter := l.head; iter != nil; iter = iter.next {
		if iter == node {
			return true
		}
	}

	return false
}

// clear detaches a popped or removed node so later Contains checks on any
// list correctly report it is in none.
func clear[T any](node *Node[T]) {
	node.next = nil
	node.prev = nil
	node.list = nil
}

func assertUnlinked[T any](node *Node[T]) {
	kerr.AssertDebug(!node.Linked(), "dlist: node is already linked into a list")
}
