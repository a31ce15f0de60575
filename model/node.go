// Package model is the in-memory CRDT document: a node graph keyed by
// creation timestamp, RGA sequences, patch application, the JSON view and
// the structural binary codec.
package model

import (
	"github.com/lessisbetter/json-joy-rs-sub002/clock"
)

type Kind byte

const (
	KindCon Kind = iota
	KindVal
	KindObj
	KindVec
	KindStr
	KindBin
	KindArr
)

var kindNames = [...]string{"con", "val", "obj", "vec", "str", "bin", "arr"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Node is one CRDT entity; dispatch on the concrete type.
type Node interface {
	ID() clock.Ts
	Kind() Kind
}

type node struct {
	id clock.Ts
}

func (n *node) ID() clock.Ts { return n.id }

// ConNode is an immutable constant, either a value or a reference.
type ConNode struct {
	node
	Value any
	IsRef bool
	Ref   clock.Ts
}

// ValNode is a LWW register. Child is ORIGIN until first written.
type ValNode struct {
	node
	Child clock.Ts
}

// ObjNode maps keys to LWW children.
type ObjNode struct {
	node
	Keys map[string]clock.Ts
}

// VecNode is a LWW tuple with indices 0..255.
type VecNode struct {
	node
	Slots map[int]clock.Ts
}

type StrNode struct {
	node
	Seq RGA[rune]
}

type BinNode struct {
	node
	Seq RGA[byte]
}

type ArrNode struct {
	node
	Seq RGA[clock.Ts]
}

func (*ConNode) Kind() Kind { return KindCon }
func (*ValNode) Kind() Kind { return KindVal }
func (*ObjNode) Kind() Kind { return KindObj }
func (*VecNode) Kind() Kind { return KindVec }
func (*StrNode) Kind() Kind { return KindStr }
func (*BinNode) Kind() Kind { return KindBin }
func (*ArrNode) Kind() Kind { return KindArr }

func NewCon(id clock.Ts, v any) *ConNode {
	return &ConNode{node: node{id}, Value: v}
}

func NewConRef(id, ref clock.Ts) *ConNode {
	return &ConNode{node: node{id}, IsRef: true, Ref: ref}
}

func NewVal(id clock.Ts) *ValNode {
	return &ValNode{node: node{id}}
}

func NewObj(id clock.Ts) *ObjNode {
	return &ObjNode{node: node{id}, Keys: map[string]clock.Ts{}}
}

func NewVec(id clock.Ts) *VecNode {
	return &VecNode{node: node{id}, Slots: map[int]clock.Ts{}}
}

func NewStr(id clock.Ts) *StrNode { return &StrNode{node: node{id}} }
func NewBin(id clock.Ts) *BinNode { return &BinNode{node: node{id}} }
func NewArr(id clock.Ts) *ArrNode { return &ArrNode{node: node{id}} }

// Len is the vec view length: highest written index plus one.
// Width is one past the highest written slot, absent values included.
func (v *VecNode) Width() int {
	n := 0
	for i := range v.Slots {
		if i+1 > n {
			n = i + 1
		}
	}
	return n
}

func cloneNode(n Node) Node {
	switch x := n.(type) {
	case *ConNode:
		c := *x
		return &c
	case *ValNode:
		c := *x
		return &c
	case *ObjNode:
		c := NewObj(x.id)
		for k, v := range x.Keys {
			c.Keys[k] = v
		}
		return c
	case *VecNode:
		c := NewVec(x.id)
		for k, v := range x.Slots {
			c.Slots[k] = v
		}
		return c
	case *StrNode:
		return &StrNode{node: x.node, Seq: x.Seq.Clone()}
	case *BinNode:
		return &BinNode{node: x.node, Seq: x.Seq.Clone()}
	case *ArrNode:
		return &ArrNode{node: x.node, Seq: x.Seq.Clone()}
	}
	return n
}
