package main

import (
	"reflect"

	"github.com/bytedance/sonic"
)

func init() {
	// Sonic compiles codecs lazily; warm the types written on every
	// transition so the first write does not stall the reactor.
	_ = sonic.Pretouch(reflect.TypeFor[statusSnapshot]())
	_ = sonic.Pretouch(reflect.TypeFor[EffectiveConfig]())
}
