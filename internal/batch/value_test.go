// SPDX-License-Identifier: AGPL-3.0-or-later

package batch

import "testing"

func TestValueCanonicalDistinguishesKinds(t *testing.T) {
	num := NumberValue(1)
	str := StringValue("1")
	b := BoolValue(true)

	if num.Canonical() == str.Canonical() {
		t.Fatalf("number 1 and string %q must not collide: %s vs %s", "1", num.Canonical(), str.Canonical())
	}
	if str.Canonical() == b.Canonical() {
		t.Fatalf("string and bool canonical forms must not collide")
	}
}

func TestValueCompareNumbers(t *testing.T) {
	a, b := NumberValue(1), NumberValue(2)
	if a.Compare(b) >= 0 {
		t.Fatalf("expected 1 < 2")
	}
	if b.Compare(a) <= 0 {
		t.Fatalf("expected 2 > 1")
	}
	if a.Compare(a) != 0 {
		t.Fatalf("expected 1 == 1")
	}
}

func TestEventFieldMissingIsNull(t *testing.T) {
	ev := Event{"a": NumberValue(1)}
	if !ev.Field("missing").IsNull() {
		t.Fatalf("expected missing field to be null")
	}
	if ev.Field("a").IsNull() {
		t.Fatalf("expected present field to be non-null")
	}
}
