package validate_test

import (
	"testing"

	"ecocycle/internal/validate"
)

func TestID(t *testing.T) {
	for _, ok := range []string{"plastic", "e-waste", "3f0c8a8e-6a4e-4b7c-9a77-1d1c2b3a4f5e"} {
		if _, good := validate.ID(ok); !good {
			t.Fatalf("%q rejected", ok)
		}
	}
	for _, bad := range []string{"", " ", "a/b", "' OR 1=1 --"} {
		if _, good := validate.ID(bad); good {
			t.Fatalf("%q accepted", bad)
		}
	}
}

func TestEnums(t *testing.T) {
	if _, ok := validate.Condition("sorted"); !ok {
		t.Fatal("sorted rejected")
	}
	if _, ok := validate.Condition("SECOND_HAND"); ok {
		t.Fatal("unknown condition accepted")
	}
	if _, ok := validate.OrderStatus("shipping"); ok {
		t.Fatal("shipping is not an order status")
	}
	if _, ok := validate.PickupStatus("on_the_way"); !ok {
		t.Fatal("on_the_way rejected")
	}
}

func TestPage(t *testing.T) {
	cases := []struct {
		page, limit string
		p, l        int
	}{
		{"", "", 1, 20},
		{"3", "10", 3, 10},
		{"-1", "1000", 1, 100},
		{"x", "0", 1, 20},
	}
	for _, c := range cases {
		p, l := validate.Page(c.page, c.limit)
		if p != c.p || l != c.l {
			t.Fatalf("Page(%q,%q) = %d,%d want %d,%d", c.page, c.limit, p, l, c.p, c.l)
		}
	}
}

func TestCoordAndDecimal(t *testing.T) {
	if v, ok := validate.Coord("-6.2", 90); !ok || v != -6.2 {
		t.Fatalf("lat = %v %v", v, ok)
	}
	if _, ok := validate.Coord("181", 180); ok {
		t.Fatal("lng 181 accepted")
	}
	if _, ok := validate.Decimal("-1"); ok {
		t.Fatal("negative price accepted")
	}
	if d, ok := validate.Decimal("1500.50"); !ok || d.String() != "1500.5" {
		t.Fatalf("decimal = %v %v", d, ok)
	}
}
