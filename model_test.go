package main

import (
	"reflect"
	"testing"
)

func TestSplitColumnList(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"single column", "id", []string{"id"}},
		{"ordered list", "status,created_at", []string{"status", "created_at"}},
		{"spaces around separators", " a , b ,c", []string{"a", "b", "c"}},
		{"empty string", "", nil},
		{"only separators", ",,", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := splitColumnList(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitColumnList(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestIndexKeyOrdering(t *testing.T) {
	a := IndexKey{Schema: "crm", Table: "leads", Index: "idx_a"}
	b := IndexKey{Schema: "crm", Table: "leads", Index: "idx_b"}
	c := IndexKey{Schema: "crm", Table: "users", Index: "idx_a"}
	d := IndexKey{Schema: "shop", Table: "a", Index: "a"}

	ordered := []IndexKey{a, b, c, d}
	for i := 0; i < len(ordered)-1; i++ {
		if !ordered[i].less(ordered[i+1]) {
			t.Errorf("%s should sort before %s", ordered[i], ordered[i+1])
		}
		if ordered[i+1].less(ordered[i]) {
			t.Errorf("%s should not sort before %s", ordered[i+1], ordered[i])
		}
	}
	if a.less(a) {
		t.Error("key sorts before itself")
	}
}

func TestForeignKeyMapBacks(t *testing.T) {
	key := IndexKey{Schema: "shop", Table: "orders", Index: "idx_customer"}
	fks := ForeignKeyMap{key: "fk_orders_customer"}

	if !fks.Backs(key) {
		t.Error("Backs = false for a mapped index")
	}
	if fks.Backs(IndexKey{Schema: "shop", Table: "orders", Index: "idx_status"}) {
		t.Error("Backs = true for an unmapped index")
	}
}

func TestIndexRecordKeys(t *testing.T) {
	rec := testIndex("shop", "orders", "idx_status", []string{"status"}, 0)

	if got, want := rec.Key().String(), "shop.orders.idx_status"; got != want {
		t.Errorf("Key().String() = %q, want %q", got, want)
	}
	if got, want := rec.TableKey().String(), "shop.orders"; got != want {
		t.Errorf("TableKey().String() = %q, want %q", got, want)
	}
	if got, want := rec.QualifiedTable(), "shop.orders"; got != want {
		t.Errorf("QualifiedTable() = %q, want %q", got, want)
	}
}
