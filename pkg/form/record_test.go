package form

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestSetOverwritesAndNormalizes(t *testing.T) {
	r := New(OrderSchema)

	if _, err := r.Set(FieldSize, "Small"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := r.Set(FieldSize, "  Large ")
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got != "large" {
		t.Errorf("size should be lowercased, got %q", got)
	}
	if v := r.Value(FieldSize); v != "large" {
		t.Errorf("last write wins, got %q", v)
	}

	r.Set(FieldDrinkType, "Cold Brew")
	if v := r.Value(FieldDrinkType); v != "Cold Brew" {
		t.Errorf("drink type is stored as given, got %q", v)
	}
	r.Set(FieldMilk, "Oat Milk")
	if v := r.Value(FieldMilk); v != "oat milk" {
		t.Errorf("milk should be lowercased, got %q", v)
	}
}

func TestSetRejectsEmpty(t *testing.T) {
	r := New(OrderSchema)
	r.Set(FieldName, "Sam")

	_, err := r.Set(FieldName, "   ")
	if !errors.Is(err, ErrEmptyValue) {
		t.Fatalf("expected ErrEmptyValue, got %v", err)
	}
	if v := r.Value(FieldName); v != "Sam" {
		t.Errorf("a rejected value must not unset the field, got %q", v)
	}
}

func TestSetUnknownAndWrongKind(t *testing.T) {
	r := New(OrderSchema)

	if _, err := r.Set("flavor", "x"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
	if _, err := r.Set(FieldExtras, "x"); !errors.Is(err, ErrWrongKind) {
		t.Errorf("expected ErrWrongKind for Set on list, got %v", err)
	}
	if _, err := r.Add(FieldName, "x"); !errors.Is(err, ErrWrongKind) {
		t.Errorf("expected ErrWrongKind for Add on scalar, got %v", err)
	}
}

func TestAddDeduplicatesPreservingOrder(t *testing.T) {
	r := New(OrderSchema)

	for _, v := range []string{"extra shot", "cinnamon", "extra shot", "Cinnamon", "cinnamon"} {
		if _, err := r.Add(FieldExtras, v); err != nil {
			t.Fatalf("Add(%q): %v", v, err)
		}
	}

	want := []string{"extra shot", "cinnamon", "Cinnamon"}
	if got := r.List(FieldExtras); !reflect.DeepEqual(got, want) {
		t.Errorf("extras = %v, want %v", got, want)
	}

	added, _ := r.Add(FieldExtras, "extra shot")
	if added {
		t.Error("duplicate add should report false")
	}
}

func TestSetterSequenceProperty(t *testing.T) {
	type op struct {
		field, value string
	}
	seq := []op{
		{FieldMood, "tired"},
		{FieldObjectives, "walk"},
		{FieldEnergy, "low"},
		{FieldMood, "better"},
		{FieldObjectives, "read"},
		{FieldObjectives, "walk"},
		{FieldEnergy, "medium"},
	}

	r := New(CheckInSchema)
	for _, o := range seq {
		f, _ := CheckInSchema.Field(o.field)
		var err error
		if f.Kind == List {
			_, err = r.Add(o.field, o.value)
		} else {
			_, err = r.Set(o.field, o.value)
		}
		if err != nil {
			t.Fatalf("%s=%s: %v", o.field, o.value, err)
		}
	}

	if r.Value(FieldMood) != "better" || r.Value(FieldEnergy) != "medium" {
		t.Errorf("scalars should hold last value, got mood=%q energy=%q", r.Value(FieldMood), r.Value(FieldEnergy))
	}
	if got := r.List(FieldObjectives); !reflect.DeepEqual(got, []string{"walk", "read"}) {
		t.Errorf("objectives = %v", got)
	}
}

func TestMissing(t *testing.T) {
	r := New(OrderSchema)

	want := []string{"drink type", "size", "milk preference", "customer name"}
	if got := r.MissingLabels(); !reflect.DeepEqual(got, want) {
		t.Errorf("MissingLabels = %v, want %v", got, want)
	}

	r.Set(FieldDrinkType, "latte")
	r.Set(FieldName, "Sam")
	want = []string{"size", "milk preference"}
	if got := r.MissingLabels(); !reflect.DeepEqual(got, want) {
		t.Errorf("MissingLabels = %v, want %v", got, want)
	}

	if len(New(CheckInSchema).Missing()) != 0 {
		t.Error("check-in has no required fields")
	}
}

func TestNextUnset(t *testing.T) {
	r := New(CheckInSchema)
	f, ok := r.NextUnset()
	if !ok || f.Name != FieldMood {
		t.Fatalf("NextUnset = %v %v, want mood", f.Name, ok)
	}

	r.Set(FieldMood, "good")
	r.Set(FieldEnergy, "high")
	f, _ = r.NextUnset()
	if f.Name != FieldStress {
		t.Errorf("NextUnset = %s, want stress", f.Name)
	}

	r.Set(FieldStress, "low")
	r.Set(FieldNotes, "none")
	if _, ok := r.NextUnset(); ok {
		t.Error("all scalars set, NextUnset should report false")
	}
}

func TestMarshalJSONOrderAndNulls(t *testing.T) {
	r := New(OrderSchema)
	r.Set(FieldDrinkType, "latte")

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	want := `{"drinkType":"latte","size":null,"milk":null,"extras":[],"name":null}`
	if string(data) != want {
		t.Errorf("got  %s\nwant %s", data, want)
	}
}

func TestResetAndClone(t *testing.T) {
	r := New(OrderSchema)
	r.Set(FieldName, "Ada")
	r.Add(FieldExtras, "cinnamon")

	c := r.Clone()
	r.Reset()

	if !r.IsEmpty() {
		t.Error("Reset should clear every field")
	}
	if c.Value(FieldName) != "Ada" || len(c.List(FieldExtras)) != 1 {
		t.Error("clone must be independent of the original")
	}
}
