package form

// Schema is the fixed set of fields collected by one agent.
type Schema struct {
	Name   string
	Fields []Field
}

// Field returns the field with the given name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Required returns the required fields in schema order.
func (s Schema) Required() []Field {
	var out []Field
	for _, f := range s.Fields {
		if f.Required {
			out = append(out, f)
		}
	}
	return out
}

// Order field names.
const (
	FieldDrinkType = "drinkType"
	FieldSize      = "size"
	FieldMilk      = "milk"
	FieldExtras    = "extras"
	FieldName      = "name"
)

// Check-in field names.
const (
	FieldMood       = "mood"
	FieldEnergy     = "energy"
	FieldStress     = "stress"
	FieldObjectives = "objectives"
	FieldNotes      = "notes"
)

// Suggested values given to the model. None of them are strict.
var (
	Drinks = Choice{Values: []string{"latte", "cappuccino", "americano", "espresso", "mocha", "cold brew", "frappuccino"}}
	Sizes  = Choice{Values: []string{"small", "medium", "large"}, Lower: true}
	Milks  = Choice{Values: []string{"whole milk", "skim milk", "oat milk", "almond milk", "soy milk", "none"}, Lower: true}
	Extras = Choice{Values: []string{"whipped cream", "extra shot", "vanilla syrup", "caramel syrup", "chocolate syrup", "cinnamon"}}

	Energies = Choice{Values: []string{"low", "medium", "high"}}
	Stresses = Choice{Values: []string{"low", "moderate", "high"}}
)

// OrderSchema is the coffee order collected by the barista.
var OrderSchema = Schema{
	Name: "order",
	Fields: []Field{
		{Name: FieldDrinkType, Label: "drink type", Kind: Scalar, Required: true, Validator: Drinks},
		{Name: FieldSize, Label: "size", Kind: Scalar, Required: true, Validator: Sizes},
		{Name: FieldMilk, Label: "milk preference", Kind: Scalar, Required: true, Validator: Milks},
		{Name: FieldExtras, Label: "extras", Kind: List, Validator: Extras},
		{Name: FieldName, Label: "customer name", Kind: Scalar, Required: true},
	},
}

// CheckInSchema is the wellness check-in. Nothing is required.
var CheckInSchema = Schema{
	Name: "checkin",
	Fields: []Field{
		{Name: FieldMood, Label: "mood", Kind: Scalar},
		{Name: FieldEnergy, Label: "energy level", Kind: Scalar, Validator: Energies},
		{Name: FieldStress, Label: "stress level", Kind: Scalar, Validator: Stresses},
		{Name: FieldObjectives, Label: "objectives", Kind: List},
		{Name: FieldNotes, Label: "notes", Kind: Scalar},
	},
}
