// Package barista is the coffee order agent. It collects drink type, size,
// milk, optional extras and the customer's name, then saves the order as a
// JSON file and mirrors it on the "coffee-order" topic.
package barista

import (
	"context"
	"fmt"
	"strings"

	"github.com/teslashibe/go-voiceform/pkg/agent"
	"github.com/teslashibe/go-voiceform/pkg/broadcast"
	"github.com/teslashibe/go-voiceform/pkg/form"
	"github.com/teslashibe/go-voiceform/pkg/store"
	"github.com/teslashibe/go-voiceform/pkg/voice"
)

// Name is the agent name used in configuration.
const Name = "barista"

// DefaultShop is the shop the barista works at.
const DefaultShop = "Murf's Coffee House"

// Options configures the barista.
type Options struct {
	// Shop is named in the instructions and the order summary.
	Shop string

	// Orders receives completed orders. Defaults to ./orders.
	Orders *store.OrderStore

	// Instructions replaces the default system prompt.
	Instructions string

	// Greeting replaces the default greeting. Use "-" for none.
	Greeting string
}

// Definition returns the barista agent.
func Definition(opts Options) agent.Definition {
	if opts.Shop == "" {
		opts.Shop = DefaultShop
	}
	if opts.Orders == nil {
		opts.Orders = store.NewOrderStore("orders")
	}
	instructions := opts.Instructions
	if instructions == "" {
		instructions = Instructions(opts.Shop)
	}

	greeting := opts.Greeting
	switch greeting {
	case "":
		greeting = fmt.Sprintf("Greet the customer warmly, welcome them to %s and ask what they would like to drink.", opts.Shop)
	case "-":
		greeting = ""
	}

	return agent.Definition{
		Name:         Name,
		Topic:        broadcast.TopicOrder,
		RecordKey:    "order",
		UpdateType:   broadcast.TypeOrderUpdate,
		CompleteType: broadcast.TypeOrderComplete,
		Schema:       form.OrderSchema,
		WithHistory:  true,
		Greeting:     greeting,
		Instructions: func(context.Context) string { return instructions },
		Tools: func(s *agent.Session) []voice.Tool {
			b := &barista{s: s, shop: opts.Shop, orders: opts.Orders}
			return b.tools()
		},
		FollowUp: followUp,
	}
}

// Instructions returns the default system prompt.
func Instructions(shop string) string {
	return fmt.Sprintf(`You are a friendly barista at %s, the finest coffee shop in town!
You are warm, enthusiastic, and passionate about coffee. The user is interacting with you via voice.

Your job is to help customers place their coffee orders. For each order, you need to collect:
1. Drink type (e.g., %s, etc.)
2. Size (%s)
3. Milk preference (%s)
4. Extras (%s, etc.) - optional
5. Customer's name for the order

IMPORTANT: When the customer provides multiple pieces of information in one sentence, extract ALL the details and use the appropriate tools for each piece of information in the SAME response. For example, if they say "I want a large latte with oat milk", immediately call set_drink_type, set_size, and set_milk tools.

Ask friendly, clarifying questions for any MISSING information only.
Once you have drink type, size, milk, and name, use the complete_order tool immediately.
Extras are optional - if the customer says "no extras" or "nothing else", proceed to complete the order.

Your responses should be concise, natural, and conversational without complex formatting or symbols.
Be helpful and make suggestions if customers are unsure what to order!`,
		shop,
		strings.Join(form.Drinks.Values, ", "),
		form.Sizes.Describe(),
		form.Milks.Describe(),
		strings.Join(form.Extras.Values, ", "),
	)
}

// followUp asks for the first missing order field. Extras are offered
// together with the name.
func followUp(s *agent.Session, next form.Field, pending bool) string {
	if !pending {
		return "Let me complete your order now."
	}
	switch next.Name {
	case form.FieldDrinkType:
		return "What would you like to drink?"
	case form.FieldSize:
		return "What size would you like - small, medium, or large?"
	case form.FieldMilk:
		return "What kind of milk would you like?"
	case form.FieldName:
		if len(s.Record.List(form.FieldExtras)) == 0 {
			return "Would you like any extras like whipped cream, extra shot, or flavored syrups? If not, what name should I put on the order?"
		}
		return "Anything else you'd like to add? If not, what name should I put on the order?"
	}
	return fmt.Sprintf("What %s would you like?", next.Label)
}

type barista struct {
	s      *agent.Session
	shop   string
	orders *store.OrderStore
}

func (b *barista) tools() []voice.Tool {
	s := b.s
	return []voice.Tool{
		s.Setter(agent.SetterSpec{
			Tool:             "set_drink_type",
			Description:      "Set the type of drink for the current order.",
			Param:            "drink_type",
			ParamDescription: "The type of coffee drink (e.g., latte, cappuccino, americano, espresso, mocha, cold brew)",
			Field:            form.FieldDrinkType,
			Reply: func(v string) string {
				return fmt.Sprintf("Got it! A %s.", v)
			},
		}),
		s.Setter(agent.SetterSpec{
			Tool:             "set_size",
			Description:      "Set the size for the current order.",
			Param:            "size",
			ParamDescription: "The size of the drink: " + form.Sizes.Describe(),
			Field:            form.FieldSize,
			Reply: func(v string) string {
				drink := s.Record.Value(form.FieldDrinkType)
				if drink == "" {
					drink = "drink"
				}
				return fmt.Sprintf("Perfect! A %s %s.", v, drink)
			},
		}),
		s.Setter(agent.SetterSpec{
			Tool:             "set_milk",
			Description:      "Set the milk preference for the current order.",
			Param:            "milk",
			ParamDescription: "The type of milk: " + form.Milks.Describe(),
			Field:            form.FieldMilk,
			Reply: func(v string) string {
				return fmt.Sprintf("Noted! %s.", v)
			},
		}),
		s.Adder(agent.AdderSpec{
			Tool:             "add_extra",
			Description:      "Add an extra item to the current order.",
			Param:            "extra",
			ParamDescription: "An extra item to add (e.g., " + strings.Join(form.Extras.Values, ", ") + ")",
			Field:            form.FieldExtras,
			Reply: func(item string, _ bool) string {
				return fmt.Sprintf("Added %s!", item)
			},
		}),
		s.Setter(agent.SetterSpec{
			Tool:             "set_customer_name",
			Description:      "Set the customer's name for the current order.",
			Param:            "name",
			ParamDescription: "The customer's name for the order",
			Field:            form.FieldName,
			Reply: func(v string) string {
				return fmt.Sprintf("Great! I have your name as %s.", v)
			},
		}),
		s.Action("complete_order",
			"Complete and save the order. Use this when all order details are collected.",
			b.complete),
		s.Action("get_order_status",
			"Read back what is on the current order so far and what is still needed.",
			b.status),
	}
}

// OrderFrom builds the order to save from a filled record.
func OrderFrom(r *form.Record) store.Order {
	extras := r.List(form.FieldExtras)
	if extras == nil {
		extras = []string{}
	}
	return store.Order{
		DrinkType: r.Value(form.FieldDrinkType),
		Size:      r.Value(form.FieldSize),
		Milk:      r.Value(form.FieldMilk),
		Extras:    extras,
		Name:      r.Value(form.FieldName),
		Status:    store.StatusCompleted,
	}
}

func (b *barista) complete(ctx context.Context) (reply string) {
	s := b.s

	if missing := s.Record.MissingLabels(); len(missing) > 0 {
		s.Logger.Info("order incomplete", "missing", missing)
		return agent.MissingReply(missing)
	}

	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error("complete_order panicked", "panic", r)
			reply = b.fallback()
		}
	}()

	now := s.Now()
	order := OrderFrom(s.Record)
	order.Timestamp = now.Format(store.TimestampLayout)

	path, err := b.orders.Save(order, now)
	if err != nil {
		s.Logger.Error("save order failed", "error", err)
		return b.fallback()
	}
	s.Logger.Info("order saved", "path", path, "name", order.Name, "drink", order.DrinkType)

	s.AppendHistory(order)
	if res := s.BroadcastRecord(ctx, broadcast.TypeOrderComplete, order); res.Delivered {
		s.Logger.Info("published order_complete with history", "orders", len(s.History()))
	}

	// The record is kept so the frontend keeps showing the last order.
	return b.summary(order)
}

func (b *barista) summary(o store.Order) string {
	return fmt.Sprintf("Perfect! I've placed your order, %s!\n\nYour order: %s %s with %s, %s.\n\nYour order has been saved and will be ready shortly. Thank you for choosing %s!",
		o.Name, o.Size, o.DrinkType, o.Milk, o.ExtrasText(), b.shop)
}

// fallback reads the live record, so whatever was collected is repeated back.
func (b *barista) fallback() string {
	r := b.s.Record
	return fmt.Sprintf("I apologize, but I encountered an error completing your order. However, I have all your details saved: %s %s with %s for %s. Let me try again!",
		r.Value(form.FieldSize), r.Value(form.FieldDrinkType), r.Value(form.FieldMilk), r.Value(form.FieldName))
}

func (b *barista) status(context.Context) string {
	r := b.s.Record
	if r.IsEmpty() {
		return "There's nothing on the order yet. What can I get started for you?"
	}

	var parts []string
	if v := r.Value(form.FieldSize); v != "" {
		parts = append(parts, v)
	}
	if v := r.Value(form.FieldDrinkType); v != "" {
		parts = append(parts, v)
	} else {
		parts = append(parts, "drink")
	}
	desc := "a " + strings.Join(parts, " ")
	if v := r.Value(form.FieldMilk); v != "" {
		desc += " with " + v
	}
	if extras := r.List(form.FieldExtras); len(extras) > 0 {
		desc += ", plus " + strings.Join(extras, ", ")
	}
	if v := r.Value(form.FieldName); v != "" {
		desc += " for " + v
	}

	if missing := r.MissingLabels(); len(missing) > 0 {
		return fmt.Sprintf("So far I have %s. %s", desc, agent.MissingReply(missing))
	}
	return fmt.Sprintf("So far I have %s. That's everything I need, shall I place the order?", desc)
}
