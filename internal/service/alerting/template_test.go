package alerting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"luxuryestates/internal/model"
)

const placeholder = "https://example.com/placeholder-property.jpg"

func TestSubject(t *testing.T) {
	assert.Equal(t, "Alert Created for Villa Properties", Subject(model.KindWelcome, model.CategoryVilla))
	assert.Equal(t, "New Penthouse Property Added", Subject(model.KindNewListing, model.CategoryPenthouse))
}

func TestFormatPrice(t *testing.T) {
	r := NewRenderer("https://luxury.example", placeholder)
	assert.Equal(t, "$1,250,000", r.FormatPrice(1250000))
	assert.Equal(t, "$950", r.FormatPrice(950))
}

func TestRenderUsesFallbacks(t *testing.T) {
	r := NewRenderer("https://luxury.example/", placeholder)

	html, err := r.Render(model.KindNewListing, model.CategoryVilla, []model.PropertySnapshot{{ID: 42}})
	require.NoError(t, err)

	assert.Contains(t, html, "New Villa Properties Available!")
	assert.Contains(t, html, "Luxury Property")
	assert.Contains(t, html, placeholder)
	assert.Contains(t, html, "Contact for price")
	assert.Contains(t, html, "Bedrooms: N/A")
	assert.Contains(t, html, `href="https://luxury.example/properties/42"`)
}

func TestRenderPrefersExplicitFields(t *testing.T) {
	r := NewRenderer("https://luxury.example", placeholder)

	html, err := r.Render(model.KindWelcome, model.CategoryMansion, []model.PropertySnapshot{{
		ID:       7,
		Title:    "Cliffside Estate",
		Price:    12_000_000,
		Bedrooms: 6,
		Location: "Malibu",
		ImageURL: "https://cdn.example/cliff.jpg",
		Link:     "https://agent.example/cliffside",
	}})
	require.NoError(t, err)

	assert.Contains(t, html, "Alert Successfully Created!")
	assert.Contains(t, html, "Cliffside Estate")
	assert.Contains(t, html, "Malibu")
	assert.Contains(t, html, "$12,000,000")
	assert.Contains(t, html, "Bedrooms: 6")
	assert.Contains(t, html, "https://cdn.example/cliff.jpg")
	assert.Contains(t, html, `href="https://agent.example/cliffside"`)
	assert.NotContains(t, html, placeholder)
	assert.NotContains(t, html, "/properties/7")
}

func TestRenderEscapesUserContent(t *testing.T) {
	r := NewRenderer("https://luxury.example", placeholder)

	html, err := r.Render(model.KindNewListing, model.CategoryVilla, []model.PropertySnapshot{{ID: 1, Title: "<script>alert(1)</script>"}})
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
}

func TestNotifyRecordsSuccess(t *testing.T) {
	sender := &recordingSender{}
	n := NewNotifier(sender, NewRenderer("https://luxury.example", placeholder), zap.NewNop())
	n.now = func() time.Time { return baseTime }

	outcome := n.Notify(context.Background(), Notification{
		Kind:        model.KindNewListing,
		Destination: "a@x.com",
		AlertID:     9,
		Category:    model.CategoryVilla,
	})

	assert.Equal(t, model.DeliveryOutcome{
		Destination: "a@x.com",
		AlertID:     9,
		Status:      model.DeliverySent,
		AttemptedAt: baseTime,
	}, outcome)
	assert.Len(t, sender.sent(), 1)
}

func TestNotifyCapturesTransportFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	sender := &recordingSender{failFor: map[string]error{"a@x.com": errors.New("dial tcp: connection refused")}}
	n := NewNotifier(sender, NewRenderer("https://luxury.example", placeholder), zap.New(core))

	outcome := n.Notify(context.Background(), Notification{Kind: model.KindWelcome, Destination: "a@x.com", Category: model.CategoryVilla})

	assert.Equal(t, model.DeliveryFailed, outcome.Status)
	assert.Equal(t, "dial tcp: connection refused", outcome.Error)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Notification delivery failed", logs.All()[0].Message)
}

func TestNotifyRecoversFromPanic(t *testing.T) {
	sender := &recordingSender{panicFor: "a@x.com"}
	n := NewNotifier(sender, NewRenderer("https://luxury.example", placeholder), zap.NewNop())

	var outcome model.DeliveryOutcome
	require.NotPanics(t, func() {
		outcome = n.Notify(context.Background(), Notification{Kind: model.KindWelcome, Destination: "a@x.com", Category: model.CategoryVilla})
	})
	assert.Equal(t, model.DeliveryFailed, outcome.Status)
	assert.Contains(t, outcome.Error, "transport exploded")
}
