package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"luxuryestates/internal/model"
	"luxuryestates/internal/service/alerting"
	"luxuryestates/internal/service/booking"
	"luxuryestates/internal/service/contact"
	"luxuryestates/internal/service/property"
	"luxuryestates/pkg/outbox"
	"luxuryestates/pkg/rbac"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// withUser 模拟 AuthMiddleware
func withUser(userID int64, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextUserID, userID)
		c.Set(ContextRole, role)
		c.Next()
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{model.NewValidationError("email", "bad"), http.StatusBadRequest},
		{fmt.Errorf("get: %w", model.ErrNotFound), http.StatusNotFound},
		{model.ErrForbidden, http.StatusForbidden},
		{model.ErrEmailExists, http.StatusConflict},
		{model.ErrInvalidCredentials, http.StatusUnauthorized},
		{booking.ErrInvalidSignature, http.StatusBadRequest},
		{booking.ErrNotConfigured, http.StatusServiceUnavailable},
		{contact.ErrNoInbox, http.StatusServiceUnavailable},
		{model.Persistence("insert", errors.New("conn reset")), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

type fakeAlerts struct {
	err   error
	email string
}

func (f *fakeAlerts) CreateAlert(_ context.Context, email, propertyType string) (*model.Alert, error) {
	f.email = email
	if f.err != nil {
		return nil, f.err
	}
	return &model.Alert{ID: 1, Email: email, PropertyType: model.Category(propertyType)}, nil
}

func TestAlertCreate(t *testing.T) {
	alerts := &fakeAlerts{}
	r := gin.New()
	r.POST("/alerts", NewAlertHandler(alerts, zaptest.NewLogger(t)).Create)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/alerts", strings.NewReader(`{"email":"a@b.co","propertyType":"Villa"}`))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.Contains(t, body["message"], "Alert created")
	assert.Equal(t, "a@b.co", alerts.email)
}

func TestAlertCreateValidationError(t *testing.T) {
	alerts := &fakeAlerts{err: model.NewValidationError("email", "invalid email format")}
	r := gin.New()
	r.POST("/alerts", NewAlertHandler(alerts, zaptest.NewLogger(t)).Create)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/alerts", strings.NewReader(`{"email":"nope","propertyType":"Villa"}`)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "invalid email format", body["error"])
	assert.Equal(t, "email", body["field"])
}

func TestAlertCreateHidesInternalErrors(t *testing.T) {
	alerts := &fakeAlerts{err: model.Persistence("insert alert", errors.New("password=secret"))}
	r := gin.New()
	r.POST("/alerts", NewAlertHandler(alerts, zaptest.NewLogger(t)).Create)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/alerts", strings.NewReader(`{"email":"a@b.co","propertyType":"Villa"}`)))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "secret")
}

type fakeProperties struct {
	PropertyService
	actor    property.Actor
	input    property.CreateInput
	fileData []string
	update   property.UpdateInput
	tour     string
	filter   model.PropertyFilter
	dispatch alerting.Dispatch
}

func (f *fakeProperties) Create(_ context.Context, actor property.Actor, in property.CreateInput, files []property.File) (*model.Property, alerting.Dispatch, error) {
	f.actor = actor
	f.input = in
	for _, file := range files {
		b, _ := io.ReadAll(file.Body)
		f.fileData = append(f.fileData, string(b))
	}
	return &model.Property{ID: 9, Title: in.Title, Category: model.Category(in.Category)}, f.dispatch, nil
}

func (f *fakeProperties) Update(_ context.Context, actor property.Actor, id int64, in property.UpdateInput, files []property.File, tour *property.File) (*model.Property, error) {
	f.actor = actor
	f.update = in
	if tour != nil {
		f.tour = tour.Name
	}
	return &model.Property{ID: id}, nil
}

func (f *fakeProperties) DeleteImage(_ context.Context, _ property.Actor, _ int64, index int) error {
	if index > 2 {
		return model.NewValidationError("index", "invalid image index")
	}
	return nil
}

func (f *fakeProperties) Search(_ context.Context, filter model.PropertyFilter) ([]model.Property, error) {
	f.filter = filter
	return []model.Property{}, nil
}

func multipartBody(t *testing.T, fields map[string]string, files map[string][]string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for field, contents := range files {
		for i, content := range contents {
			fw, err := mw.CreateFormFile(field, fmt.Sprintf("%s-%d.jpg", field, i))
			require.NoError(t, err)
			_, err = fw.Write([]byte(content))
			require.NoError(t, err)
		}
	}
	require.NoError(t, mw.Close())
	return buf, mw.FormDataContentType()
}

func TestPropertyCreateMultipart(t *testing.T) {
	svc := &fakeProperties{dispatch: alerting.Dispatch{Count: 2, JobID: "job-1"}}
	r := gin.New()
	r.POST("/properties", withUser(5, rbac.RoleUser), NewPropertyHandler(svc, zaptest.NewLogger(t)).Create)

	body, ct := multipartBody(t, map[string]string{
		"title":    "Cliff Villa",
		"price":    "2500000",
		"bedrooms": "4",
		"category": "Villa",
	}, map[string][]string{"images": {"a", "b", "c"}})
	req := httptest.NewRequest(http.MethodPost, "/properties", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode(t, w)
	assert.Equal(t, "Property added and 2 notifications sent", resp["message"])
	assert.EqualValues(t, 2, resp["dispatchedCount"])
	assert.Equal(t, "job-1", resp["jobId"])

	assert.Equal(t, int64(5), svc.actor.UserID)
	assert.Equal(t, int64(2500000), svc.input.Price)
	assert.Equal(t, 4, svc.input.Bedrooms)
	assert.Equal(t, []string{"a", "b", "c"}, svc.fileData)
}

func TestPropertyCreateAsyncReportsQueued(t *testing.T) {
	svc := &fakeProperties{dispatch: alerting.Dispatch{Count: 3, JobID: "job-2", Async: true}}
	r := gin.New()
	r.POST("/properties", withUser(5, rbac.RoleUser), NewPropertyHandler(svc, zaptest.NewLogger(t)).Create)

	body, ct := multipartBody(t, map[string]string{
		"title":    "Harbor Penthouse",
		"price":    "4000000",
		"category": "Penthouse",
	}, map[string][]string{"images": {"a", "b", "c"}})
	req := httptest.NewRequest(http.MethodPost, "/properties", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode(t, w)
	assert.Equal(t, "Property added and 3 notifications queued", resp["message"])
	assert.Equal(t, true, resp["async"])
	assert.EqualValues(t, 3, resp["dispatchedCount"])
}

func TestPropertyCreateRejectsNonNumericPrice(t *testing.T) {
	svc := &fakeProperties{}
	r := gin.New()
	r.POST("/properties", withUser(5, rbac.RoleUser), NewPropertyHandler(svc, zaptest.NewLogger(t)).Create)

	body, ct := multipartBody(t, map[string]string{"title": "x", "price": "lots", "category": "Villa"}, nil)
	req := httptest.NewRequest(http.MethodPost, "/properties", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "price", decode(t, w)["field"])
}

func TestPropertyCreateRequiresAuthentication(t *testing.T) {
	r := gin.New()
	r.POST("/properties", NewPropertyHandler(&fakeProperties{}, zaptest.NewLogger(t)).Create)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/properties", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPropertyUpdateOnlySetsProvidedFields(t *testing.T) {
	svc := &fakeProperties{}
	r := gin.New()
	r.PUT("/properties/:id", withUser(5, rbac.RoleAdmin), NewPropertyHandler(svc, zaptest.NewLogger(t)).Update)

	body, ct := multipartBody(t, map[string]string{"title": "Renamed", "sqft": "1200"},
		map[string][]string{"virtualTour": {"tour"}})
	req := httptest.NewRequest(http.MethodPut, "/properties/3", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, svc.update.Title)
	assert.Equal(t, "Renamed", *svc.update.Title)
	require.NotNil(t, svc.update.Sqft)
	assert.Equal(t, 1200, *svc.update.Sqft)
	assert.Nil(t, svc.update.Price)
	assert.Nil(t, svc.update.Category)
	assert.Equal(t, "virtualTour-0.jpg", svc.tour)
	assert.Equal(t, rbac.RoleAdmin, svc.actor.Role)
}

func TestPropertyDeleteImageIndex(t *testing.T) {
	r := gin.New()
	r.DELETE("/properties/:id/images/:index", withUser(5, rbac.RoleUser),
		NewPropertyHandler(&fakeProperties{}, zaptest.NewLogger(t)).DeleteImage)

	for path, want := range map[string]int{
		"/properties/3/images/1": http.StatusOK,
		"/properties/3/images/7": http.StatusBadRequest,
		"/properties/3/images/x": http.StatusBadRequest,
		"/properties/0/images/1": http.StatusBadRequest,
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, path, nil))
		assert.Equal(t, want, w.Code, path)
	}
}

func TestPropertySearchParsesQuery(t *testing.T) {
	svc := &fakeProperties{}
	r := gin.New()
	r.GET("/properties", NewPropertyHandler(svc, zaptest.NewLogger(t)).Search)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/properties?location=malibu&category=Villa&priceRange=1-3&limit=5", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.PropertyFilter{
		Location:   "malibu",
		Category:   model.CategoryVilla,
		PriceRange: model.PriceRange1To3,
		Limit:      5,
	}, svc.filter)
	assert.EqualValues(t, 0, decode(t, w)["count"])
}

type fakeBookings struct {
	payload   string
	signature string
	origin    string
	err       error
}

func (f *fakeBookings) Checkout(_ context.Context, _ int64, _ booking.CheckoutInput, origin string) (*booking.CheckoutSession, error) {
	f.origin = origin
	return &booking.CheckoutSession{ID: "cs_test", URL: "https://checkout.stripe.com/c/cs_test"}, nil
}

func (f *fakeBookings) HandleWebhook(_ context.Context, payload []byte, signature string) error {
	f.payload = string(payload)
	f.signature = signature
	return f.err
}

func TestBookingWebhookPassesRawBody(t *testing.T) {
	svc := &fakeBookings{}
	r := gin.New()
	r.POST("/bookings/webhook", NewBookingHandler(svc, zaptest.NewLogger(t)).Webhook)

	req := httptest.NewRequest(http.MethodPost, "/bookings/webhook", strings.NewReader(`{"type":"checkout.session.completed"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"type":"checkout.session.completed"}`, svc.payload)
	assert.Equal(t, "t=1,v1=abc", svc.signature)
}

func TestBookingWebhookBadSignature(t *testing.T) {
	svc := &fakeBookings{err: fmt.Errorf("%w: mismatch", booking.ErrInvalidSignature)}
	r := gin.New()
	r.POST("/bookings/webhook", NewBookingHandler(svc, zaptest.NewLogger(t)).Webhook)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/bookings/webhook", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBookingCheckoutUsesOrigin(t *testing.T) {
	svc := &fakeBookings{}
	r := gin.New()
	r.POST("/bookings/checkout", withUser(5, rbac.RoleUser), NewBookingHandler(svc, zaptest.NewLogger(t)).Checkout)

	req := httptest.NewRequest(http.MethodPost, "/bookings/checkout", strings.NewReader(`{"propertyId":1}`))
	req.Header.Set("Origin", "https://luxury.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://luxury.example", svc.origin)
	assert.Equal(t, "cs_test", decode(t, w)["id"])
}

type fakeContact struct {
	from string
	in   contact.Input
}

func (f *fakeContact) Send(_ context.Context, userEmail string, in contact.Input) error {
	f.from = userEmail
	f.in = in
	return nil
}

type fakeUsers struct{}

func (fakeUsers) Me(_ context.Context, id int64) (*model.User, error) {
	if id != 5 {
		return nil, model.ErrNotFound
	}
	return &model.User{ID: 5, Email: "buyer@example.com"}, nil
}

func TestContactUsesLoggedInEmail(t *testing.T) {
	svc := &fakeContact{}
	r := gin.New()
	r.POST("/contact-agent", withUser(5, rbac.RoleUser), NewContactHandler(svc, fakeUsers{}, zaptest.NewLogger(t)).Send)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/contact-agent",
		strings.NewReader(`{"agentName":"Jane","message":"Is it available?","userEmail":"spoof@evil.test"}`)))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "buyer@example.com", svc.from)
	assert.Equal(t, "Jane", svc.in.AgentName)
}

type fakeReplayer struct {
	replayed []int64
	limit    int
}

func (f *fakeReplayer) ReplayEvent(_ context.Context, id int64) error {
	switch id {
	case 404:
		return fmt.Errorf("%w: %d", outbox.ErrEventNotFound, id)
	case 500:
		return errors.New("publish failed")
	}
	f.replayed = append(f.replayed, id)
	return nil
}

func (f *fakeReplayer) ReplayFailedEvents(_ context.Context, limit int) (int, error) {
	f.limit = limit
	return 3, nil
}

func TestAdminReplay(t *testing.T) {
	replayer := &fakeReplayer{}
	h := NewAdminHandler(replayer, zaptest.NewLogger(t))
	r := gin.New()
	r.POST("/admin/outbox/replay", h.ReplayOutboxEvent)
	r.POST("/admin/outbox/replay-failed", h.ReplayFailedEvents)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/outbox/replay?id=12", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int64{12}, replayer.replayed)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/outbox/replay", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/outbox/replay?id=404", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/outbox/replay?id=500", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/outbox/replay-failed?limit=-1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 100, replayer.limit)
	assert.EqualValues(t, 3, decode(t, w)["success_count"])
}
