package alerting

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	mqcontracts "luxuryestates/contracts/mq"
	"luxuryestates/internal/model"
	"luxuryestates/pkg/mailer"
)

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type memAlertStore struct {
	mu        sync.Mutex
	alerts    []model.Alert
	createErr error
	findErr   error
	findCalls int
}

func (s *memAlertStore) Create(_ context.Context, a *model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	a.ID = int64(len(s.alerts) + 1)
	a.CreatedAt = baseTime.Add(time.Duration(a.ID) * time.Minute)
	s.alerts = append(s.alerts, *a)
	return nil
}

func (s *memAlertStore) FindByCategory(_ context.Context, c model.Category) ([]model.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	if s.findErr != nil {
		return nil, s.findErr
	}
	var out []model.Alert
	for _, a := range s.alerts {
		if a.PropertyType == c {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memAlertStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

type memPropertyStore struct {
	mu         sync.Mutex
	properties []model.Property
	createErr  error
	recentErr  error
}

func (s *memPropertyStore) Create(_ context.Context, p *model.Property) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	p.ID = int64(len(s.properties) + 1)
	p.CreatedAt = baseTime.Add(time.Duration(p.ID) * time.Hour)
	s.properties = append(s.properties, *p)
	return nil
}

func (s *memPropertyStore) FindRecentByCategory(_ context.Context, c model.Category, limit int) ([]model.Property, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recentErr != nil {
		return nil, s.recentErr
	}
	var out []model.Property
	for _, p := range s.properties {
		if p.Category == c {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memPropertyStore) seed(title string, c model.Category) model.Property {
	p := model.Property{Title: title, Category: c, Price: 1_000_000, Bedrooms: 3, OwnerID: 1}
	_ = s.Create(context.Background(), &p)
	return p
}

type recordingSender struct {
	mu       sync.Mutex
	messages []mailer.Message
	failFor  map[string]error
	panicFor string
}

func (s *recordingSender) Send(_ context.Context, msg mailer.Message) error {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	if msg.To == s.panicFor {
		panic("transport exploded")
	}
	if err, ok := s.failFor[msg.To]; ok {
		return err
	}
	return nil
}

func (s *recordingSender) sent() []mailer.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]mailer.Message(nil), s.messages...)
}

func (s *recordingSender) recipients() []string {
	var out []string
	for _, m := range s.sent() {
		out = append(out, m.To)
	}
	sort.Strings(out)
	return out
}

type fakeQueue struct {
	welcome []mqcontracts.AlertCreatedPayload
	fanout  []mqcontracts.NotificationFanoutPayload
	err     error
}

func (q *fakeQueue) EnqueueWelcome(_ context.Context, p mqcontracts.AlertCreatedPayload) error {
	if q.err != nil {
		return q.err
	}
	q.welcome = append(q.welcome, p)
	return nil
}

func (q *fakeQueue) EnqueueFanout(_ context.Context, p mqcontracts.NotificationFanoutPayload) error {
	if q.err != nil {
		return q.err
	}
	q.fanout = append(q.fanout, p)
	return nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	batches []model.BatchResult
	ids     []*int64
	err     error
}

func (r *fakeRecorder) InsertBatch(_ context.Context, propertyID *int64, result model.BatchResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, result)
	r.ids = append(r.ids, propertyID)
	return r.err
}

type memDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *memDeduper) Done(_ context.Context, scope, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[scope+":"+id]
}

func (d *memDeduper) MarkDone(_ context.Context, scope, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen == nil {
		d.seen = map[string]bool{}
	}
	d.seen[scope+":"+id] = true
}

var errSMTP = errors.New("535 authentication failed")
