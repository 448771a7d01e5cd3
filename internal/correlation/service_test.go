package correlation

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/wintech-vn/drilltrack/internal/model"
)

type fakeTransport struct {
	mu           sync.Mutex
	connected    bool
	connectErr   error
	subscribeErr error
	topic        string
	handler      MessageHandler
	disconnects  int
}

func (f *fakeTransport) Connect() error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Subscribe(topic string, handler MessageHandler) error {
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.mu.Lock()
	f.topic = topic
	f.handler = handler
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	f.connected = false
	f.disconnects++
	f.mu.Unlock()
}

func (f *fakeTransport) deliver(topic string, payload []byte) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h(topic, payload)
}

type fakeSubmitter struct {
	mu    sync.Mutex
	err   error
	posts []submittedUpdate
}

type submittedUpdate struct {
	projectID string
	holeID    string
	speed     float64
	depth     float64
	sensorID  string
}

func (f *fakeSubmitter) PostDrillingSpeed(projectID, holeID string, speed, depth float64, capturedAt time.Time, sensorID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.posts = append(f.posts, submittedUpdate{projectID, holeID, speed, depth, sensorID})
	return nil
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posts)
}

type staticHoles struct {
	holes []model.Hole
}

func (s staticHoles) Holes() []model.Hole { return s.holes }

type memoryRecorder struct {
	fixes       []model.PositionFix
	submissions []string
}

func (m *memoryRecorder) RecordFix(fix model.PositionFix, raw []byte) {
	m.fixes = append(m.fixes, fix)
}

func (m *memoryRecorder) RecordSubmission(holeID string, speed, depth, distance float64, at time.Time) {
	m.submissions = append(m.submissions, holeID)
}

func surveyedHole(id string, lat, lon float64) model.Hole {
	return model.Hole{ExternalID: id, Latitude: &lat, Longitude: &lon}
}

func newTestService(t *testing.T, transport Transport, holes HoleSource, submitter Submitter, recorder Recorder, cfg Config) *Service {
	t.Helper()
	s, err := New(transport, holes, submitter, recorder, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestService_SubmitsForNearestHole(t *testing.T) {
	transport := &fakeTransport{}
	submitter := &fakeSubmitter{}
	holes := staticHoles{holes: []model.Hole{
		surveyedHole("far", 10, 10),
		surveyedHole("near", 0, 0),
	}}
	s := newTestService(t, transport, holes, submitter, nil, Config{
		Topic: "device/+/upload", ProjectID: "p1", SensorID: "GNSS_RIG",
		MaxDistanceMeters: 10,
	})
	s.SetDrillingData(1.5, 12.0)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	transport.deliver("device/rig1/upload", []byte(`{"lat": 0.00001, "lon": 0.00001}`))

	if submitter.count() != 1 {
		t.Fatalf("expected one submission, got %d", submitter.count())
	}
	post := submitter.posts[0]
	if post.holeID != "near" {
		t.Errorf("expected nearest hole, got %s", post.holeID)
	}
	if post.projectID != "p1" || post.sensorID != "GNSS_RIG" {
		t.Errorf("unexpected submission target: %+v", post)
	}
	if post.speed != 1.5 || post.depth != 12.0 {
		t.Errorf("expected current drilling sample (1.5, 12.0), got (%f, %f)", post.speed, post.depth)
	}

	stats := s.Stats()
	if stats.MessagesReceived != 1 || stats.FixesProcessed != 1 || stats.HolesUpdated != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.LastFix == nil || stats.LastFix.Latitude != 0.00001 {
		t.Errorf("expected last fix recorded, got %+v", stats.LastFix)
	}
}

func TestService_RejectsFixOutsideThreshold(t *testing.T) {
	transport := &fakeTransport{}
	submitter := &fakeSubmitter{}
	holes := staticHoles{holes: []model.Hole{surveyedHole("h1", 0, 0)}}
	s := newTestService(t, transport, holes, submitter, nil, Config{
		Topic: "t", ProjectID: "p1", MaxDistanceMeters: 5,
	})

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	// 0.00045 degrees of latitude is ~50m, well past the 5m gate.
	transport.deliver("t", []byte(`{"lat": 0.00045, "lon": 0}`))

	if submitter.count() != 0 {
		t.Errorf("expected no submission beyond the threshold, got %d", submitter.count())
	}
	stats := s.Stats()
	if stats.FixesProcessed != 1 || stats.HolesUpdated != 0 {
		t.Errorf("expected processed fix without update, got %+v", stats)
	}
}

func TestService_MonitorModeWithoutSubmitter(t *testing.T) {
	transport := &fakeTransport{}
	holes := staticHoles{holes: []model.Hole{surveyedHole("h1", 0, 0)}}
	s := newTestService(t, transport, holes, nil, nil, Config{Topic: "t"})

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	transport.deliver("t", []byte(`{"lat": 0, "lon": 0}`))

	stats := s.Stats()
	if stats.FixesProcessed != 1 {
		t.Errorf("expected fix counted in monitor mode, got %+v", stats)
	}
	if stats.HolesUpdated != 0 {
		t.Errorf("expected no updates in monitor mode, got %+v", stats)
	}
}

func TestService_BadPayloadDoesNotPanic(t *testing.T) {
	transport := &fakeTransport{}
	submitter := &fakeSubmitter{}
	holes := staticHoles{holes: []model.Hole{surveyedHole("h1", 0, 0)}}
	s := newTestService(t, transport, holes, submitter, nil, Config{Topic: "t", ProjectID: "p1"})

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	payloads := [][]byte{
		[]byte("not json"),
		[]byte(`{"temperature": 25}`),
		[]byte(`[]`),
		nil,
	}
	for _, p := range payloads {
		transport.deliver("t", p)
	}

	stats := s.Stats()
	if stats.MessagesReceived != 4 {
		t.Errorf("expected 4 messages counted, got %d", stats.MessagesReceived)
	}
	if stats.FixesProcessed != 0 {
		t.Errorf("expected no fixes from bad payloads, got %d", stats.FixesProcessed)
	}
}

func TestService_EmptyHoleListSkipsMatching(t *testing.T) {
	transport := &fakeTransport{}
	submitter := &fakeSubmitter{}
	s := newTestService(t, transport, staticHoles{}, submitter, nil, Config{Topic: "t", ProjectID: "p1"})

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	transport.deliver("t", []byte(`{"lat": 0, "lon": 0}`))

	if submitter.count() != 0 {
		t.Errorf("expected no submission without holes, got %d", submitter.count())
	}
}

func TestService_SubmitFailureCountsNothing(t *testing.T) {
	transport := &fakeTransport{}
	submitter := &fakeSubmitter{err: errors.New("api down")}
	holes := staticHoles{holes: []model.Hole{surveyedHole("h1", 0, 0)}}
	s := newTestService(t, transport, holes, submitter, nil, Config{
		Topic: "t", ProjectID: "p1", MaxDistanceMeters: 10,
	})
	s.SetDrillingData(1.0, 1.0)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	transport.deliver("t", []byte(`{"lat": 0, "lon": 0}`))

	stats := s.Stats()
	if stats.HolesUpdated != 0 {
		t.Errorf("expected no update counted on submit failure, got %+v", stats)
	}
}

func TestService_NoSubmissionBeforeDrillingDataSet(t *testing.T) {
	transport := &fakeTransport{}
	submitter := &fakeSubmitter{}
	holes := staticHoles{holes: []model.Hole{surveyedHole("h1", 0, 0)}}
	s := newTestService(t, transport, holes, submitter, nil, Config{
		Topic: "t", ProjectID: "p1", MaxDistanceMeters: 10,
	})

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	transport.deliver("t", []byte(`{"lat": 0, "lon": 0}`))

	if submitter.count() != 0 {
		t.Fatalf("expected no submission before a drilling sample is set, got %d", submitter.count())
	}
	stats := s.Stats()
	if stats.FixesProcessed != 1 || stats.HolesUpdated != 0 {
		t.Errorf("expected the fix counted but no update, got %+v", stats)
	}

	s.SetDrillingData(1.5, 12.0)
	transport.deliver("t", []byte(`{"lat": 0, "lon": 0}`))

	if submitter.count() != 1 {
		t.Fatalf("expected a submission once a sample is set, got %d", submitter.count())
	}
	post := submitter.posts[0]
	if post.speed != 1.5 || post.depth != 12.0 {
		t.Errorf("expected the set sample (1.5, 12.0), got (%f, %f)", post.speed, post.depth)
	}
}

func TestService_RecorderSeesFixesAndSubmissions(t *testing.T) {
	transport := &fakeTransport{}
	submitter := &fakeSubmitter{}
	recorder := &memoryRecorder{}
	holes := staticHoles{holes: []model.Hole{surveyedHole("h1", 0, 0)}}
	s := newTestService(t, transport, holes, submitter, recorder, Config{
		Topic: "t", ProjectID: "p1", MaxDistanceMeters: 10,
	})
	s.SetDrillingData(2.0, 8.0)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	transport.deliver("t", []byte(`{"lat": 0, "lon": 0}`))
	transport.deliver("t", []byte(`{"lat": 5, "lon": 5}`))

	if len(recorder.fixes) != 2 {
		t.Errorf("expected 2 recorded fixes, got %d", len(recorder.fixes))
	}
	if len(recorder.submissions) != 1 || recorder.submissions[0] != "h1" {
		t.Errorf("expected one recorded submission for h1, got %v", recorder.submissions)
	}
}

func TestService_StartErrorsSurface(t *testing.T) {
	s := newTestService(t, &fakeTransport{connectErr: errors.New("broker down")},
		staticHoles{}, nil, nil, Config{Topic: "t"})
	if err := s.Start(); err == nil {
		t.Error("expected connect error to surface")
	}

	transport := &fakeTransport{subscribeErr: errors.New("denied")}
	s = newTestService(t, transport, staticHoles{}, nil, nil, Config{Topic: "t"})
	if err := s.Start(); err == nil {
		t.Error("expected subscribe error to surface")
	}
	if transport.disconnects != 1 {
		t.Errorf("expected disconnect after failed subscribe, got %d", transport.disconnects)
	}
}

func TestService_StartStopIdempotent(t *testing.T) {
	transport := &fakeTransport{}
	s := newTestService(t, transport, staticHoles{}, nil, nil, Config{Topic: "t"})

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	s.Stop()
	s.Stop()

	if transport.disconnects != 1 {
		t.Errorf("expected a single disconnect, got %d", transport.disconnects)
	}
}
