package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/solshade-core/internal/cover"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu            sync.Mutex
	published     []mockPublish
	subscriptions []mockSubscription
	connected     bool
	publishErr    error
	handlers      map[string]func(topic string, payload []byte)
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

type mockSubscription struct {
	Topic string
	QoS   byte
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]func(topic string, payload []byte)),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, mockPublish{
		Topic:    topic,
		Payload:  payload,
		QoS:      qos,
		Retained: retained,
	})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = append(m.subscriptions, mockSubscription{Topic: topic, QoS: qos})
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishErr = err
}

func (m *MockMQTTClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]mockPublish, len(m.published))
	copy(result, m.published)
	return result
}

// PublishedTo returns every publish on one topic, in order.
func (m *MockMQTTClient) PublishedTo(topic string) []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mockPublish
	for _, p := range m.published {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func (m *MockMQTTClient) GetSubscriptions() []mockSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscriptions
}

// SimulateMessage delivers a message to every handler whose subscription
// pattern matches the topic.
func (m *MockMQTTClient) SimulateMessage(topic string, payload []byte) {
	m.mu.Lock()
	var matched []func(topic string, payload []byte)
	for pattern, handler := range m.handlers {
		if topicMatches(pattern, topic) {
			matched = append(matched, handler)
		}
	}
	m.mu.Unlock()
	for _, handler := range matched {
		handler(topic, payload)
	}
}

func topicMatches(pattern, topic string) bool {
	pp := strings.Split(pattern, "/")
	tp := strings.Split(topic, "/")
	for i, seg := range pp {
		if seg == "#" {
			return true
		}
		if i >= len(tp) {
			return false
		}
		if seg == "+" {
			continue
		}
		if seg != tp[i] {
			return false
		}
	}
	return len(pp) == len(tp)
}

// fakeClock is a mutable test clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

// staticGroups implements GroupSource over a fixed slice.
type staticGroups struct {
	mu     sync.Mutex
	groups []cover.Group
}

func (s *staticGroups) ListEnabled(_ context.Context) ([]cover.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]cover.Group, len(s.groups))
	copy(out, s.groups)
	return out, nil
}

// recordedCycles implements CycleRecorder, capturing results.
type recordedCycles struct {
	mu      sync.Mutex
	results []Result
}

func (r *recordedCycles) RecordCycle(_ context.Context, result Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	return nil
}

func (r *recordedCycles) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

// testSite is London-ish: mid northern latitude where June days are long
// and the noon sun stands due south.
func testSite() Site {
	return Site{Latitude: 51.48, Longitude: -0.17, Timezone: time.UTC}
}

// summerNoon is an instant with the sun high in the southern sky.
var summerNoon = time.Date(2026, 6, 21, 12, 0, 0, 0, time.UTC)

// northGroup faces away from the noon sun, so its geometric target is the
// configured default height, exactly.
func northGroup() cover.Group {
	return cover.Group{
		ID:      "office-north",
		Name:    "Office North",
		Type:    cover.TypeVertical,
		Enabled: true,
		Devices: []string{"blind-office"},
		Geometry: cover.Geometry{
			Azimuth:        0,
			FOVLeft:        90,
			FOVRight:       90,
			DefaultHeight:  60,
			MaxPosition:    100,
			SunsetPosition: 0,
			Distance:       0.5,
			WindowHeight:   2.0,
		},
		Behaviour: cover.Behaviour{
			MinChange:    1,
			MinTimeDelta: 2 * time.Minute,
			StartMinutes: -1,
			EndMinutes:   -1,
			ManualReset:  15 * time.Minute,
		},
	}
}

func newTestController(t *testing.T, clock *fakeClock, mock *MockMQTTClient, groups ...cover.Group) *Controller {
	t.Helper()
	c, err := NewController(Options{
		Site:       testSite(),
		InstanceID: "solshade-test",
		Groups:     &staticGroups{groups: groups},
		MQTTClient: mock,
	})
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}
	c.now = clock.Now
	return c
}

func stateReport(t *testing.T, c *Controller, device string, body string) {
	t.Helper()
	c.handleCoverState("solshade/state/cover/"+device, []byte(body))
}

func decodeCommand(t *testing.T, p mockPublish) CommandMessage {
	t.Helper()
	var msg CommandMessage
	if err := json.Unmarshal(p.Payload, &msg); err != nil {
		t.Fatalf("failed to unmarshal command: %v", err)
	}
	return msg
}

func decodeResult(t *testing.T, p mockPublish) Result {
	t.Helper()
	var result Result
	if err := json.Unmarshal(p.Payload, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	return result
}

func TestNewControllerValidation(t *testing.T) {
	mock := NewMockMQTTClient()
	groups := &staticGroups{}

	tests := []struct {
		name string
		opts Options
		want error
	}{
		{
			name: "missing timezone",
			opts: Options{Site: Site{Latitude: 51, Longitude: 1}, Groups: groups, MQTTClient: mock},
			want: ErrMissingLocation,
		},
		{
			name: "all-zero site",
			opts: Options{Site: Site{Timezone: time.UTC}, Groups: groups, MQTTClient: mock},
			want: ErrMissingLocation,
		},
		{
			name: "latitude out of range",
			opts: Options{Site: Site{Latitude: 91, Longitude: 1, Timezone: time.UTC}, Groups: groups, MQTTClient: mock},
			want: ErrMissingLocation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewController(tt.opts)
			if !errors.Is(err, tt.want) {
				t.Errorf("NewController error = %v, want %v", err, tt.want)
			}
		})
	}

	t.Run("missing group source", func(t *testing.T) {
		_, err := NewController(Options{Site: testSite(), MQTTClient: mock})
		if err == nil || !strings.Contains(err.Error(), "group source") {
			t.Errorf("error = %v, want group source requirement", err)
		}
	})

	t.Run("missing MQTT client", func(t *testing.T) {
		_, err := NewController(Options{Site: testSite(), Groups: groups})
		if err == nil || !strings.Contains(err.Error(), "MQTT client") {
			t.Errorf("error = %v, want MQTT client requirement", err)
		}
	})
}

func TestControllerCycleOutOfView(t *testing.T) {
	clock := &fakeClock{t: summerNoon}
	mock := NewMockMQTTClient()
	c := newTestController(t, clock, mock, northGroup())

	c.runCycle(context.Background())

	commands := mock.PublishedTo("solshade/command/cover/blind-office")
	if len(commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(commands))
	}
	if commands[0].Retained {
		t.Error("commands must not be retained")
	}
	cmd := decodeCommand(t, commands[0])
	if cmd.Position == nil || *cmd.Position != 60 {
		t.Errorf("Position = %v, want default height 60", cmd.Position)
	}
	if cmd.Tilt != nil {
		t.Errorf("Tilt = %v, want nil for vertical cover", *cmd.Tilt)
	}
	if cmd.CommandID == "" {
		t.Error("CommandID should be set")
	}
	if cmd.Source != "solshade-test" {
		t.Errorf("Source = %q, want solshade-test", cmd.Source)
	}

	results := mock.PublishedTo("solshade/result/office-north")
	if len(results) != 1 {
		t.Fatalf("expected 1 result publish, got %d", len(results))
	}
	if !results[0].Retained {
		t.Error("results must be retained")
	}
	result := decodeResult(t, results[0])
	if result.State != 60 {
		t.Errorf("State = %d, want 60", result.State)
	}
	if result.SunValid {
		t.Error("SunValid should be false with the sun behind the facade")
	}
	if result.ControlMethod != "intermediate" {
		t.Errorf("ControlMethod = %q, want intermediate", result.ControlMethod)
	}
	if result.Sunrise == nil || result.Sunset == nil {
		t.Error("Sunrise and Sunset should be set on a normal day")
	}
	if result.AnyManualOverride {
		t.Error("no manual override expected")
	}

	if stored, ok := c.Result("office-north"); !ok || stored.State != 60 {
		t.Errorf("Result accessor = %+v, %v; want stored state 60", stored, ok)
	}
}

func TestControllerNightFallback(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 6, 21, 23, 30, 0, 0, time.UTC)}
	mock := NewMockMQTTClient()
	c := newTestController(t, clock, mock, northGroup())

	c.runCycle(context.Background())

	commands := mock.PublishedTo("solshade/command/cover/blind-office")
	if len(commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(commands))
	}
	cmd := decodeCommand(t, commands[0])
	if cmd.Position == nil || *cmd.Position != 0 {
		t.Errorf("Position = %v, want sunset position 0", cmd.Position)
	}

	result := decodeResult(t, mock.PublishedTo("solshade/result/office-north")[0])
	if result.State != 0 || result.SunValid {
		t.Errorf("result = state %d sun_valid %v, want 0 and false after dark", result.State, result.SunValid)
	}
}

func TestControllerMinTimeDelta(t *testing.T) {
	clock := &fakeClock{t: summerNoon}
	mock := NewMockMQTTClient()
	c := newTestController(t, clock, mock, northGroup())
	ctx := context.Background()
	commandTopic := "solshade/command/cover/blind-office"

	c.runCycle(ctx)
	if got := len(mock.PublishedTo(commandTopic)); got != 1 {
		t.Fatalf("initial commands = %d, want 1", got)
	}

	// The device crawls towards the target; while the command is awaited
	// this is settling, not a manual deviation.
	stateReport(t, c, "blind-office", `{"position": 58}`)
	clock.Advance(time.Minute)
	c.runCycle(ctx)
	if got := len(mock.PublishedTo(commandTopic)); got != 1 {
		t.Errorf("commands after 1m = %d, want still 1 (inside min_time_delta)", got)
	}
	if c.tracker.IsManual("blind-office") {
		t.Error("settling report must not engage manual control")
	}

	clock.Advance(2 * time.Minute)
	c.runCycle(ctx)
	if got := len(mock.PublishedTo(commandTopic)); got != 2 {
		t.Errorf("commands after 3m = %d, want 2 (spacing elapsed)", got)
	}
}

func TestControllerMinChange(t *testing.T) {
	clock := &fakeClock{t: summerNoon}
	mock := NewMockMQTTClient()
	c := newTestController(t, clock, mock, northGroup())
	ctx := context.Background()
	commandTopic := "solshade/command/cover/blind-office"

	c.runCycle(ctx)
	stateReport(t, c, "blind-office", `{"position": 60}`)
	clock.Advance(5 * time.Minute)
	c.runCycle(ctx)

	if got := len(mock.PublishedTo(commandTopic)); got != 1 {
		t.Errorf("commands = %d, want 1 (device already at target)", got)
	}

	// Half a percent off rounds back to the commanded value: neither a
	// deviation nor worth a command.
	stateReport(t, c, "blind-office", `{"position": 59.5}`)
	clock.Advance(5 * time.Minute)
	c.runCycle(ctx)

	if got := len(mock.PublishedTo(commandTopic)); got != 1 {
		t.Errorf("commands = %d, want 1 (delta below min_change)", got)
	}
	if c.tracker.IsManual("blind-office") {
		t.Error("sub-threshold drift must not engage manual control")
	}
}

func TestControllerManualOverride(t *testing.T) {
	clock := &fakeClock{t: summerNoon}
	mock := NewMockMQTTClient()
	c := newTestController(t, clock, mock, northGroup())
	ctx := context.Background()
	commandTopic := "solshade/command/cover/blind-office"

	// Command, then confirm
	c.runCycle(ctx)
	stateReport(t, c, "blind-office", `{"position": 60}`)
	c.runCycle(ctx)
	if got := len(mock.PublishedTo(commandTopic)); got != 1 {
		t.Fatalf("commands = %d, want 1 after confirmation", got)
	}

	// Someone moves the blind by hand
	clock.Advance(5 * time.Minute)
	engagedAt := clock.Now()
	stateReport(t, c, "blind-office", `{"position": 25}`)
	c.runCycle(ctx)

	if !c.tracker.IsManual("blind-office") {
		t.Fatal("hand movement should engage manual control")
	}
	if got := len(mock.PublishedTo(commandTopic)); got != 1 {
		t.Errorf("commands = %d, want 1 (dispatch suppressed in the same cycle)", got)
	}
	overrides := c.ManualOverrides()
	if since, ok := overrides["blind-office"]; !ok || !since.Equal(engagedAt) {
		t.Errorf("override since = %v, %v; want %v", since, ok, engagedAt)
	}

	results := mock.PublishedTo("solshade/result/office-north")
	last := decodeResult(t, results[len(results)-1])
	if !last.AnyManualOverride {
		t.Error("result should flag the manual override")
	}
	if len(last.ManualDevices) != 1 || last.ManualDevices[0] != "blind-office" {
		t.Errorf("ManualDevices = %v, want [blind-office]", last.ManualDevices)
	}

	// One second before the reset window elapses: still manual
	clock.Advance(15*time.Minute - time.Second)
	c.runCycle(ctx)
	if !c.tracker.IsManual("blind-office") {
		t.Error("override should hold until the reset window elapses")
	}
	if got := len(mock.PublishedTo(commandTopic)); got != 1 {
		t.Errorf("commands = %d, want 1 while manual", got)
	}

	// At the boundary: released, automatic control resumes
	clock.Advance(time.Second)
	c.runCycle(ctx)
	if c.tracker.IsManual("blind-office") {
		t.Error("override should be released after the reset window")
	}
	if got := len(mock.PublishedTo(commandTopic)); got != 2 {
		t.Errorf("commands = %d, want 2 (dispatch resumed)", got)
	}
}

func TestControllerResetManual(t *testing.T) {
	clock := &fakeClock{t: summerNoon}
	mock := NewMockMQTTClient()
	c := newTestController(t, clock, mock, northGroup())
	ctx := context.Background()

	c.runCycle(ctx)
	stateReport(t, c, "blind-office", `{"position": 60}`)
	c.runCycle(ctx)
	clock.Advance(5 * time.Minute)
	stateReport(t, c, "blind-office", `{"position": 25}`)
	c.runCycle(ctx)

	if err := c.ResetManual("blind-office"); err != nil {
		t.Fatalf("ResetManual failed: %v", err)
	}
	if c.tracker.IsManual("blind-office") {
		t.Error("device should be back under automatic control")
	}
	if err := c.ResetManual("blind-office"); !errors.Is(err, ErrNotManual) {
		t.Errorf("second reset error = %v, want ErrNotManual", err)
	}
	if err := c.ResetManual("ghost"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("unknown device error = %v, want ErrUnknownDevice", err)
	}
}

func doubleRollerGroup(toggle bool) cover.Group {
	g := northGroup()
	g.ID = "lounge-double"
	g.Name = "Lounge Double"
	g.Type = cover.TypeDoubleRoller
	g.Devices = []string{"double-lounge"}
	g.Geometry.DoubleToggle = toggle
	return g
}

func TestControllerDoubleRollerToggleOff(t *testing.T) {
	clock := &fakeClock{t: summerNoon}
	mock := NewMockMQTTClient()
	c := newTestController(t, clock, mock, doubleRollerGroup(false))
	ctx := context.Background()
	commandTopic := "solshade/command/cover/double-lounge"

	c.runCycle(ctx)

	commands := mock.PublishedTo(commandTopic)
	if len(commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(commands))
	}
	cmd := decodeCommand(t, commands[0])
	if cmd.Position != nil {
		t.Errorf("Position = %v, want nil with the primary toggle off", *cmd.Position)
	}
	if cmd.Tilt == nil || *cmd.Tilt != 40 {
		t.Errorf("Tilt = %v, want secondary value 40", cmd.Tilt)
	}

	// Confirm, then move the primary roller by hand: with the toggle off
	// the position channel is not evaluated, so no override engages.
	stateReport(t, c, "double-lounge", `{"tilt": 40}`)
	c.runCycle(ctx)
	clock.Advance(5 * time.Minute)
	stateReport(t, c, "double-lounge", `{"position": 87, "tilt": 40}`)
	c.runCycle(ctx)
	if c.tracker.IsManual("double-lounge") {
		t.Error("primary channel must be ignored with the toggle off")
	}

	// A hand move on the secondary does engage
	clock.Advance(5 * time.Minute)
	stateReport(t, c, "double-lounge", `{"tilt": 10}`)
	c.runCycle(ctx)
	if !c.tracker.IsManual("double-lounge") {
		t.Error("secondary channel deviation should engage manual control")
	}
}

func TestControllerDoubleRollerToggleOn(t *testing.T) {
	clock := &fakeClock{t: summerNoon}
	mock := NewMockMQTTClient()
	c := newTestController(t, clock, mock, doubleRollerGroup(true))

	c.runCycle(context.Background())

	commands := mock.PublishedTo("solshade/command/cover/double-lounge")
	if len(commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(commands))
	}
	cmd := decodeCommand(t, commands[0])
	if cmd.Position == nil || *cmd.Position != 60 {
		t.Errorf("Position = %v, want primary value 60", cmd.Position)
	}
	if cmd.Tilt == nil || *cmd.Tilt != 40 {
		t.Errorf("Tilt = %v, want secondary value 40", cmd.Tilt)
	}
}

func TestControllerClimateOverride(t *testing.T) {
	group := northGroup()
	group.ID = "lounge-south"
	group.Devices = []string{"blind-lounge"}
	group.Geometry.Azimuth = 180
	group.Climate = cover.Climate{
		Enabled:          true,
		InsideTempSensor: "temp-lounge",
		PresenceSensor:   "presence-house",
		TempLow:          18,
		TempHigh:         24,
	}

	clock := &fakeClock{t: summerNoon}
	mock := NewMockMQTTClient()
	c := newTestController(t, clock, mock, group)
	ctx := context.Background()
	commandTopic := "solshade/command/cover/blind-lounge"
	resultTopic := "solshade/result/lounge-south"

	// Unoccupied and hot: close fully for solar gain rejection
	c.handleSensorState("solshade/state/sensor/temp-lounge", []byte(`{"value": 26.5}`))
	c.handleSensorState("solshade/state/sensor/presence-house", []byte(`{"value": "away"}`))
	c.runCycle(ctx)

	result := decodeResult(t, mock.PublishedTo(resultTopic)[0])
	if result.ControlMethod != "summer" {
		t.Errorf("ControlMethod = %q, want summer", result.ControlMethod)
	}
	if result.State != 0 {
		t.Errorf("State = %d, want 0 (closed against heat)", result.State)
	}
	cmd := decodeCommand(t, mock.PublishedTo(commandTopic)[0])
	if cmd.Position == nil || *cmd.Position != 0 {
		t.Errorf("command Position = %v, want 0", cmd.Position)
	}

	// Unoccupied and cold: open fully for solar gain
	c.handleSensorState("solshade/state/sensor/temp-lounge", []byte(`{"value": 15}`))
	clock.Advance(5 * time.Minute)
	c.runCycle(ctx)

	results := mock.PublishedTo(resultTopic)
	winter := decodeResult(t, results[len(results)-1])
	if winter.ControlMethod != "winter" {
		t.Errorf("ControlMethod = %q, want winter", winter.ControlMethod)
	}
	if winter.State != 100 {
		t.Errorf("State = %d, want 100 (open for warmth)", winter.State)
	}

	// Occupied and mild: back to pure geometry
	c.handleSensorState("solshade/state/sensor/temp-lounge", []byte(`{"value": 21}`))
	c.handleSensorState("solshade/state/sensor/presence-house", []byte(`{"value": "home"}`))
	clock.Advance(5 * time.Minute)
	c.runCycle(ctx)

	results = mock.PublishedTo(resultTopic)
	mild := decodeResult(t, results[len(results)-1])
	if mild.ControlMethod != "intermediate" {
		t.Errorf("ControlMethod = %q, want intermediate", mild.ControlMethod)
	}
}

func TestControllerDispatchWindow(t *testing.T) {
	group := northGroup()
	group.Behaviour.StartMinutes = 800 // 13:20
	group.Behaviour.EndMinutes = 810   // 13:30

	tests := []struct {
		name     string
		at       time.Time
		dispatch bool
	}{
		{"before window", time.Date(2026, 6, 21, 12, 0, 0, 0, time.UTC), false},
		{"inside window", time.Date(2026, 6, 21, 13, 25, 0, 0, time.UTC), true},
		{"after window", time.Date(2026, 6, 21, 13, 45, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{t: tt.at}
			mock := NewMockMQTTClient()
			c := newTestController(t, clock, mock, group)

			c.runCycle(context.Background())

			commands := mock.PublishedTo("solshade/command/cover/blind-office")
			if tt.dispatch && len(commands) != 1 {
				t.Errorf("commands = %d, want 1", len(commands))
			}
			if !tt.dispatch && len(commands) != 0 {
				t.Errorf("commands = %d, want 0 outside the window", len(commands))
			}
			// Results publish regardless of the dispatch window
			if got := len(mock.PublishedTo("solshade/result/office-north")); got != 1 {
				t.Errorf("results = %d, want 1", got)
			}
		})
	}
}

func TestControllerDispatchFailure(t *testing.T) {
	clock := &fakeClock{t: summerNoon}
	mock := NewMockMQTTClient()
	c := newTestController(t, clock, mock, northGroup())
	ctx := context.Background()
	commandTopic := "solshade/command/cover/blind-office"

	mock.SetPublishError(fmt.Errorf("broker gone"))
	c.runCycle(ctx)

	if got := len(mock.PublishedTo(commandTopic)); got != 0 {
		t.Fatalf("commands = %d, want 0 while the broker is down", got)
	}
	group := northGroup()
	attrs := c.GroupAttributes(&group)
	if attrs.WaitingForTarget["blind-office"] {
		t.Error("failed dispatch must not leave the command awaiting")
	}
	if metrics := c.GetMetrics(); metrics.CommandFailures != 1 {
		t.Errorf("CommandFailures = %d, want 1", metrics.CommandFailures)
	}

	// Broker back: the next cycle's gates retry naturally
	mock.SetPublishError(nil)
	clock.Advance(3 * time.Minute)
	c.runCycle(ctx)

	if got := len(mock.PublishedTo(commandTopic)); got != 1 {
		t.Errorf("commands = %d, want 1 after recovery", got)
	}
	if metrics := c.GetMetrics(); metrics.CommandsSent != 2 || metrics.CommandFailures != 1 {
		t.Errorf("metrics = %d sent / %d failed, want 2 / 1",
			metrics.CommandsSent, metrics.CommandFailures)
	}
}

func TestControllerUnknownDeviceEvent(t *testing.T) {
	clock := &fakeClock{t: summerNoon}
	mock := NewMockMQTTClient()
	c := newTestController(t, clock, mock, northGroup())

	stateReport(t, c, "ghost", `{"position": 10}`)
	c.runCycle(context.Background())

	if c.tracker.IsManual("ghost") {
		t.Error("unmanaged device must not enter manual control")
	}
	if got := len(mock.PublishedTo("solshade/command/cover/ghost")); got != 0 {
		t.Errorf("commands to unmanaged device = %d, want 0", got)
	}
	if _, ok := c.states.Get("ghost"); ok {
		t.Error("unmanaged device state should be pruned")
	}
}

func TestControllerAttributes(t *testing.T) {
	clock := &fakeClock{t: summerNoon}
	mock := NewMockMQTTClient()
	group := northGroup()
	c := newTestController(t, clock, mock, group)

	c.runCycle(context.Background())

	attrs := c.GroupAttributes(&group)
	if attrs.GroupID != "office-north" {
		t.Errorf("GroupID = %q, want office-north", attrs.GroupID)
	}
	if attrs.DefaultHeight != 60 || attrs.SunsetPosition != 0 {
		t.Errorf("defaults = %v/%v, want 60/0", attrs.DefaultHeight, attrs.SunsetPosition)
	}
	if !attrs.WaitingForTarget["blind-office"] {
		t.Error("command should be awaiting confirmation")
	}
	target, ok := attrs.TargetCall["blind-office"]
	if !ok || target.Position == nil || *target.Position != 60 {
		t.Errorf("TargetCall = %+v, want position 60", target)
	}
	last, ok := attrs.LastCommanded["blind-office"]
	if !ok || last.Position == nil || *last.Position != 60 {
		t.Errorf("LastCommanded = %+v, want position 60", last)
	}
	if attrs.ManualControl["blind-office"] {
		t.Error("no manual override expected")
	}

	// Confirmation clears the awaiting flag
	stateReport(t, c, "blind-office", `{"position": 60}`)
	c.runCycle(context.Background())
	attrs = c.GroupAttributes(&group)
	if attrs.WaitingForTarget["blind-office"] {
		t.Error("awaiting flag should clear once the device reports the target")
	}
}

func TestControllerRecorders(t *testing.T) {
	clock := &fakeClock{t: summerNoon}
	mock := NewMockMQTTClient()
	history := &recordedCycles{}
	telemetry := &recordedCycles{}

	c, err := NewController(Options{
		Site:       testSite(),
		Groups:     &staticGroups{groups: []cover.Group{northGroup()}},
		MQTTClient: mock,
		History:    history,
		Telemetry:  telemetry,
	})
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}
	c.now = clock.Now

	c.runCycle(context.Background())
	c.runCycle(context.Background())

	if history.count() != 2 {
		t.Errorf("history records = %d, want 2", history.count())
	}
	if telemetry.count() != 2 {
		t.Errorf("telemetry records = %d, want 2", telemetry.count())
	}
}

func TestControllerStartStop(t *testing.T) {
	clock := &fakeClock{t: summerNoon}
	mock := NewMockMQTTClient()
	c := newTestController(t, clock, mock, northGroup())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	subs := mock.GetSubscriptions()
	topics := make(map[string]byte)
	for _, s := range subs {
		topics[s.Topic] = s.QoS
	}
	if qos, ok := topics["solshade/state/cover/+"]; !ok || qos != 1 {
		t.Errorf("cover state subscription = %v, %v; want QoS 1", qos, ok)
	}
	if qos, ok := topics["solshade/state/sensor/+"]; !ok || qos != 1 {
		t.Errorf("sensor state subscription = %v, %v; want QoS 1", qos, ok)
	}

	// The initial cycle runs on the loop goroutine; wait for its result
	deadline := time.Now().Add(2 * time.Second)
	for len(mock.PublishedTo("solshade/result/office-north")) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("initial cycle did not publish a result")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Messages delivered through the subscription reach the handlers
	mock.SimulateMessage("solshade/state/cover/blind-office", []byte(`{"position": 60}`))
	if _, ok := c.states.Get("blind-office"); !ok {
		t.Error("simulated state message should land in the state store")
	}

	c.Stop()
	c.Stop() // Safe to call twice

	var sawOnline, sawOffline bool
	for _, p := range mock.PublishedTo("solshade/system/status") {
		var msg StatusMessage
		if err := json.Unmarshal(p.Payload, &msg); err != nil {
			t.Fatalf("failed to unmarshal status: %v", err)
		}
		if !p.Retained {
			t.Error("status messages must be retained")
		}
		switch msg.Status {
		case "online":
			sawOnline = true
		case "offline":
			sawOffline = true
		}
	}
	if !sawOnline || !sawOffline {
		t.Errorf("status topic saw online=%v offline=%v, want both", sawOnline, sawOffline)
	}
}
