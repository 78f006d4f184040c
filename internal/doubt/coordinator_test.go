package doubt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/facebookgo/clock"

	"github.com/rcliao/tutor-engine/internal/bus"
	"github.com/rcliao/tutor-engine/internal/model"
)

type resolverCall struct {
	question      string
	lessonContext string
	statusAtCall  model.DoubtStatus
}

type fakeResolver struct {
	mu      sync.Mutex
	coord   *Coordinator
	calls   []resolverCall
	answers map[string]*model.Resolution
	errs    map[string]error
}

func (f *fakeResolver) Resolve(ctx context.Context, question, lessonContext string) (*model.Resolution, error) {
	call := resolverCall{question: question, lessonContext: lessonContext}
	if f.coord != nil {
		for _, d := range f.coord.Doubts() {
			if d.Question == question {
				call.statusAtCall = d.Status
			}
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if err := f.errs[question]; err != nil {
		return nil, err
	}
	if res := f.answers[question]; res != nil {
		return res, nil
	}
	return &model.Resolution{Explanation: "because " + question}, nil
}

func (f *fakeResolver) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type harness struct {
	c       *Coordinator
	clk     *clock.Mock
	res     *fakeResolver
	sub     *bus.Subscription
	mu      sync.Mutex
	quizzes []string
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		clk: clock.NewMock(),
		res: &fakeResolver{answers: map[string]*model.Resolution{}, errs: map[string]error{}},
	}
	b := bus.New(nil, h.clk, 256)
	h.sub = b.Subscribe()
	c, err := New(Params{
		SessionID: "sess",
		Resolver:  h.res,
		Bus:       b,
		Clock:     h.clk,
		Options:   opts,
		OnQuiz: func(id string, q model.QuizQuestion) {
			h.mu.Lock()
			h.quizzes = append(h.quizzes, id)
			h.mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	h.res.coord = c
	h.c = c
	t.Cleanup(func() {
		c.Close()
		b.Close()
	})
	return h
}

func (h *harness) status(t *testing.T, id string) model.DoubtStatus {
	t.Helper()
	d, ok := h.c.Get(id)
	if !ok {
		t.Fatalf("doubt %s not found", id)
	}
	return d.Status
}

func (h *harness) surfaced() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.quizzes...)
}

func (h *harness) events() []bus.Event {
	var out []bus.Event
	for {
		select {
		case ev := <-h.sub.C:
			out = append(out, ev)
		default:
			return out
		}
	}
}

var defaultOpts = Options{DebounceDelay: 2 * time.Second, QuizSurfaceDelay: time.Second}

func TestRaiseReturnsPendingDoubt(t *testing.T) {
	h := newHarness(t, defaultOpts)

	d, err := h.c.Raise("  What is X?  ", model.DoubtContext{StepNumber: 2, StepTitle: "Intro"}, "ctx")
	if err != nil {
		t.Fatalf("raise: %v", err)
	}
	if d.ID == "" || d.Status != model.DoubtPending || d.Question != "What is X?" || d.SessionID != "sess" {
		t.Errorf("unexpected doubt %+v", d)
	}
	if h.c.ActiveID() != d.ID {
		t.Error("expected raised doubt to be active")
	}
	if _, err := h.c.Raise(" ", model.DoubtContext{}, ""); !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("expected ErrEmptyQuestion, got %v", err)
	}
}

func TestAutoResolveScenario(t *testing.T) {
	h := newHarness(t, defaultOpts)
	h.res.answers["What is X?"] = &model.Resolution{
		Explanation:  "X is a variable.",
		Examples:     []string{"x = 2"},
		QuizQuestion: &model.QuizQuestion{Question: "Is X fixed?", Options: []string{"yes", "no"}, CorrectIndex: 1},
	}

	d, _ := h.c.Raise("What is X?", model.DoubtContext{StepNumber: 1}, "lesson text")

	h.clk.Add(1999 * time.Millisecond)
	if h.res.callCount() != 0 {
		t.Fatal("resolution started before debounce elapsed")
	}
	h.clk.Add(time.Millisecond)

	if h.res.callCount() != 1 {
		t.Fatalf("expected one backend call, got %d", h.res.callCount())
	}
	call := h.res.calls[0]
	if call.statusAtCall != model.DoubtResolving {
		t.Errorf("expected resolving during backend call, got %s", call.statusAtCall)
	}
	if call.lessonContext != "lesson text" {
		t.Errorf("expected lesson context forwarded, got %q", call.lessonContext)
	}

	got, _ := h.c.Get(d.ID)
	if got.Status != model.DoubtResolved || got.Resolution == nil || got.Resolution.Explanation != "X is a variable." {
		t.Fatalf("unexpected doubt after resolve: %+v", got)
	}
	if got.Resolution.ResolvedAt.IsZero() {
		t.Error("expected resolvedAt set")
	}

	if _, ok := h.c.VisibleQuiz(); ok {
		t.Fatal("quiz visible before surface delay")
	}
	h.clk.Add(999 * time.Millisecond)
	if _, ok := h.c.VisibleQuiz(); ok {
		t.Fatal("quiz visible before surface delay")
	}
	h.clk.Add(time.Millisecond)
	vq, ok := h.c.VisibleQuiz()
	if !ok || vq.DoubtID != d.ID || vq.Question.Question != "Is X fixed?" {
		t.Fatalf("expected quiz visible, got %+v ok=%v", vq, ok)
	}
	if s := h.surfaced(); len(s) != 1 || s[0] != d.ID {
		t.Errorf("expected OnQuiz for %s, got %v", d.ID, s)
	}

	var statuses []string
	for _, ev := range h.events() {
		if ev.Type == bus.EventDoubtStatus && ev.DoubtID == d.ID {
			statuses = append(statuses, ev.State)
		}
	}
	if len(statuses) != 2 || statuses[0] != "resolving" || statuses[1] != "resolved" {
		t.Errorf("unexpected status events %v", statuses)
	}
}

func TestNewDoubtSupersedesPendingTimer(t *testing.T) {
	h := newHarness(t, defaultOpts)

	a, _ := h.c.Raise("A?", model.DoubtContext{}, "")
	h.clk.Add(time.Second)
	b, _ := h.c.Raise("B?", model.DoubtContext{}, "")
	h.clk.Add(5 * time.Second)

	if s := h.status(t, a.ID); s != model.DoubtPending {
		t.Errorf("expected A to stay pending, got %s", s)
	}
	if s := h.status(t, b.ID); s != model.DoubtResolved {
		t.Errorf("expected B resolved, got %s", s)
	}
	if h.res.callCount() != 1 || h.res.calls[0].question != "B?" {
		t.Errorf("expected only B resolved, calls=%+v", h.res.calls)
	}
}

func TestResolutionFailureRevertsToPending(t *testing.T) {
	h := newHarness(t, defaultOpts)
	h.res.errs["Why?"] = errors.New("backend timeout")

	d, _ := h.c.Raise("Why?", model.DoubtContext{}, "")
	h.clk.Add(2 * time.Second)

	got, _ := h.c.Get(d.ID)
	if got.Status != model.DoubtPending || got.Resolution != nil {
		t.Fatalf("expected pending with no resolution, got %+v", got)
	}
	failed := false
	for _, ev := range h.events() {
		if ev.Type == bus.EventDoubtFailed && ev.DoubtID == d.ID && ev.Error == "backend timeout" {
			failed = true
		}
	}
	if !failed {
		t.Error("expected doubt-failed event")
	}

	h.clk.Add(10 * time.Second)
	if h.res.callCount() != 1 {
		t.Errorf("failure must not auto-retry, got %d calls", h.res.callCount())
	}

	delete(h.res.errs, "Why?")
	if err := h.c.Retry(context.Background(), d.ID); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if s := h.status(t, d.ID); s != model.DoubtResolved {
		t.Errorf("expected resolved after retry, got %s", s)
	}
	if err := h.c.Retry(context.Background(), d.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition retrying a resolved doubt, got %v", err)
	}
}

func TestEmptyResolutionIsAFailure(t *testing.T) {
	h := newHarness(t, defaultOpts)
	h.res.answers["Q?"] = &model.Resolution{Explanation: "  "}

	d, _ := h.c.Raise("Q?", model.DoubtContext{}, "")
	h.clk.Add(2 * time.Second)
	if s := h.status(t, d.ID); s != model.DoubtPending {
		t.Errorf("expected pending after empty resolution, got %s", s)
	}
}

func TestResolveRequiresResolving(t *testing.T) {
	h := newHarness(t, defaultOpts)
	d, _ := h.c.Raise("Q?", model.DoubtContext{}, "")

	if err := h.c.Resolve(d.ID, model.Resolution{Explanation: "x"}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition for pending->resolved, got %v", err)
	}
	if err := h.c.Resolve("missing", model.Resolution{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	h.clk.Add(2 * time.Second)
	if err := h.c.Resolve(d.ID, model.Resolution{Explanation: "again"}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition for resolved->resolved, got %v", err)
	}
}

func TestStatusTransitions(t *testing.T) {
	all := []model.DoubtStatus{model.DoubtPending, model.DoubtResolving, model.DoubtResolved}
	allowed := map[[2]model.DoubtStatus]bool{
		{model.DoubtPending, model.DoubtResolving}:  true,
		{model.DoubtResolving, model.DoubtResolved}: true,
		{model.DoubtResolving, model.DoubtPending}:  true,
	}
	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]model.DoubtStatus{from, to}]
			if got := from.CanTransition(to); got != want {
				t.Errorf("%s -> %s: got %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestLaterQuizSupersedesEarlierOne(t *testing.T) {
	h := newHarness(t, Options{DebounceDelay: time.Second, QuizSurfaceDelay: 5 * time.Second})
	quiz := func(q string) *model.Resolution {
		return &model.Resolution{Explanation: "e", QuizQuestion: &model.QuizQuestion{Question: q, Options: []string{"a", "b"}}}
	}
	h.res.answers["A?"] = quiz("quiz A")
	h.res.answers["B?"] = quiz("quiz B")

	a, _ := h.c.Raise("A?", model.DoubtContext{}, "")
	h.clk.Add(time.Second)
	b, _ := h.c.Raise("B?", model.DoubtContext{}, "")
	h.clk.Add(time.Second)

	if h.status(t, a.ID) != model.DoubtResolved || h.status(t, b.ID) != model.DoubtResolved {
		t.Fatal("expected both doubts resolved")
	}

	h.clk.Add(10 * time.Second)
	s := h.surfaced()
	if len(s) != 1 || s[0] != b.ID {
		t.Errorf("expected only B's quiz surfaced, got %v", s)
	}
}

func TestConfirmUnderstandingCancelsQuiz(t *testing.T) {
	h := newHarness(t, defaultOpts)
	h.res.answers["Q?"] = &model.Resolution{Explanation: "e", QuizQuestion: &model.QuizQuestion{Question: "check"}}

	d, _ := h.c.Raise("Q?", model.DoubtContext{}, "")
	h.clk.Add(2 * time.Second)
	if err := h.c.ConfirmUnderstanding(d.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	h.clk.Add(5 * time.Second)

	if _, ok := h.c.VisibleQuiz(); ok {
		t.Error("quiz surfaced after understanding was confirmed")
	}
	got, _ := h.c.Get(d.ID)
	if !got.Resolution.UnderstandingConfirmed {
		t.Error("expected understanding confirmed")
	}

	other, _ := h.c.Raise("Other?", model.DoubtContext{}, "")
	if err := h.c.ConfirmUnderstanding(other.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition confirming a pending doubt, got %v", err)
	}
}

func TestHideQuiz(t *testing.T) {
	h := newHarness(t, defaultOpts)
	h.res.answers["Q?"] = &model.Resolution{Explanation: "e", QuizQuestion: &model.QuizQuestion{Question: "check"}}

	h.c.Raise("Q?", model.DoubtContext{}, "")
	h.clk.Add(3 * time.Second)
	if _, ok := h.c.VisibleQuiz(); !ok {
		t.Fatal("expected quiz visible")
	}
	h.c.HideQuiz()
	if _, ok := h.c.VisibleQuiz(); ok {
		t.Error("expected quiz hidden")
	}

	h.c.Raise("Q?", model.DoubtContext{}, "")
	h.clk.Add(2 * time.Second)
	h.c.HideQuiz()
	h.clk.Add(5 * time.Second)
	if _, ok := h.c.VisibleQuiz(); ok {
		t.Error("hide must cancel a quiz about to surface")
	}
}

func TestClearSessionAndClose(t *testing.T) {
	h := newHarness(t, defaultOpts)
	h.c.Raise("A?", model.DoubtContext{}, "")
	h.c.ClearSession()
	h.clk.Add(5 * time.Second)

	if len(h.c.Doubts()) != 0 {
		t.Error("expected doubts cleared")
	}
	if h.res.callCount() != 0 {
		t.Error("cleared doubt was resolved")
	}

	h.c.Raise("B?", model.DoubtContext{}, "")
	h.c.Close()
	h.clk.Add(5 * time.Second)
	if h.res.callCount() != 0 {
		t.Error("timer fired after close")
	}
	if _, err := h.c.Raise("C?", model.DoubtContext{}, ""); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestDoubtsAreAppendOnly(t *testing.T) {
	h := newHarness(t, defaultOpts)
	for _, q := range []string{"one?", "two?", "three?"} {
		h.c.Raise(q, model.DoubtContext{}, "")
	}
	ds := h.c.Doubts()
	if len(ds) != 3 || ds[0].Question != "one?" || ds[2].Question != "three?" {
		t.Errorf("unexpected doubts %+v", ds)
	}
}
