package resolve

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/matsen/paperfeed/internal/reference"
)

type fakeProvider struct {
	name  string
	out   Outcome
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Search(ctx context.Context, title string, limit int) Outcome {
	f.calls++
	return f.out
}

var testStub = reference.Stub{
	Title:   "Conformer",
	Authors: "Anmol Gulati; James Qin; Anmol Gulati",
	Year:    "2020",
	Venue:   "Interspeech",
}

func fixedClock() time.Time {
	return time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
}

func newTestResolver(logger *zap.Logger, providers ...Provider) *Resolver {
	return New(providers, logger, WithJitter(0), WithClock(fixedClock))
}

func TestBaseline(t *testing.T) {
	rec := Baseline(testStub)
	if rec.ItemType != reference.TypeConferencePaper {
		t.Errorf("ItemType = %q", rec.ItemType)
	}
	if len(rec.Creators) != 2 || rec.Creators[0].LastName != "Gulati" || rec.Creators[1].FirstName != "James" {
		t.Errorf("Creators = %+v, want deduplicated in order", rec.Creators)
	}
	if rec.Date != "2020" || rec.ProceedingsTitle != "Interspeech" || rec.ConferenceName != "Interspeech" {
		t.Errorf("baseline = %+v", rec)
	}
}

func TestResolve_ProviderErrorKeepsBaseline(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	failing := &fakeProvider{name: "s2", out: ProviderError{Err: errors.New("429")}}
	next := &fakeProvider{name: "dblp", out: Match{Candidate: Candidate{Title: "x"}}}

	rec := newTestResolver(zap.New(core), failing, next).Resolve(context.Background(), testStub)

	if rec.Abstract != "" || rec.Date != "2020" || len(rec.Creators) != 2 {
		t.Errorf("record changed after provider error: %+v", rec)
	}
	if next.calls != 0 {
		t.Error("later provider consulted after an error")
	}
	if logs.FilterMessage("provider failed, keeping baseline").Len() != 1 {
		t.Errorf("warning not logged: %v", logs.All())
	}
}

func TestResolve_FallsThroughNoMatch(t *testing.T) {
	empty := &fakeProvider{name: "s2", out: NoMatch{}}
	dblp := &fakeProvider{name: "dblp", out: Match{Candidate: Candidate{
		Title:   "Conformer",
		Date:    "2020",
		Venue:   "INTERSPEECH",
		Journal: "INTERSPEECH",
		DOI:     "10.21437/Interspeech.2020-3015",
		Authors: []string{"Anmol Gulati", "Ruoming Pang"},
	}}}

	rec := newTestResolver(nil, empty, dblp).Resolve(context.Background(), testStub)

	if empty.calls != 1 || dblp.calls != 1 {
		t.Errorf("calls = %d, %d", empty.calls, dblp.calls)
	}
	if rec.DOI != "10.21437/Interspeech.2020-3015" {
		t.Errorf("DOI = %q", rec.DOI)
	}
	if len(rec.Creators) != 2 || rec.Creators[1].LastName != "Pang" {
		t.Errorf("Creators = %+v, want provider authors", rec.Creators)
	}
}

func TestResolve_Overlay(t *testing.T) {
	p := &fakeProvider{name: "s2", out: Match{Candidate: Candidate{
		Title:     "Conformer",
		Abstract:  "We propose Conformer.",
		Date:      "2020-05-16",
		Venue:     "Interspeech",
		Journal:   "Interspeech 2020",
		Volume:    "1",
		Pages:     "5036-5040",
		DOI:       "10.21437/Interspeech.2020-3015",
		ArxivID:   "2005.08100",
		URL:       "https://www.semanticscholar.org/paper/p2",
		VenueURL:  "http://www.isca-speech.org/",
		DBLPKey:   "conf/interspeech/Gulati20",
		Citations: 3000,
		Fields:    []string{"Computer Science", "Engineering"},
	}}}

	rec := newTestResolver(nil, p).Resolve(context.Background(), testStub)

	if rec.URL != "https://arxiv.org/pdf/2005.08100.pdf" || rec.Archive != "2005.08100" {
		t.Errorf("URL = %q, Archive = %q", rec.URL, rec.Archive)
	}
	if rec.ProceedingsTitle != "Interspeech 2020" || rec.Volume != "1" || rec.Pages != "5036-5040" {
		t.Errorf("venue fields = %+v", rec)
	}
	if rec.LibraryCatalog != "Computer Science, Engineering" {
		t.Errorf("LibraryCatalog = %q", rec.LibraryCatalog)
	}
	if len(rec.Creators) != 2 {
		t.Errorf("Creators = %+v, want baseline kept when provider lists none", rec.Creators)
	}
	want := "pub_urls:\n" +
		" - public:http://www.isca-speech.org/\n" +
		" - semantic-sch: https://www.semanticscholar.org/paper/p2\n" +
		"DBLP-ID: conf/interspeech/Gulati20\n" +
		"citations: 3000 till 2024-03-09\n"
	if rec.Extra != want {
		t.Errorf("Extra = %q, want %q", rec.Extra, want)
	}
}

func TestResolve_VenueURLWithoutArxiv(t *testing.T) {
	p := &fakeProvider{name: "s2", out: Match{Candidate: Candidate{VenueURL: "https://aclanthology.org"}}}
	rec := newTestResolver(nil, p).Resolve(context.Background(), testStub)
	if rec.URL != "https://aclanthology.org" {
		t.Errorf("URL = %q", rec.URL)
	}
}

func TestPick(t *testing.T) {
	if _, ok := Pick(nil).(NoMatch); !ok {
		t.Error("Pick(nil) should be NoMatch")
	}
	m := Pick([]Candidate{{Title: "first"}, {Title: "doi", DOI: "10.1/x"}, {Title: "doi2", DOI: "10.1/y"}}).(Match)
	if m.Candidate.Title != "doi" {
		t.Errorf("Pick() = %q, want first DOI-bearing", m.Candidate.Title)
	}
	m = Pick([]Candidate{{Title: "first"}, {Title: "second"}}).(Match)
	if m.Candidate.Title != "first" {
		t.Errorf("Pick() = %q, want first-ranked", m.Candidate.Title)
	}
}

func TestResolve_Jitter(t *testing.T) {
	p := &fakeProvider{name: "s2", out: NoMatch{}}
	r := New([]Provider{p, p}, nil, WithJitter(50*time.Millisecond))
	var slept []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) { slept = append(slept, d) }

	r.Resolve(context.Background(), testStub)

	if len(slept) != 2 {
		t.Fatalf("slept %d times, want once per provider call", len(slept))
	}
	for _, d := range slept {
		if d < 0 || d >= 50*time.Millisecond {
			t.Errorf("jitter %v out of range", d)
		}
	}
}
