// Package chatsim fabricates virtual neighbor replies for the forum: delayed,
// keyword-aware, chained into short bursts and cancelled when the room moves on.
package chatsim

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"comunitarr/internal/models"
)

const maxGeneratedRunes = 280

// Message is a real forum message the simulator reacts to.
type Message struct {
	ID         string
	Key        models.RoomKey
	AuthorID   string
	AuthorName string
	Content    string
	IsVirtual  bool
}

// Reply is a virtual neighbor message ready to be published.
type Reply struct {
	Key       models.RoomKey
	Persona   Persona
	Content   string
	InReplyTo string
	Topic     string
	Sequence  int
	Generated bool
}

type Publisher interface {
	PublishTyping(key models.RoomKey, persona Persona)
	PublishReply(reply Reply)
}

// TextGenerator produces a free-form reply; scripted text is used when it fails.
type TextGenerator interface {
	Generate(ctx context.Context, persona Persona, trigger Message) (string, error)
}

type Config struct {
	Enabled         bool
	MinDelay        time.Duration
	MaxDelay        time.Duration
	PerCharDelay    time.Duration
	MaxBurst        int
	FollowUpChance  float64
	SignatureChance float64
	RecentWindow    int
	GenerateTimeout time.Duration
}

type Option func(*Simulator)

func WithGenerator(g TextGenerator) Option {
	return func(s *Simulator) { s.gen = g }
}

func WithRand(r *rand.Rand) Option {
	return func(s *Simulator) { s.rnd = r }
}

func WithLogger(l *logrus.Entry) Option {
	return func(s *Simulator) { s.log = l }
}

type Simulator struct {
	cfg     Config
	catalog *Catalog
	pub     Publisher
	gen     TextGenerator
	log     *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	rnd     *rand.Rand
	rooms   map[models.RoomKey]*roomState
	stopped bool
}

type roomState struct {
	generation  uint64
	timers      []*time.Timer
	lastSpeaker string
	recent      []string
}

type plannedReply struct {
	persona  Persona
	template string
	text     string
	seq      int
}

func New(cfg Config, catalog *Catalog, pub Publisher, opts ...Option) *Simulator {
	if cfg.MaxBurst < 1 {
		cfg.MaxBurst = 1
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = 4 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Simulator{
		cfg:     cfg,
		catalog: catalog,
		pub:     pub,
		ctx:     ctx,
		cancel:  cancel,
		rooms:   make(map[models.RoomKey]*roomState),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rnd == nil {
		s.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if s.log == nil {
		s.log = logrus.NewEntry(logrus.StandardLogger())
	}
	return s
}

func (s *Simulator) Personas() []Persona {
	return append([]Persona(nil), s.catalog.Personas...)
}

// Handle reacts to a real message. Any burst still pending in the room is
// dropped: replies already delivered stay, the rest answer the new message.
func (s *Simulator) Handle(msg Message) {
	if !s.cfg.Enabled || msg.IsVirtual || strings.TrimSpace(msg.Content) == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	st := s.roomLocked(msg.Key)
	s.cancelLocked(st)
	st.generation++
	gen := st.generation

	topic := s.catalog.Classify(msg.Content)
	plan := s.planLocked(st, topic, msg)

	var at time.Duration
	for _, step := range plan {
		step := step
		d := s.delayLocked(step.text)
		s.scheduleLocked(st, at+d/3, func() { s.typing(msg.Key, gen, step.persona) })
		at += d
		s.scheduleLocked(st, at, func() { s.fire(msg.Key, gen, step, topic.Name, msg) })
	}

	s.log.WithFields(logrus.Fields{
		"room":    msg.Key.String(),
		"topic":   topic.Name,
		"replies": len(plan),
	}).Debug("virtual burst scheduled")
}

// Stop cancels every pending reply and waits for running callbacks.
func (s *Simulator) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for _, st := range s.rooms {
		s.cancelLocked(st)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Simulator) roomLocked(key models.RoomKey) *roomState {
	st, ok := s.rooms[key]
	if !ok {
		st = &roomState{}
		s.rooms[key] = st
	}
	return st
}

func (s *Simulator) scheduleLocked(st *roomState, d time.Duration, f func()) {
	s.wg.Add(1)
	t := time.AfterFunc(d, func() {
		defer s.wg.Done()
		f()
	})
	st.timers = append(st.timers, t)
}

func (s *Simulator) cancelLocked(st *roomState) {
	for _, t := range st.timers {
		// a timer stopped before firing never runs its callback
		if t.Stop() {
			s.wg.Done()
		}
	}
	st.timers = st.timers[:0]
}

func (s *Simulator) planLocked(st *roomState, topic *Topic, msg Message) []plannedReply {
	n := 1
	for n < s.cfg.MaxBurst && s.rnd.Float64() < s.cfg.FollowUpChance {
		n++
	}

	personas := s.pickPersonasLocked(n, st.lastSpeaker)
	used := make(map[string]bool, len(personas))
	plan := make([]plannedReply, 0, len(personas))

	for i, p := range personas {
		pool := topic.Replies
		if i > 0 {
			pool = topic.FollowUps
			if len(pool) == 0 {
				pool = s.catalog.Generic.FollowUps
			}
		}

		var tmpl, text string
		for _, allowRecent := range []bool{false, true} {
			if tmpl, text = s.pickLocked(st, pool, p, msg, used, allowRecent); tmpl != "" {
				break
			}
			if tmpl, text = s.pickLocked(st, s.catalog.Generic.Replies, p, msg, used, allowRecent); tmpl != "" {
				break
			}
		}
		if tmpl == "" {
			break
		}
		used[tmpl] = true
		plan = append(plan, plannedReply{persona: p, template: tmpl, text: text, seq: i})
	}
	return plan
}

// pickPersonasLocked returns up to n distinct personas, never the last speaker.
func (s *Simulator) pickPersonasLocked(n int, exclude string) []Persona {
	eligible := make([]Persona, 0, len(s.catalog.Personas))
	for _, p := range s.catalog.Personas {
		if p.ID != exclude {
			eligible = append(eligible, p)
		}
	}
	s.rnd.Shuffle(len(eligible), func(i, j int) { eligible[i], eligible[j] = eligible[j], eligible[i] })
	if n > len(eligible) {
		n = len(eligible)
	}
	return eligible[:n]
}

// pickLocked chooses a template that is not already used in this burst and
// does not echo the trigger. Templates in the room's recent window are
// skipped unless allowRecent is set.
func (s *Simulator) pickLocked(st *roomState, pool []string, p Persona, msg Message, used map[string]bool, allowRecent bool) (string, string) {
	var candidates []int
	for i, tmpl := range pool {
		if used[tmpl] || isEcho(s.render(tmpl, p, msg), msg.Content) {
			continue
		}
		if !allowRecent && st.isRecent(Normalize(tmpl)) {
			continue
		}
		candidates = append(candidates, i)
	}
	if len(candidates) == 0 {
		return "", ""
	}

	tmpl := pool[candidates[s.rnd.Intn(len(candidates))]]
	text := s.render(tmpl, p, msg)
	if len(p.Signatures) > 0 && s.rnd.Float64() < s.cfg.SignatureChance {
		text = p.Signatures[s.rnd.Intn(len(p.Signatures))] + " " + text
	}
	return tmpl, text
}

func (s *Simulator) render(tmpl string, p Persona, msg Message) string {
	name := msg.AuthorName
	if name == "" {
		name = "vecino"
	}
	return strings.NewReplacer("{name}", name, "{street}", p.Street, "{persona}", p.Name).Replace(tmpl)
}

// delayLocked approximates typing time: proportional to length, clamped, plus jitter.
func (s *Simulator) delayLocked(text string) time.Duration {
	d := time.Duration(utf8.RuneCountInString(text)) * s.cfg.PerCharDelay
	if d < s.cfg.MinDelay {
		d = s.cfg.MinDelay
	}
	if d > s.cfg.MaxDelay {
		d = s.cfg.MaxDelay
	}
	if jitter := s.cfg.MinDelay / 2; jitter > 0 {
		d += time.Duration(s.rnd.Int63n(int64(jitter)))
	}
	return d
}

func (s *Simulator) current(key models.RoomKey, gen uint64) (*roomState, bool) {
	st, ok := s.rooms[key]
	if s.stopped || !ok || st.generation != gen {
		return nil, false
	}
	return st, true
}

func (s *Simulator) typing(key models.RoomKey, gen uint64, p Persona) {
	s.mu.Lock()
	_, ok := s.current(key, gen)
	s.mu.Unlock()
	if ok {
		s.pub.PublishTyping(key, p)
	}
}

func (s *Simulator) fire(key models.RoomKey, gen uint64, step plannedReply, topic string, msg Message) {
	text, generated := step.text, false
	if step.seq == 0 && s.gen != nil {
		if out := s.generate(step.persona, msg); out != "" {
			text, generated = out, true
		}
	}

	s.mu.Lock()
	st, ok := s.current(key, gen)
	if !ok {
		s.mu.Unlock()
		return
	}
	if generated && (isEcho(text, msg.Content) || st.isRecent(Normalize(text))) {
		text, generated = step.text, false
	}
	if generated {
		st.remember(Normalize(text), s.cfg.RecentWindow)
	} else {
		st.remember(Normalize(step.template), s.cfg.RecentWindow)
	}
	st.lastSpeaker = step.persona.ID
	s.mu.Unlock()

	s.pub.PublishReply(Reply{
		Key:       key,
		Persona:   step.persona,
		Content:   text,
		InReplyTo: msg.ID,
		Topic:     topic,
		Sequence:  step.seq,
		Generated: generated,
	})
}

func (s *Simulator) generate(p Persona, msg Message) string {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.GenerateTimeout)
	defer cancel()

	out, err := s.gen.Generate(ctx, p, msg)
	if err != nil {
		s.log.WithError(err).WithField("persona", p.ID).Debug("generative reply failed, using scripted text")
		return ""
	}

	out = strings.TrimSpace(out)
	if utf8.RuneCountInString(out) > maxGeneratedRunes {
		out = string([]rune(out)[:maxGeneratedRunes])
	}
	return out
}

func (st *roomState) isRecent(normalized string) bool {
	for _, r := range st.recent {
		if r == normalized {
			return true
		}
	}
	return false
}

func (st *roomState) remember(normalized string, window int) {
	if window <= 0 {
		return
	}
	st.recent = append(st.recent, normalized)
	if over := len(st.recent) - window; over > 0 {
		st.recent = append(st.recent[:0], st.recent[over:]...)
	}
}
