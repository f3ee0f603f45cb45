// SPDX-License-Identifier: MIT

// Package egotest implements the thirty-question ego assessment with
// incremental sessions and a persisted result file.
package egotest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/x0vs/ethos/internal/fsutil"
	xlog "github.com/x0vs/ethos/internal/log"
)

// Question is one item of the bank.
type Question struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// questionTexts is the ego coding bank, in original order.
var questionTexts = []string{
	"How often do you bring up your own wins?",
	"How do you react to criticism?",
	"Do you feel bad if no one notices your effort?",
	"Do you compare yourself to others often?",
	"Can you accept others' opinions when you think you're right?",
	"Do you tune out when the topic isn’t about you?",
	"Who do you blame when you fail?",
	"If you win a prize with someone, how do you split it?",
	"Do others' success lift or bug you?",
	"How much resentment do you still carry?",
	"How hard is it to admit when you mess up?",
	"Do you expect leniency when you're late?",
	"Do you rush to prove doubters wrong?",
	"Do you have to lead team efforts your way?",
	"Do you plot revenge when wronged?",
	"How often do you seek compliments covertly?",
	"Do you downplay others who outshine you?",
	"Do you still hold grudges after apologies?",
	"How much do you care about appearances?",
	"Do you push back when you don't get your way?",
	"Do you fake it when unsure?",
	"Do you enjoy watching rivals mess up?",
	"Do you feel you deserve more than you have?",
	"Do you boast when you win?",
	"Do you hide fear of failure?",
	"Do you own your shame or double down?",
	"Do you need to be the smartest in the room?",
	"Do you call it out if someone takes your credit?",
	"Do you secretly feel above hardship?",
	"How much control do you crave over uncertainty?",
}

// Rating strings by total-score band.
const (
	RatingVeryLow  = "Very low ego — Grounded, self-aware"
	RatingLow      = "Low-to-moderate ego — Balanced"
	RatingModerate = "Moderate ego — Some challenges"
	RatingHigh     = "High ego — Prone to conflict and instability"
)

var (
	ErrSessionNotFound = errors.New("egotest: session not found")
	ErrIncomplete      = errors.New("egotest: not all questions answered")
)

// Questions returns the bank in order.
func Questions() []Question {
	out := make([]Question, len(questionTexts))
	for i, text := range questionTexts {
		out[i] = Question{ID: i + 1, Text: text}
	}
	return out
}

// Rating maps a total score to its band string.
func Rating(total int) string {
	switch {
	case total <= 50:
		return RatingVeryLow
	case total <= 80:
		return RatingLow
	case total <= 110:
		return RatingModerate
	default:
		return RatingHigh
	}
}

// Result is the persisted outcome of one completed session.
type Result struct {
	User       string      `json:"user"`
	Timestamp  string      `json:"timestamp"`
	TotalScore int         `json:"total_score"`
	Rating     string      `json:"rating"`
	Answers    map[int]int `json:"answers"`
}

// Session collects answers incrementally until the bank is complete.
type Session struct {
	ID      string      `json:"id"`
	User    string      `json:"user"`
	Answers map[int]int `json:"answers"`
}

func (s *Session) remaining() int {
	return len(questionTexts) - len(s.Answers)
}

// Service tracks open sessions and writes completed results.
type Service struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	resultPath string
	logger     zerolog.Logger
}

// NewService builds a service persisting to resultPath.
func NewService(resultPath string) *Service {
	return &Service{
		sessions:   make(map[string]*Session),
		resultPath: resultPath,
		logger:     xlog.WithComponent("egotest"),
	}
}

// StartSession opens a fresh answer sheet for a user.
func (s *Service) StartSession(user string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := &Session{
		ID:      uuid.NewString(),
		User:    user,
		Answers: make(map[int]int),
	}
	s.sessions[sess.ID] = sess
	return &Session{ID: sess.ID, User: sess.User, Answers: map[int]int{}}
}

// Answer records one score (1..5) for a question. Re-answering a
// question overwrites the previous score.
func (s *Service) Answer(sessionID string, questionID, score int) (remaining int, err error) {
	if questionID < 1 || questionID > len(questionTexts) {
		return 0, fmt.Errorf("egotest: unknown question %d", questionID)
	}
	if score < 1 || score > 5 {
		return 0, fmt.Errorf("egotest: score %d out of range [1,5]", score)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return 0, ErrSessionNotFound
	}
	sess.Answers[questionID] = score
	return sess.remaining(), nil
}

// Score totals a complete answer sheet.
func Score(answers map[int]int) (int, error) {
	if len(answers) != len(questionTexts) {
		return 0, fmt.Errorf("%w: %d/%d", ErrIncomplete, len(answers), len(questionTexts))
	}
	total := 0
	for id, score := range answers {
		if id < 1 || id > len(questionTexts) {
			return 0, fmt.Errorf("egotest: unknown question %d", id)
		}
		if score < 1 || score > 5 {
			return 0, fmt.Errorf("egotest: score %d out of range [1,5]", score)
		}
		total += score
	}
	return total, nil
}

// Finish scores a complete session, persists the result and closes the
// session.
func (s *Service) Finish(ctx context.Context, sessionID string) (*Result, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	answers := make(map[int]int, len(sess.Answers))
	for k, v := range sess.Answers {
		answers[k] = v
	}
	user := sess.User
	s.mu.Unlock()

	total, err := Score(answers)
	if err != nil {
		return nil, err
	}

	result := &Result{
		User:       user,
		Timestamp:  time.Now().Format(time.RFC3339Nano),
		TotalScore: total,
		Rating:     Rating(total),
		Answers:    answers,
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := fsutil.WriteAtomic(ctx, s.resultPath, data); err != nil {
		return nil, fmt.Errorf("egotest: persist result: %w", err)
	}

	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	s.logger.Info().Str("user", user).Int("total_score", total).
		Str("rating", result.Rating).Msg("assessment complete")
	return result, nil
}

// LastResult loads the most recently persisted result, if any.
func (s *Service) LastResult() (*Result, error) {
	data, err := os.ReadFile(s.resultPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("egotest: read result: %w", err)
	}
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("egotest: decode result: %w", err)
	}
	return &result, nil
}
