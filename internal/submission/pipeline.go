// Package submission turns a completed answer set into a scoring request and
// hands it to a scorer.
package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"iter"
	"strconv"

	"go.uber.org/zap"

	"carbon-quiz/internal/domain"
)

// AnswerPayload is the per-question body the scoring service expects.
type AnswerPayload struct {
	Category domain.Category `json:"category"`
	CO2      float64         `json:"co2"`
	Text     string          `json:"text"`
}

// Request is the scoring request body, keyed by question id.
type Request struct {
	Answers map[domain.QuestionID]AnswerPayload `json:"answers"`
}

type listedAnswer struct {
	QuestionID domain.QuestionID `json:"questionId"`
	AnswerPayload
}

// UnmarshalJSON accepts answers keyed by question id or as a list. List
// entries without a questionId are keyed by their 1-based position.
func (r *Request) UnmarshalJSON(data []byte) error {
	var body struct {
		Answers json.RawMessage `json:"answers"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return err
	}
	r.Answers = make(map[domain.QuestionID]AnswerPayload)
	raw := bytes.TrimSpace(body.Answers)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] != '[' {
		return json.Unmarshal(raw, &r.Answers)
	}

	var list []listedAnswer
	if err := json.Unmarshal(raw, &list); err != nil {
		return err
	}
	for i, a := range list {
		id := a.QuestionID
		if id == "" {
			id = domain.QuestionID(strconv.Itoa(i + 1))
		}
		r.Answers[id] = a.AnswerPayload
	}
	return nil
}

// Scorer computes results for a request.
type Scorer interface {
	Score(ctx context.Context, req Request) (domain.Results, error)
}

// Pipeline validates and serializes answers before scoring them.
type Pipeline struct {
	scorer Scorer
	logger *zap.Logger
}

func NewPipeline(scorer Scorer, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{scorer: scorer, logger: logger}
}

// BuildRequest collects answers into a request. Later answers for the same
// question id replace earlier ones.
func BuildRequest(answers iter.Seq[domain.Answer]) Request {
	req := Request{Answers: make(map[domain.QuestionID]AnswerPayload)}
	for a := range answers {
		req.Answers[a.QuestionID] = AnswerPayload{Category: a.Category, CO2: a.CO2, Text: a.Text}
	}
	return req
}

// Submit scores answers. Every failure is returned as *domain.SubmissionError;
// an empty answer set fails without calling the scorer.
func (p *Pipeline) Submit(ctx context.Context, answers iter.Seq[domain.Answer]) (domain.Results, error) {
	req := BuildRequest(answers)
	if len(req.Answers) == 0 {
		return domain.Results{}, &domain.SubmissionError{Err: domain.ErrNoAnswers}
	}

	results, err := p.scorer.Score(ctx, req)
	if err != nil {
		var subErr *domain.SubmissionError
		if !errors.As(err, &subErr) {
			err = &domain.SubmissionError{Err: err}
		}
		p.logger.Warn("scoring failed", zap.Int("answers", len(req.Answers)), zap.Error(err))
		return domain.Results{}, err
	}
	p.logger.Debug("answers scored",
		zap.Int("answers", len(req.Answers)),
		zap.Float64("total_co2", results.Total.CO2))
	return results, nil
}
