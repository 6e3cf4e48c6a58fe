package app

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"scenario-quiz/internal/domain"
)

// DeckRepository loads scenario decks (from cache/backing store).
type DeckRepository interface {
	GetDeck(ctx context.Context, deckID string) (domain.Deck, error)
}

// DefaultTimeLimit is the round length applied to imported scenarios that carry none.
const DefaultTimeLimit = 30

var parenthesized = regexp.MustCompile(`\s*\(.*?\)\s*`)

type scenarioRecord struct {
	ID               string         `json:"id"`
	OpponentName     *string        `json:"opponentName"`
	OpponentAvatarID int            `json:"opponentAvatarId"`
	SituationContext string         `json:"situationContext"`
	NPCDialogue      *string        `json:"npcDialogue"`
	TimeLimit        int            `json:"timeLimit"`
	Options          []optionRecord `json:"options"`
}

type optionRecord struct {
	ID            string  `json:"id"`
	Text          *string `json:"text"`
	Strategy      string  `json:"strategy"`
	IsOptimal     bool    `json:"isOptimal"`
	TensionChange int     `json:"tensionChange"`
	TrustChange   int     `json:"trustChange"`
	NPCReaction   string  `json:"npcReaction"`
	Explanation   string  `json:"explanation"`
}

// ParseScenarios decodes a JSON array of scenario records. The import is all-or-nothing: any
// record that does not match the expected shape rejects the whole payload.
// Optimal-option uniqueness is not validated.
func ParseScenarios(data []byte, defaultTimeLimit int) ([]domain.ScenarioNode, error) {
	if defaultTimeLimit <= 0 {
		defaultTimeLimit = DefaultTimeLimit
	}

	var records []scenarioRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedContent, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no scenarios", domain.ErrMalformedContent)
	}

	scenarios := make([]domain.ScenarioNode, 0, len(records))
	for i, rec := range records {
		if rec.OpponentName == nil || rec.NPCDialogue == nil {
			return nil, fmt.Errorf("%w: scenario %d: opponentName and npcDialogue are required", domain.ErrMalformedContent, i)
		}
		if len(rec.Options) == 0 {
			return nil, fmt.Errorf("%w: scenario %d: no options", domain.ErrMalformedContent, i)
		}

		node := domain.ScenarioNode{
			ID:               rec.ID,
			OpponentName:     strings.TrimSpace(parenthesized.ReplaceAllString(*rec.OpponentName, "")),
			OpponentAvatarID: rec.OpponentAvatarID,
			SituationContext: rec.SituationContext,
			NPCDialogue:      *rec.NPCDialogue,
			TimeLimit:        rec.TimeLimit,
			Options:          make([]domain.Option, 0, len(rec.Options)),
		}
		if node.ID == "" {
			node.ID = uuid.NewString()
		}
		if node.TimeLimit <= 0 {
			node.TimeLimit = defaultTimeLimit
		}
		for j, opt := range rec.Options {
			if opt.Text == nil {
				return nil, fmt.Errorf("%w: scenario %d option %d: text is required", domain.ErrMalformedContent, i, j)
			}
			id := opt.ID
			if id == "" {
				id = fmt.Sprintf("opt-%d-%d", i, j)
			}
			node.Options = append(node.Options, domain.Option{
				ID:            id,
				Text:          *opt.Text,
				Strategy:      opt.Strategy,
				IsOptimal:     opt.IsOptimal,
				TensionChange: opt.TensionChange,
				TrustChange:   opt.TrustChange,
				NPCReaction:   opt.NPCReaction,
				Explanation:   opt.Explanation,
			})
		}
		scenarios = append(scenarios, node)
	}
	return scenarios, nil
}

// WithTimeLimit returns a copy of scenarios with every round set to seconds.
func WithTimeLimit(scenarios []domain.ScenarioNode, seconds int) []domain.ScenarioNode {
	out := make([]domain.ScenarioNode, len(scenarios))
	for i, s := range scenarios {
		s.Options = append([]domain.Option(nil), s.Options...)
		if seconds > 0 {
			s.TimeLimit = seconds
		}
		out[i] = s
	}
	return out
}
