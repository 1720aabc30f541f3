package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"smash-arena/internal/game"
)

// PlayerEntry is one roster slot handed over by matchmaking.
type PlayerEntry struct {
	ID        string `json:"id" validate:"required,max=64,printascii"`
	Archetype string `json:"archetype" validate:"required,archetype"`
}

// MatchConfig fixes the rules of a match before it starts.
type MatchConfig struct {
	MapID        string `json:"mapId" validate:"required,stage"`
	Mode         string `json:"mode" validate:"required,oneof=classic stock time"`
	Stocks       int    `json:"stocks" validate:"min=1,max=99"`
	TimeLimitSec int    `json:"timeLimitSec" validate:"min=0,max=5940,required_if=Mode time"`
	ScoreToWin   int    `json:"scoreToWin" validate:"min=0,max=999"`
	ItemsEnabled bool   `json:"itemsEnabled"`
	Seed         int64  `json:"seed"`
}

// DefaultMatchConfig returns a three-stock match on battlefield.
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		MapID:        "battlefield",
		Mode:         game.ModeStock.String(),
		Stocks:       3,
		ItemsEnabled: true,
	}
}

type startRequest struct {
	Players []PlayerEntry `validate:"min=2,max=8,unique=ID,dive"`
	Config  MatchConfig
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("archetype", func(fl validator.FieldLevel) bool {
		_, err := game.ParseArchetype(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("stage", func(fl validator.FieldLevel) bool {
		return game.HasStage(fl.Field().String())
	})
	return v
}

// validateMatch checks the roster and rules. Every failure wraps
// ErrInvalidConfiguration.
func validateMatch(players []PlayerEntry, cfg MatchConfig) error {
	if err := validate.Struct(startRequest{Players: players, Config: cfg}); err != nil {
		return invalidf("%s", describe(err))
	}
	return nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "startRequest.")
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

// roster converts validated entries into engine specs in slot order.
func roster(players []PlayerEntry) ([]game.PlayerSpec, error) {
	specs := make([]game.PlayerSpec, 0, len(players))
	for _, p := range players {
		a, err := game.ParseArchetype(p.Archetype)
		if err != nil {
			return nil, invalidf("player %s: %v", p.ID, err)
		}
		specs = append(specs, game.PlayerSpec{ID: p.ID, Archetype: a})
	}
	return specs, nil
}
