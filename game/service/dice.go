package service

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidNotation rejects dice notation that is not NdM with an optional
// +K or -K modifier.
var ErrInvalidNotation = errors.New("invalid dice notation")

const (
	maxDiceCount = 100
	maxDieSides  = 1000
)

var dicePattern = regexp.MustCompile(`^(\d*)d(\d+)([+-]\d+)?$`)

// rollDice parses notation like "2d6+3" and rolls it. A missing count means
// one die.
func rollDice(gameID, userID, notation string) (*RollResult, error) {
	compact := strings.ToLower(strings.ReplaceAll(notation, " ", ""))
	m := dicePattern.FindStringSubmatch(compact)
	if m == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidNotation, notation)
	}

	count := 1
	if m[1] != "" {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidNotation, notation)
		}
		count = n
	}
	if count > maxDiceCount {
		return nil, fmt.Errorf("%w: at most %d dice per roll", ErrInvalidNotation, maxDiceCount)
	}

	sides, err := strconv.Atoi(m[2])
	if err != nil || sides < 2 {
		return nil, fmt.Errorf("%w: dice need at least 2 sides", ErrInvalidNotation)
	}
	if sides > maxDieSides {
		return nil, fmt.Errorf("%w: at most %d sides per die", ErrInvalidNotation, maxDieSides)
	}

	modifier := 0
	if m[3] != "" {
		modifier, err = strconv.Atoi(m[3])
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidNotation, notation)
		}
	}

	rolls := make([]int, count)
	total := modifier
	for i := range rolls {
		rolls[i] = rand.IntN(sides) + 1
		total += rolls[i]
	}

	return &RollResult{
		ID:        uuid.NewString(),
		GameID:    gameID,
		UserID:    userID,
		Notation:  compact,
		Rolls:     rolls,
		Modifier:  modifier,
		Total:     total,
		Timestamp: time.Now(),
	}, nil
}
