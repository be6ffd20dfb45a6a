package contest

import (
	"math/rand/v2"

	"contest-miniapp-backend/internal/models"
)

// WinnerSelector draws the winners of a round. Implementations must be
// deterministic for a given seed.
type WinnerSelector interface {
	Select(participants []models.Participant, winnerCount int, seed int64) []models.Participant
}

// SeededSelector samples uniformly without replacement using a PCG source
// seeded from the contest id, so a draw can be replayed for audit.
type SeededSelector struct{}

const seedStream = 0x5eed_c0de_a11d_f00d

func (SeededSelector) Select(participants []models.Participant, winnerCount int, seed int64) []models.Participant {
	if winnerCount <= 0 || len(participants) == 0 {
		return nil
	}
	if winnerCount > len(participants) {
		winnerCount = len(participants)
	}

	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)^seedStream))

	pool := make([]models.Participant, len(participants))
	copy(pool, participants)

	// partial Fisher-Yates: the first winnerCount slots are the sample
	for i := 0; i < winnerCount; i++ {
		j := i + rng.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}

	return pool[:winnerCount:winnerCount]
}
