package games

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"math/big"
	"math/rand"
	"sync"
)

var (
	ErrInvalidBet  = errors.New("invalid bet parameters")
	ErrRoundClosed = errors.New("round already closed")
)

// Rand is the randomness a game draws from. Implementations must return
// Float64 in [0, 1) and Intn in [0, n).
type Rand interface {
	Float64() float64
	Intn(n int) int
}

type systemRand struct{}

// SystemRand draws from the runtime's auto-seeded generator.
func SystemRand() Rand {
	return systemRand{}
}

func (systemRand) Float64() float64 { return rand.Float64() }

func (systemRand) Intn(n int) int { return rand.Intn(n) }

// FairSource is a provably fair generator: every draw is derived from
// HMAC-SHA256(serverSeed, "clientSeed:nonce:cursor"), so anyone holding
// the revealed server seed can replay a round.
type FairSource struct {
	serverSeed string
	clientSeed string
	nonce      int64
	cursor     int
}

func NewFairSource(serverSeed, clientSeed string, nonce int64) *FairSource {
	return &FairSource{
		serverSeed: serverSeed,
		clientSeed: clientSeed,
		nonce:      nonce,
	}
}

// Float64 uses the first 52 bits (13 hex characters) of the next hash.
func (s *FairSource) Float64() float64 {
	hash := s.next()

	n := new(big.Int)
	n.SetString(hash[:13], 16)

	return float64(n.Int64()) / math.Pow(2, 52)
}

func (s *FairSource) Intn(n int) int {
	v := int(s.Float64() * float64(n))
	if v >= n {
		v = n - 1
	}
	return v
}

func (s *FairSource) next() string {
	message := fmt.Sprintf("%s:%d:%d", s.clientSeed, s.nonce, s.cursor)
	s.cursor++

	h := hmac.New(sha256.New, []byte(s.serverSeed))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

// HashSeed is the published commitment for a server seed.
func HashSeed(serverSeed string) string {
	hash := sha256.Sum256([]byte(serverSeed))
	return hex.EncodeToString(hash[:])
}

// Sequence replays fixed draws in order, pinning an outcome. An exhausted
// sequence returns zero.
type Sequence struct {
	mu     sync.Mutex
	Floats []float64
	Ints   []int
}

func (s *Sequence) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.Floats) == 0 {
		return 0
	}
	v := s.Floats[0]
	s.Floats = s.Floats[1:]
	return v
}

func (s *Sequence) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.Ints) == 0 {
		return 0
	}
	v := s.Ints[0]
	s.Ints = s.Ints[1:]
	return v % n
}
