package view

import (
	"sync"

	"ttrpg-tracker/internal/app/apperr"
)

type Coin string

const (
	Gold   Coin = "Gold"
	Silver Coin = "Silver"
	Copper Coin = "Copper"
)

var Coins = []Coin{Gold, Silver, Copper}

// Purse is the per-character coin count. It lives only as long as the board.
type Purse struct {
	mu      sync.Mutex
	amounts map[Coin]int
}

func NewPurse() *Purse {
	return &Purse{amounts: make(map[Coin]int, len(Coins))}
}

// Add applies delta to coin. Results below zero are rejected and nothing changes.
func (p *Purse) Add(coin Coin, delta int) (int, error) {
	switch coin {
	case Gold, Silver, Copper:
	default:
		return 0, apperr.Invalid("unknown coin %q", coin)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	next := p.amounts[coin] + delta
	if next < 0 {
		return p.amounts[coin], apperr.Invalid("not enough %s", coin)
	}
	p.amounts[coin] = next
	return next, nil
}

func (p *Purse) Balance(coin Coin) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.amounts[coin]
}
